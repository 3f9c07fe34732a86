// Package notify records user-facing notifications and relays them to the
// user's personal channels.
package notify

import (
	"context"

	"github.com/google/uuid"
	"gitlab.com/billit/billit-api/internal/logger"
	"gitlab.com/billit/billit-api/internal/models"
)

// Store persists notifications through the create_notification procedure.
type Store interface {
	Create(ctx context.Context, n *models.Notification) (uuid.UUID, error)
}

// ProfileLookup resolves a user's contact points.
type ProfileLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Deliverer relays a stored notification to one external channel.
type Deliverer interface {
	Name() string
	Deliver(ctx context.Context, p *models.Profile, n *models.Notification) error
}

// Emitter creates notifications. It never fails its caller: every error is
// logged and dropped.
type Emitter struct {
	store      Store
	profiles   ProfileLookup
	deliverers []Deliverer
}

// NewEmitter creates an Emitter. profiles may be nil when no deliverer is set.
func NewEmitter(store Store, profiles ProfileLookup, deliverers ...Deliverer) *Emitter {
	return &Emitter{store: store, profiles: profiles, deliverers: deliverers}
}

// Emit records a notification for userID and relays it to the configured
// deliverers once stored.
func (e *Emitter) Emit(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any) {
	if e == nil || e.store == nil {
		return
	}

	n := &models.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Message: message,
		Data:    data,
	}
	id, err := e.store.Create(ctx, n)
	if err != nil {
		logger.Log.Warn().Err(err).
			Str("user", logger.HashUserID(userID)).
			Str("type", typ).
			Msg("Failed to create notification")
		return
	}
	n.ID = id

	if len(e.deliverers) == 0 || e.profiles == nil {
		return
	}

	profile, err := e.profiles.GetByID(ctx, userID)
	if err != nil {
		logger.Log.Debug().Err(err).Str("user", logger.HashUserID(userID)).Msg("No profile for notification delivery")
		return
	}

	for _, d := range e.deliverers {
		if err := d.Deliver(ctx, profile, n); err != nil {
			logger.Log.Warn().Err(err).
				Str("deliverer", d.Name()).
				Str("user", logger.HashUserID(userID)).
				Str("type", typ).
				Msg("Failed to deliver notification")
		}
	}
}
