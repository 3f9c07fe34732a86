package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gitlab.com/billit/billit-api/internal/models"
)

func TestManager_ConnectHolded(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	store, repo := newTestStore(t)
	m := NewManager(store, newMemStates(), NewHoldedClient(server.URL, server.Client()), nil, nil)
	userID := uuid.New()

	err := m.ConnectHolded(context.Background(), userID, "  ", false)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	err = m.ConnectHolded(context.Background(), userID, "bad", false)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Empty(t, repo.rows, "rejected keys are not stored")

	require.NoError(t, m.ConnectHolded(context.Background(), userID, " good ", true))
	cred, err := store.Load(context.Background(), userID, models.IntegrationHolded)
	require.NoError(t, err)
	require.Equal(t, "good", cred.Secret)
	require.JSONEq(t, `{"test_mode":true}`, string(cred.Settings))
}

func TestManager_ConnectOdoo(t *testing.T) {
	t.Parallel()

	srv := newOdooServer(t, func(string, string) string {
		return xmlrpcValue(`<int>12</int>`)
	})
	store, _ := newTestStore(t)
	m := NewManager(store, newMemStates(), nil, NewOdooClient(nil, 5*time.Second), nil)
	userID := uuid.New()

	require.NoError(t, m.ConnectOdoo(context.Background(), userID, srv.settings, "odoo-pass"))

	cred, err := store.Load(context.Background(), userID, models.IntegrationOdoo)
	require.NoError(t, err)
	require.Equal(t, "odoo-pass", cred.Secret)

	var settings models.OdooSettings
	require.NoError(t, decodeSettings(cred.Settings, &settings))
	require.Equal(t, int64(12), settings.UID)
	require.Equal(t, "billit", settings.Database)
}

func TestManager_Disconnect(t *testing.T) {
	t.Parallel()

	store, repo := newTestStore(t)
	m := NewManager(store, newMemStates(), nil, nil, nil)
	ctx := context.Background()
	userID := uuid.New()

	err := m.Disconnect(ctx, userID, "sage")
	require.ErrorIs(t, err, ErrUnsupported)

	err = m.Disconnect(ctx, userID, models.IntegrationHolded)
	require.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, store.Save(ctx, userID, models.IntegrationHolded, "k", "", models.HoldedSettings{}))
	require.NoError(t, m.Disconnect(ctx, userID, models.IntegrationHolded))
	require.Equal(t, 0, repo.active(userID))

	connected, err := m.Connected(ctx, userID)
	require.NoError(t, err)
	require.Empty(t, connected)
	require.NotNil(t, connected)
}
