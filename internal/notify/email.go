package notify

import (
	"context"
	"fmt"

	"gitlab.com/billit/billit-api/internal/models"
	"gitlab.com/billit/billit-api/internal/notify/mocks"
	"gopkg.in/gomail.v2"
)

// Mailer is an alias to the interface defined in the mocks package.
type Mailer = mocks.Mailer

var _ Mailer = (*gomail.Dialer)(nil)

// EmailDeliverer sends notifications by SMTP.
type EmailDeliverer struct {
	mailer Mailer
	from   string
}

// NewSMTPDialer builds the SMTP dialer.
func NewSMTPDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

// NewEmailDeliverer creates a deliverer sending from the given address.
func NewEmailDeliverer(mailer Mailer, from string) *EmailDeliverer {
	return &EmailDeliverer{mailer: mailer, from: from}
}

// Name implements Deliverer.
func (d *EmailDeliverer) Name() string { return "email" }

// Deliver implements Deliverer. Profiles without an email are skipped.
func (d *EmailDeliverer) Deliver(_ context.Context, p *models.Profile, n *models.Notification) error {
	if p.Email == "" {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", p.Email)
	m.SetHeader("Subject", "Billit: "+n.Title)
	m.SetBody("text/plain", formatText(n))

	if err := d.mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
