// Package mocks provides test doubles for notification deliverers.
package mocks

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gopkg.in/gomail.v2"
)

// TelegramAPI is the subset of the Telegram bot client used to deliver
// notifications. It lives here so notify and its tests share it without an
// import cycle.
type TelegramAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Mailer sends composed email messages. Implemented by *gomail.Dialer.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

var (
	_ TelegramAPI = (*MockBot)(nil)
	_ Mailer      = (*MockMailer)(nil)
)

// SentMessage is one message recorded by MockBot.
type SentMessage struct {
	ChatID    any
	Text      string
	ParseMode models.ParseMode
}

// MockBot records Telegram messages.
type MockBot struct {
	mu   sync.Mutex
	sent []SentMessage

	// SendMessageError fails every send when set.
	SendMessageError error
}

// NewMockBot creates an empty MockBot.
func NewMockBot() *MockBot {
	return &MockBot{}
}

// SendMessage records params and echoes them back as a message.
func (m *MockBot) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SendMessageError != nil {
		return nil, m.SendMessageError
	}
	m.sent = append(m.sent, SentMessage{ChatID: params.ChatID, Text: params.Text, ParseMode: params.ParseMode})

	msg := &models.Message{ID: len(m.sent), Text: params.Text}
	if id, ok := params.ChatID.(int64); ok {
		msg.Chat.ID = id
	}
	return msg, nil
}

// Messages returns a copy of the recorded messages.
func (m *MockBot) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// MockMailer records messages instead of dialing SMTP.
type MockMailer struct {
	mu sync.Mutex

	Sent []*gomail.Message
	// Err fails every send when set.
	Err error
}

// DialAndSend records msgs.
func (m *MockMailer) DialAndSend(msgs ...*gomail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, msgs...)
	return nil
}
