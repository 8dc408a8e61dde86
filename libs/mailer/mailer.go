// Package mailer sends transactional email through a pluggable provider.
package mailer

import (
	"context"
	"errors"
	"strings"
)

var ErrNoRecipients = errors.New("mailer: message has no recipients")

// Message represents an email to send.
type Message struct {
	From    string
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// SendResult contains the response from the provider.
type SendResult struct {
	ProviderMessageID string
}

// Provider sends emails via a specific backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// Mailer is the top-level entry point for sending emails.
type Mailer struct {
	provider    Provider
	fromAddress string
}

// New creates a Mailer with the given provider and default sender address.
func New(provider Provider, fromAddress string) *Mailer {
	return &Mailer{
		provider:    provider,
		fromAddress: fromAddress,
	}
}

// Send fills in the default sender, drops blank recipients and hands the
// message to the provider.
func (m *Mailer) Send(ctx context.Context, msg Message) (SendResult, error) {
	if msg.From == "" {
		msg.From = m.fromAddress
	}
	to := make([]string, 0, len(msg.To))
	for _, addr := range msg.To {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			to = append(to, trimmed)
		}
	}
	if len(to) == 0 {
		return SendResult{}, ErrNoRecipients
	}
	msg.To = to
	return m.provider.Send(ctx, msg)
}

// ProviderName returns the name of the configured provider.
func (m *Mailer) ProviderName() string {
	return m.provider.Name()
}
