package email

import (
	"context"
	"errors"
)

var ErrNoRecipients = errors.New("email has no recipients")

type Message struct {
	To      []string
	Subject string
	HTML    string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
	SendTemplate(ctx context.Context, to []string, subject, templateName string, data any) error
}

// NoOpProvider drops every message. Used when SMTP is not configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, subject, templateName string, data any) error {
	return nil
}
