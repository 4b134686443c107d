package mail

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ErrNotConfigured is returned when no API key or sender address is set
var ErrNotConfigured = errors.New("mail: sender not configured")

// Message is a single transactional email
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers transactional email
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers email through the Resend API
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a sender. from is the envelope sender, e.g. "Työmaat.fi <vahti@tyomaat.fi>".
func NewResendSender(apiKey, from string) (*ResendSender, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return nil, ErrNotConfigured
	}
	return &ResendSender{client: resend.NewClient(apiKey), from: from}, nil
}

// WithBaseURL points the sender at another API host
func (s *ResendSender) WithBaseURL(raw string) error {
	u, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil {
		return fmt.Errorf("mail: invalid base url: %w", err)
	}
	s.client.BaseURL = u
	return nil
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("mail: empty recipient")
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
		Html:    msg.HTML,
	}
	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("mail: resend send failed: %w", err)
	}
	if sent == nil || sent.Id == "" {
		return errors.New("mail: resend returned no message id")
	}
	return nil
}
