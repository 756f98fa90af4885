package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers mail through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
}

// ResendOption configures a ResendSender.
type ResendOption func(*resend.Client)

// WithResendBaseURL points the client at another API endpoint.
func WithResendBaseURL(u *url.URL) ResendOption {
	return func(c *resend.Client) {
		c.BaseURL = u
	}
}

// NewResendSender creates a sender authenticated with apiKey.
func NewResendSender(apiKey string, opts ...ResendOption) (*ResendSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is empty")
	}
	client := resend.NewClient(apiKey)
	for _, opt := range opts {
		opt(client)
	}
	return &ResendSender{client: client}, nil
}

// Send implements Sender. Rate limit responses are reported, not retried.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			return fmt.Errorf("email rate limit exceeded (limit: %s, resets in: %s seconds): %w",
				rateLimitErr.Limit, rateLimitErr.Reset, err)
		}
		return fmt.Errorf("resend API error: %w", err)
	}
	return nil
}
