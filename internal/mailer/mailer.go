package mailer

import "context"

type Service interface {
	Send(ctx context.Context, e Email) error
}

// Email is a plain-text transactional message.
type Email struct {
	FromName string
	From     string

	To      []string
	Subject string
	Body    string

	Headers map[string]string // extra headers, e.g. X-Notification-Kind
}
