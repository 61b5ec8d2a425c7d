// Package notify delivers user-facing notifications. Callers treat every
// send as fire-and-forget: errors are logged, never propagated.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	KindPaymentConfirmed    = "payment_confirmed"
	KindPaymentFailed       = "payment_failed"
	KindLeadUnavailable     = "lead_unavailable"
	KindRefundApproved      = "refund_approved"
	KindRefundDenied        = "refund_denied"
	KindRefundInfoRequested = "refund_info_requested"
)

type Notification struct {
	Kind    string            `json:"kind"`
	UserID  string            `json:"user_id"`
	Subject string            `json:"subject"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
	SentAt  time.Time         `json:"sent_at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Log writes notifications to the structured log. Default driver for local runs.
type Log struct{ Logger *slog.Logger }

func (l Log) Notify(ctx context.Context, n Notification) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "kind", n.Kind, "user_id", n.UserID, "subject", n.Subject)
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	var errs []error
	for _, x := range m {
		if err := x.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
