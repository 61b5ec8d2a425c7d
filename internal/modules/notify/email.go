package notify

import (
	"context"
	"fmt"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/mailer"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/users"
)

// Recipients resolves a user id to an address.
type Recipients interface {
	Get(ctx context.Context, id string) (users.User, error)
}

// Email sends notifications through a mailer.Service.
type Email struct {
	Mailer   mailer.Service
	Users    Recipients
	From     string
	FromName string
}

func (e Email) Notify(ctx context.Context, n Notification) error {
	u, err := e.Users.Get(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("notify email: lookup user %s: %w", n.UserID, err)
	}
	return e.Mailer.Send(ctx, mailer.Email{
		FromName: e.FromName,
		From:     e.From,
		To:       []string{u.Email},
		Subject:  n.Subject,
		Body:     fmt.Sprintf("Hello %s,\n\n%s\n", u.DisplayName(), n.Body),
		Headers:  map[string]string{"X-Notification-Kind": n.Kind},
	})
}
