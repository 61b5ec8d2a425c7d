package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/config"
)

// Mailtrap sends through the Mailtrap send API instead of SMTP.
type Mailtrap struct {
	apiURL string
	token  string
	client *http.Client
}

type mailtrapPayload struct {
	From     mailtrapAddress   `json:"from"`
	To       []mailtrapAddress `json:"to"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text"`
	Category string            `json:"category,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

type mailtrapAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func NewMailtrap(cfg config.MailtrapConfig) *Mailtrap {
	return &Mailtrap{
		apiURL: cfg.APIURL,
		token:  cfg.APIToken,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *Mailtrap) Send(ctx context.Context, e Email) error {
	if m.apiURL == "" || m.token == "" {
		return fmt.Errorf("mailtrap credentials not configured")
	}
	if len(e.To) == 0 || e.From == "" || e.Subject == "" {
		return fmt.Errorf("mailtrap: from, to and subject are required")
	}

	p := mailtrapPayload{
		From:     mailtrapAddress{Email: e.From, Name: e.FromName},
		Subject:  e.Subject,
		Text:     e.Body,
		Category: "Transactional",
		Headers:  e.Headers,
	}
	for _, to := range e.To {
		p.To = append(p.To, mailtrapAddress{Email: to})
	}
	if kind := e.Headers["X-Notification-Kind"]; kind != "" {
		p.Category = kind
	}

	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Content-Type", "application/json")

	res, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mailtrap: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("mailtrap API error: %d %s", res.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
