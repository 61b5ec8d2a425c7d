package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/config"
)

func TestMailtrapSend(t *testing.T) {
	var got mailtrapPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMailtrap(config.MailtrapConfig{APIURL: srv.URL, APIToken: "tok"})
	err := m.Send(context.Background(), Email{
		FromName: "Lead Marketplace",
		From:     "no-reply@example.com",
		To:       []string{"c@example.com"},
		Subject:  "Refund denied",
		Body:     "sorry",
		Headers:  map[string]string{"X-Notification-Kind": "refund_denied"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, "no-reply@example.com", got.From.Email)
	assert.Equal(t, []mailtrapAddress{{Email: "c@example.com"}}, got.To)
	assert.Equal(t, "refund_denied", got.Category)
	assert.Equal(t, "sorry", got.Text)
}

func TestMailtrapErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := Email{From: "a@b", To: []string{"c@d"}, Subject: "x"}

	err := NewMailtrap(config.MailtrapConfig{}).Send(context.Background(), e)
	assert.ErrorContains(t, err, "not configured")

	err = NewMailtrap(config.MailtrapConfig{APIURL: srv.URL, APIToken: "t"}).Send(context.Background(), e)
	assert.ErrorContains(t, err, "401")
}
