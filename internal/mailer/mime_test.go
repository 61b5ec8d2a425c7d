package mailer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	raw, err := buildMessage(Email{
		FromName: "Lead Marketplace",
		From:     "no-reply@example.com",
		To:       []string{"c@example.com"},
		Subject:  "Refund approved",
		Body:     "line one\nline two",
		Headers:  map[string]string{"X-Notification-Kind": "refund_approved"},
	}, "example.com", now)
	require.NoError(t, err)

	assert.Contains(t, raw, "From: Lead Marketplace <no-reply@example.com>\r\n")
	assert.Contains(t, raw, "To: c@example.com\r\n")
	assert.Contains(t, raw, "X-Notification-Kind: refund_approved\r\n")
	assert.Contains(t, raw, "Date: Sun, 01 Mar 2026 10:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(raw, "line one\r\nline two\r\n"))
}

func TestBuildMessageValidates(t *testing.T) {
	_, err := buildMessage(Email{From: "a@b", Subject: "x"}, "d", time.Now())
	assert.Error(t, err)
	_, err = buildMessage(Email{To: []string{"a@b"}, Subject: "x"}, "d", time.Now())
	assert.Error(t, err)
	_, err = buildMessage(Email{To: []string{"a@b"}, From: "a@b"}, "d", time.Now())
	assert.Error(t, err)
}
