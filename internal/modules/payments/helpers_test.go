package payments

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testWebhookSecret = "whsec_test_secret"

func stripeEvent(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"api_version": "2024-06-20",
		"created":     time.Now().Unix(),
		"type":        typ,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func signedHeader(body []byte) http.Header {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	h := http.Header{}
	h.Set(StripeSignatureHeader, sp.Header)
	return h
}

func paymentIntent(id, contractorID, leadID, leadType string, amountCents int64) map[string]any {
	return map[string]any{
		"id":            id,
		"object":        "payment_intent",
		"amount":        amountCents,
		"currency":      "usd",
		"status":        "succeeded",
		"latest_charge": "ch_" + id,
		"metadata": map[string]string{
			MetaContractorID: contractorID,
			MetaLeadID:       leadID,
			MetaLeadType:     leadType,
		},
	}
}
