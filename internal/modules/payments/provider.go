package payments

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
)

type RefundInput struct {
	PaymentID       string
	ChargeID        string // preferred target
	PaymentIntentID string // used when no charge id was recorded
	Amount          decimal.Decimal
	Currency        string
	IdempotencyKey  string
	Reason          string
}

type RefundResult struct {
	ProviderRef string
	Status      string // pending|succeeded|failed|requires_action|canceled
}

// Normalised webhook event kinds.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
	EventChargeRefunded   = "charge_refunded"
)

type WebhookEvent struct {
	EventID string
	Type    string // one of Event*, or the raw processor type when not recognised
	RawType string

	PaymentIntentID string
	ChargeID        string
	SessionID       string

	ContractorID string
	LeadID       string
	LeadType     leads.Type

	Amount         decimal.Decimal
	Currency       string
	FailureMessage string
}

// Known reports whether the event maps to one of the handled kinds.
func (e WebhookEvent) Known() bool {
	switch e.Type {
	case EventPaymentSucceeded, EventPaymentFailed, EventChargeRefunded:
		return true
	}
	return false
}

type Provider interface {
	Name() string
	RefundPayment(ctx context.Context, req RefundInput) (RefundResult, error)

	// VerifyAndParseWebhook checks the signature and normalises the event.
	// Any error means the delivery must be rejected.
	VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error)
}
