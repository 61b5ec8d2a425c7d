package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
)

const StripeSignatureHeader = "Stripe-Signature"

// Checkout metadata keys set when the checkout session is created.
const (
	MetaContractorID = "contractor_id"
	MetaLeadID       = "lead_id"
	MetaLeadType     = "lead_type"
)

type StripeProvider struct {
	client        *client.API
	webhookSecret string
}

func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return newStripeProvider(secretKey, webhookSecret, nil)
}

// newStripeProvider with nil backends uses the live Stripe API.
func newStripeProvider(secretKey, webhookSecret string, backends *stripe.Backends) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &StripeProvider{client: sc, webhookSecret: webhookSecret}
}

func (p *StripeProvider) Name() string { return "stripe" }

// RefundPayment refunds the original charge. The idempotency key makes a
// manual retry after a network failure safe on the processor side.
func (p *StripeProvider) RefundPayment(ctx context.Context, req RefundInput) (RefundResult, error) {
	if req.ChargeID == "" && req.PaymentIntentID == "" {
		return RefundResult{}, ErrNoRefundTarget
	}

	params := &stripe.RefundParams{
		Reason: stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if req.ChargeID != "" {
		params.Charge = stripe.String(req.ChargeID)
	} else {
		params.PaymentIntent = stripe.String(req.PaymentIntentID)
	}
	if req.Amount.IsPositive() {
		params.Amount = stripe.Int64(toMinorUnits(req.Amount))
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	params.AddMetadata("payment_id", req.PaymentID)
	if req.Reason != "" {
		params.AddMetadata("reason", truncate(req.Reason, 450))
	}
	params.Context = ctx

	r, err := p.client.Refunds.New(params)
	if err != nil {
		return RefundResult{}, mapStripeError(err)
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return RefundResult{ProviderRef: r.ID, Status: string(r.Status)},
			fmt.Errorf("stripe refund %s ended in status %s", r.ID, r.Status)
	}
	return RefundResult{ProviderRef: r.ID, Status: string(r.Status)}, nil
}

func (p *StripeProvider) VerifyAndParseWebhook(headers http.Header, body []byte) (WebhookEvent, error) {
	sig := headers.Get(StripeSignatureHeader)
	if sig == "" {
		return WebhookEvent{}, fmt.Errorf("%w: missing %s header", ErrInvalidSignature, StripeSignatureHeader)
	}

	event, err := webhook.ConstructEventWithOptions(body, sig, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return parseStripeEvent(event)
}

func parseStripeEvent(event stripe.Event) (WebhookEvent, error) {
	ev := WebhookEvent{
		EventID: event.ID,
		Type:    string(event.Type),
		RawType: string(event.Type),
	}
	if event.Data == nil {
		return ev, nil
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: payment intent: %v", ErrInvalidPayload, err)
		}
		ev.PaymentIntentID = pi.ID
		if pi.LatestCharge != nil {
			ev.ChargeID = pi.LatestCharge.ID
		}
		ev.Amount = fromMinorUnits(pi.Amount)
		ev.Currency = strings.ToUpper(string(pi.Currency))
		applyMetadata(&ev, pi.Metadata)

		ev.Type = EventPaymentSucceeded
		if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
			ev.Type = EventPaymentFailed
			if pi.LastPaymentError != nil {
				ev.FailureMessage = pi.LastPaymentError.Msg
			}
		}

	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
		}
		// unpaid sessions (async methods) settle through payment_intent.succeeded
		if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return ev, nil
		}
		ev.Type = EventPaymentSucceeded
		ev.SessionID = cs.ID
		if cs.PaymentIntent != nil {
			ev.PaymentIntentID = cs.PaymentIntent.ID
		}
		ev.Amount = fromMinorUnits(cs.AmountTotal)
		ev.Currency = strings.ToUpper(string(cs.Currency))
		applyMetadata(&ev, cs.Metadata)

	case stripe.EventTypeChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: charge: %v", ErrInvalidPayload, err)
		}
		ev.Type = EventChargeRefunded
		ev.ChargeID = ch.ID
		if ch.PaymentIntent != nil {
			ev.PaymentIntentID = ch.PaymentIntent.ID
		}
		ev.Amount = fromMinorUnits(ch.AmountRefunded)
		ev.Currency = strings.ToUpper(string(ch.Currency))
	}
	return ev, nil
}

func applyMetadata(ev *WebhookEvent, md map[string]string) {
	ev.ContractorID = md[MetaContractorID]
	ev.LeadID = md[MetaLeadID]
	ev.LeadType = leads.Type(md[MetaLeadType])
}

// mapStripeError keeps stripe types out of the service layer.
func mapStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("stripe unavailable (%d): %w", se.HTTPStatusCode, err)
		}
		switch se.Code {
		case stripe.ErrorCodeChargeAlreadyRefunded:
			return fmt.Errorf("charge already refunded: %w", err)
		case stripe.ErrorCodeIdempotencyKeyInUse:
			return fmt.Errorf("refund already in progress: %w", err)
		}
		return fmt.Errorf("stripe %s: %s: %w", se.Type, se.Msg, err)
	}
	return fmt.Errorf("stripe request failed: %w", err)
}

func toMinorUnits(d decimal.Decimal) int64 { return d.Shift(2).Round(0).IntPart() }

func fromMinorUnits(n int64) decimal.Decimal { return decimal.New(n, -2) }

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
