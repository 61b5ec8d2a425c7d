package payments

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/notify"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/testutil"
)

const (
	buyerA = "aaaaaaaa-0000-0000-0000-000000000001"
	buyerB = "bbbbbbbb-0000-0000-0000-000000000002"
	lead1  = "11111111-0000-0000-0000-00000000000a"
)

type recorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recorder) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, n.Kind)
	return nil
}

func (r *recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

type webhookFixture struct {
	db       *gorm.DB
	svc      *WebhookService
	provider *StripeProvider
	rec      *recorder
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	db := testutil.OpenDB(t, &PaymentRecord{}, &ProviderEvent{},
		&leads.SystemLead{}, &leads.HESRequest{}, &leads.ContractorLeadStatus{})
	now := time.Now()
	require.NoError(t, db.Create(&leads.SystemLead{
		ID: lead1, Status: leads.SystemLeadAvailable, Address: "9 Elm St",
		Price: decimal.RequireFromString("40.00"), CreatedAt: now, UpdatedAt: now,
	}).Error)

	rec := &recorder{}
	return &webhookFixture{
		db:       db,
		svc:      NewWebhookService(db, rec),
		provider: NewStripeProvider("sk_test", testWebhookSecret),
		rec:      rec,
	}
}

// deliver runs one signed delivery through verification and Handle.
func (f *webhookFixture) deliver(t *testing.T, body []byte) error {
	t.Helper()
	ev, err := f.provider.VerifyAndParseWebhook(signedHeader(body), body)
	require.NoError(t, err)
	return f.svc.Handle(context.Background(), f.provider.Name(), ev, body)
}

func (f *webhookFixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestDuplicatePaymentSucceededAppliesOnce(t *testing.T) {
	f := newWebhookFixture(t)
	body := stripeEvent(t, "evt_1", "payment_intent.succeeded", paymentIntent("pi_1", buyerA, lead1, "system_lead", 4000))

	require.NoError(t, f.deliver(t, body))
	require.NoError(t, f.deliver(t, body))

	assert.Equal(t, int64(1), f.count(t, &PaymentRecord{}, ""))
	assert.Equal(t, int64(1), f.count(t, &leads.ContractorLeadStatus{}, ""))
	assert.Equal(t, int64(1), f.count(t, &ProviderEvent{}, ""))

	var l leads.SystemLead
	require.NoError(t, f.db.First(&l, "id = ?", lead1).Error)
	assert.Equal(t, leads.SystemLeadPurchased, l.Status)
	require.NotNil(t, l.PurchasedBy)
	assert.Equal(t, buyerA, *l.PurchasedBy)
	assert.Equal(t, []string{notify.KindPaymentConfirmed}, f.rec.Kinds())
}

func TestSamePaymentFromTwoEventTypes(t *testing.T) {
	f := newWebhookFixture(t)
	pi := stripeEvent(t, "evt_pi", "payment_intent.succeeded", paymentIntent("pi_1", buyerA, lead1, "system_lead", 4000))
	cs := stripeEvent(t, "evt_cs", "checkout.session.completed", map[string]any{
		"id": "cs_1", "object": "checkout.session", "payment_status": "paid",
		"payment_intent": "pi_1", "amount_total": 4000, "currency": "usd",
		"metadata": map[string]string{MetaContractorID: buyerA, MetaLeadID: lead1, MetaLeadType: "system_lead"},
	})

	require.NoError(t, f.deliver(t, cs))
	require.NoError(t, f.deliver(t, pi))

	assert.Equal(t, int64(1), f.count(t, &PaymentRecord{}, ""))
	assert.Equal(t, int64(1), f.count(t, &leads.ContractorLeadStatus{}, ""))
	assert.Equal(t, int64(2), f.count(t, &ProviderEvent{}, ""))
}

func TestConcurrentPurchasesYieldOneOwner(t *testing.T) {
	f := newWebhookFixture(t)
	a := stripeEvent(t, "evt_a", "payment_intent.succeeded", paymentIntent("pi_a", buyerA, lead1, "system_lead", 4000))
	b := stripeEvent(t, "evt_b", "payment_intent.succeeded", paymentIntent("pi_b", buyerB, lead1, "system_lead", 4000))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, body := range [][]byte{a, b} {
		ev, err := f.provider.VerifyAndParseWebhook(signedHeader(body), body)
		require.NoError(t, err)
		wg.Add(1)
		go func(i int, ev WebhookEvent, body []byte) {
			defer wg.Done()
			errs[i] = f.svc.Handle(context.Background(), "stripe", ev, body)
		}(i, ev, body)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var owners []string
	require.NoError(t, f.db.Model(&leads.ContractorLeadStatus{}).
		Where("lead_id = ? AND lead_type = ?", lead1, leads.TypeSystemLead).
		Pluck("contractor_id", &owners).Error)
	require.Len(t, owners, 1)

	var l leads.SystemLead
	require.NoError(t, f.db.First(&l, "id = ?", lead1).Error)
	assert.Equal(t, owners[0], *l.PurchasedBy)

	// both payments stay on the ledger; the loser can request a refund
	assert.Equal(t, int64(2), f.count(t, &PaymentRecord{}, "status = ?", StatusCompleted))
	assert.ElementsMatch(t, []string{notify.KindPaymentConfirmed, notify.KindLeadUnavailable}, f.rec.Kinds())
}

func TestChargeRefunded(t *testing.T) {
	f := newWebhookFixture(t)

	unknown := stripeEvent(t, "evt_r0", "charge.refunded", map[string]any{"id": "ch_nope", "object": "charge", "currency": "usd"})
	require.NoError(t, f.deliver(t, unknown))
	assert.Zero(t, f.count(t, &PaymentRecord{}, ""))

	require.NoError(t, f.deliver(t, stripeEvent(t, "evt_1", "payment_intent.succeeded", paymentIntent("pi_1", buyerA, lead1, "system_lead", 4000))))
	refund := stripeEvent(t, "evt_r1", "charge.refunded", map[string]any{
		"id": "ch_pi_1", "object": "charge", "payment_intent": "pi_1", "amount_refunded": 4000, "currency": "usd",
	})
	require.NoError(t, f.deliver(t, refund))

	var p PaymentRecord
	require.NoError(t, f.db.First(&p, "external_payment_intent_id = ?", "pi_1").Error)
	assert.Equal(t, StatusRefunded, p.Status)
	assert.NotNil(t, p.RefundDate)
}

func TestPaymentFailedRecordsAttempt(t *testing.T) {
	f := newWebhookFixture(t)
	obj := paymentIntent("pi_f", buyerA, lead1, "system_lead", 4000)
	obj["last_payment_error"] = map[string]any{"message": "insufficient funds"}
	body := stripeEvent(t, "evt_f", "payment_intent.payment_failed", obj)

	require.NoError(t, f.deliver(t, body))
	require.NoError(t, f.deliver(t, body))

	var p PaymentRecord
	require.NoError(t, f.db.First(&p, "external_payment_intent_id = ?", "pi_f").Error)
	assert.Equal(t, StatusFailed, p.Status)
	require.NotNil(t, p.FailureMessage)
	assert.Equal(t, "insufficient funds", *p.FailureMessage)
	assert.Equal(t, int64(1), f.count(t, &PaymentRecord{}, ""))

	var l leads.SystemLead
	require.NoError(t, f.db.First(&l, "id = ?", lead1).Error)
	assert.Equal(t, leads.SystemLeadAvailable, l.Status)
	assert.Equal(t, []string{notify.KindPaymentFailed}, f.rec.Kinds())
}

func TestLongFailureMessageStaysValidUTF8(t *testing.T) {
	f := newWebhookFixture(t)
	obj := paymentIntent("pi_u", buyerA, lead1, "system_lead", 4000)
	obj["last_payment_error"] = map[string]any{"message": "x" + strings.Repeat("ä", 200)}
	require.NoError(t, f.deliver(t, stripeEvent(t, "evt_u", "payment_intent.payment_failed", obj)))

	var p PaymentRecord
	require.NoError(t, f.db.First(&p, "external_payment_intent_id = ?", "pi_u").Error)
	require.NotNil(t, p.FailureMessage)
	assert.True(t, utf8.ValidString(*p.FailureMessage))
	assert.LessOrEqual(t, len(*p.FailureMessage), 255)
}

func TestUnknownAndUnprocessableEventsAreAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	require.NoError(t, f.deliver(t, stripeEvent(t, "evt_x", "customer.created", map[string]any{"id": "cus_1", "object": "customer"})))

	noMeta := paymentIntent("pi_m", "", "", "", 100)
	require.NoError(t, f.deliver(t, stripeEvent(t, "evt_m", "payment_intent.succeeded", noMeta)))

	var pe ProviderEvent
	require.NoError(t, f.db.First(&pe, "event_id = ?", "evt_m").Error)
	assert.NotNil(t, pe.ProcessedAt)
	require.NotNil(t, pe.ProcessError)
	assert.Contains(t, *pe.ProcessError, "unprocessable")

	require.NoError(t, f.db.First(&pe, "event_id = ?", "evt_x").Error)
	assert.NotNil(t, pe.ProcessedAt)
	assert.Nil(t, pe.ProcessError)
	assert.Zero(t, f.count(t, &PaymentRecord{}, ""))
}

func TestApplyFailureRollsBackEverything(t *testing.T) {
	f := newWebhookFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&leads.ContractorLeadStatus{}))

	body := stripeEvent(t, "evt_1", "payment_intent.succeeded", paymentIntent("pi_1", buyerA, lead1, "system_lead", 4000))
	assert.Error(t, f.deliver(t, body))

	assert.Zero(t, f.count(t, &ProviderEvent{}, ""))
	assert.Zero(t, f.count(t, &PaymentRecord{}, ""))
	var l leads.SystemLead
	require.NoError(t, f.db.First(&l, "id = ?", lead1).Error)
	assert.Equal(t, leads.SystemLeadAvailable, l.Status)
	assert.Empty(t, f.rec.Kinds())

	// redelivery after the fault is fixed applies cleanly
	require.NoError(t, f.db.AutoMigrate(&leads.ContractorLeadStatus{}))
	require.NoError(t, f.deliver(t, body))
	assert.Equal(t, int64(1), f.count(t, &leads.ContractorLeadStatus{}, ""))
}
