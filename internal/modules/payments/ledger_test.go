package payments

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/testutil"
)

func completed(contractorID, intent, leadID, amount string) PaymentRecord {
	p := PaymentRecord{
		ContractorID:            contractorID,
		ExternalPaymentIntentID: intent,
		Amount:                  decimal.RequireFromString(amount),
		Currency:                "USD",
		Status:                  StatusCompleted,
	}
	p.SetLead(leads.TypeSystemLead, leadID)
	return p
}

func TestLedgerRecordIsIdempotent(t *testing.T) {
	l := NewLedger(testutil.OpenDB(t, &PaymentRecord{}))
	ctx := context.Background()

	ok, err := l.Exists(ctx, "pi_1")
	require.NoError(t, err)
	assert.False(t, ok)

	first, created, err := l.Record(ctx, completed("c-1", "pi_1", "l-1", "25.00"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "pi_1", first.IdempotencyKey)

	again, created, err := l.Record(ctx, completed("c-1", "pi_1", "l-1", "25.00"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	ok, err = l.Exists(ctx, "pi_1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = l.Record(ctx, PaymentRecord{ContractorID: "c-1"})
	assert.Error(t, err)
}

func TestLedgerRefundTransitions(t *testing.T) {
	l := NewLedger(testutil.OpenDB(t, &PaymentRecord{}))
	ctx := context.Background()
	now := time.Now()

	p, _, err := l.Record(ctx, completed("c-1", "pi_1", "l-1", "25.00"))
	require.NoError(t, err)

	found, err := l.FindCompletedForLead(ctx, "c-1", leads.TypeSystemLead, "l-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)

	n, err := l.MarkRefunded(ctx, p.ID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.MarkRefunded(ctx, p.ID, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = l.FindCompletedForLead(ctx, "c-1", leads.TypeSystemLead, "l-1")
	assert.Error(t, err)

	n, err = l.MarkChargeRefunded(ctx, "ch_unknown", "", now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = l.MarkChargeRefunded(ctx, "", "", now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedgerPurchaseTotals(t *testing.T) {
	l := NewLedger(testutil.OpenDB(t, &PaymentRecord{}))
	ctx := context.Background()

	_, _, err := l.Record(ctx, completed("c-1", "pi_1", "l-1", "20.00"))
	require.NoError(t, err)
	p2, _, err := l.Record(ctx, completed("c-1", "pi_2", "l-2", "30.00"))
	require.NoError(t, err)
	_, err = l.MarkRefunded(ctx, p2.ID, time.Now())
	require.NoError(t, err)

	failed := completed("c-1", "pi_3", "l-3", "99.00")
	failed.Status = StatusFailed
	failed.IdempotencyKey = "failed:pi_3:evt"
	_, _, err = l.Record(ctx, failed)
	require.NoError(t, err)

	tot, err := l.PurchaseTotals(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), tot.Count)
	assert.True(t, tot.Average.Equal(decimal.RequireFromString("25")))

	tot, err = l.PurchaseTotals(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, tot.Count)
	assert.True(t, tot.Average.IsZero())
}
