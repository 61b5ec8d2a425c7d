package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/testutil"
)

func newRequest(id, paymentID string, st Status) *RefundRequest {
	return &RefundRequest{
		ID: id, PaymentID: paymentID, ContractorID: "c-1", LeadID: "l-1",
		LeadType: leads.TypeHESRequest, Reason: "r", ReasonCategory: ReasonDuplicate,
		RequestedDate: time.Now(), Status: st,
	}
}

func TestStoreUpdateStatusIsConditional(t *testing.T) {
	s := NewStore(testutil.OpenDB(t, Models()...))
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRequest("r1", "p1", StatusPending)))

	n, err := s.UpdateStatus(ctx, "r1", []Status{StatusPending}, map[string]any{"status": StatusDenied})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.UpdateStatus(ctx, "r1", []Status{StatusPending}, map[string]any{"status": StatusApproved})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, got.Status)
}

func TestStoreApprovalClaim(t *testing.T) {
	s := NewStore(testutil.OpenDB(t, Models()...))
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRequest("r1", "p1", StatusPending)))
	now := time.Now().UTC()

	n, err := s.ClaimApproval(ctx, "r1", "admin-a", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// a second claim and plain status updates wait for the first
	n, err = s.ClaimApproval(ctx, "r1", "admin-b", now)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.UpdateStatus(ctx, "r1", []Status{StatusPending}, map[string]any{"status": StatusDenied})
	require.NoError(t, err)
	assert.Zero(t, n)

	// only the holder can finish
	n, err = s.FinishApproval(ctx, "r1", "admin-b", map[string]any{"status": StatusApproved})
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.FinishApproval(ctx, "r1", "admin-a", map[string]any{"status": StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Nil(t, got.ApprovalStartedBy)
}

func TestStoreReleaseApproval(t *testing.T) {
	s := NewStore(testutil.OpenDB(t, Models()...))
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newRequest("r1", "p1", StatusPending)))

	_, err := s.ClaimApproval(ctx, "r1", "admin-a", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.ReleaseApproval(ctx, "r1", "admin-a"))

	n, err := s.UpdateStatus(ctx, "r1", []Status{StatusPending}, map[string]any{"status": StatusDenied})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStoreFindOpenAndCounts(t *testing.T) {
	s := NewStore(testutil.OpenDB(t, Models()...))
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newRequest("r1", "p1", StatusApproved)))
	_, found, err := s.FindOpenForPayment(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Create(ctx, newRequest("r2", "p1", StatusMoreInfoRequested)))
	open, found, err := s.FindOpenForPayment(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "r2", open.ID)

	c, err := s.CountByContractor(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 2, Approved: 1}, c)

	c, err = s.CountByContractor(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, c.Total)
}
