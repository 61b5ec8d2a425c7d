package leads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/testutil"
)

func seedSystemLead(t *testing.T, repo *Repo, status string) string {
	t.Helper()
	now := time.Now()
	l := SystemLead{
		ID: uuid.NewString(), Status: status, SystemType: "heat_pump",
		Address: "12 Elm St", City: "Portland", State: "OR", Zip: "97201",
		Price: decimal.RequireFromString("49.99"), CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.db.Create(&l).Error)
	return l.ID
}

func TestClaimSystemLeadOnce(t *testing.T) {
	db := testutil.OpenDB(t, &SystemLead{}, &HESRequest{}, &ContractorLeadStatus{})
	repo := NewRepo(db)
	ctx := context.Background()
	id := seedSystemLead(t, repo, SystemLeadAvailable)

	ok, err := repo.Claim(ctx, TypeSystemLead, id, "c1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Claim(ctx, TypeSystemLead, id, "c2", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second claim must match zero rows")

	s, err := repo.Summary(ctx, TypeSystemLead, id)
	require.NoError(t, err)
	assert.Equal(t, SystemLeadPurchased, s.Status)
	assert.Equal(t, "c1", s.PurchasedBy)
}

func TestClaimHESRequest(t *testing.T) {
	db := testutil.OpenDB(t, &SystemLead{}, &HESRequest{}, &ContractorLeadStatus{})
	repo := NewRepo(db)
	ctx := context.Background()

	now := time.Now()
	h := HESRequest{ID: uuid.NewString(), Status: HESUnassigned, PropertyAddress: "3 Oak Ave",
		Price: decimal.NewFromInt(120), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Create(&h).Error)

	ok, err := repo.Claim(ctx, TypeHESRequest, h.ID, "c1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	s, err := repo.Summary(ctx, TypeHESRequest, h.ID)
	require.NoError(t, err)
	assert.Equal(t, HESAssigned, s.Status)
	assert.Equal(t, "3 Oak Ave", s.Address)
}

func TestClaimConcurrent(t *testing.T) {
	db := testutil.OpenDB(t, &SystemLead{}, &HESRequest{}, &ContractorLeadStatus{})
	repo := NewRepo(db)
	id := seedSystemLead(t, repo, SystemLeadAvailable)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := repo.Claim(context.Background(), TypeSystemLead, id, uuid.NewString(), time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTrackIsIdempotent(t *testing.T) {
	db := testutil.OpenDB(t, &SystemLead{}, &HESRequest{}, &ContractorLeadStatus{})
	repo := NewRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Track(ctx, "c1", "l1", TypeSystemLead, time.Now()))
	require.NoError(t, repo.Track(ctx, "c1", "l1", TypeSystemLead, time.Now()))

	var owners []string
	require.NoError(t, db.Model(&ContractorLeadStatus{}).
		Where("lead_id = ? AND lead_type = ?", "l1", TypeSystemLead).
		Pluck("contractor_id", &owners).Error)
	assert.Equal(t, []string{"c1"}, owners)
}

func TestUnknownType(t *testing.T) {
	db := testutil.OpenDB(t, &SystemLead{}, &HESRequest{}, &ContractorLeadStatus{})
	repo := NewRepo(db)

	_, err := repo.Claim(context.Background(), Type("bogus"), "x", "c1", time.Now())
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, Type("bogus").Valid())
	assert.True(t, TypeHESRequest.Valid())
}
