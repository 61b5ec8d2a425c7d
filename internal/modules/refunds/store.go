package refunds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is plain persistence for refund requests. Business rules live in Service.
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// WithTx returns a Store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store { return &Store{db: tx} }

func (s *Store) Create(ctx context.Context, r *RefundRequest) error {
	now := time.Now()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) Get(ctx context.Context, id string) (RefundRequest, error) {
	var r RefundRequest
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	return r, err
}

// Filters narrows List. Zero values are ignored; DateFrom and DateTo are
// inclusive bounds on requested_date.
type Filters struct {
	Status       Status
	ContractorID string
	DateFrom     *time.Time
	DateTo       *time.Time
}

// List returns matching requests, newest first.
func (s *Store) List(ctx context.Context, f Filters) ([]RefundRequest, error) {
	q := s.db.WithContext(ctx).Model(&RefundRequest{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ContractorID != "" {
		q = q.Where("contractor_id = ?", f.ContractorID)
	}
	if f.DateFrom != nil {
		q = q.Where("requested_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		q = q.Where("requested_date <= ?", *f.DateTo)
	}

	out := []RefundRequest{}
	err := q.Order("requested_date DESC").Order("id DESC").Find(&out).Error
	return out, err
}

// FindOpenForPayment returns the pending or more_info_requested request for a
// payment. found is false when there is none.
func (s *Store) FindOpenForPayment(ctx context.Context, paymentID string) (r RefundRequest, found bool, err error) {
	err = s.db.WithContext(ctx).
		Where("payment_id = ? AND status IN ?", paymentID, openStatuses).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RefundRequest{}, false, nil
	}
	return r, err == nil, err
}

// UpdateStatus applies updates only while the row is in one of from and no
// live approval claim is held on it.
// Zero rows affected means the request moved on (or does not exist).
func (s *Store) UpdateStatus(ctx context.Context, id string, from []Status, updates map[string]any) (int64, error) {
	now := time.Now().UTC()
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = now
	}
	res := s.db.WithContext(ctx).Model(&RefundRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Where("(approval_started_at IS NULL OR approval_started_at <= ?)", now.Add(-approvalClaimTTL)).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ClaimApproval stamps an open request as being approved by adminID. A claim
// that went stale can be taken over. Zero rows means the request was decided
// or another approval is in flight.
func (s *Store) ClaimApproval(ctx context.Context, id, adminID string, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&RefundRequest{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Where("(approval_started_at IS NULL OR approval_started_at <= ?)", now.Add(-approvalClaimTTL)).
		Updates(map[string]any{
			"approval_started_by": adminID,
			"approval_started_at": now,
			"updated_at":          now,
		})
	return res.RowsAffected, res.Error
}

// ReleaseApproval drops adminID's claim, e.g. after the processor refused.
func (s *Store) ReleaseApproval(ctx context.Context, id, adminID string) error {
	return s.db.WithContext(ctx).Model(&RefundRequest{}).
		Where("id = ? AND approval_started_by = ?", id, adminID).
		Updates(map[string]any{"approval_started_by": nil, "approval_started_at": nil}).Error
}

// FinishApproval applies updates and clears the claim, but only while adminID
// still holds it on an open request.
func (s *Store) FinishApproval(ctx context.Context, id, adminID string, updates map[string]any) (int64, error) {
	updates["approval_started_by"] = nil
	updates["approval_started_at"] = nil
	res := s.db.WithContext(ctx).Model(&RefundRequest{}).
		Where("id = ? AND status IN ? AND approval_started_by = ?", id, openStatuses, adminID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

type Counts struct {
	Total    int64
	Approved int64
}

// CountByContractor counts every request a contractor filed and how many were approved.
func (s *Store) CountByContractor(ctx context.Context, contractorID string) (Counts, error) {
	var rows []struct {
		Status Status
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&RefundRequest{}).
		Select("status, COUNT(*) AS n").
		Where("contractor_id = ?", contractorID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Counts{}, err
	}
	var c Counts
	for _, r := range rows {
		c.Total += r.N
		if r.Status == StatusApproved {
			c.Approved += r.N
		}
	}
	return c, nil
}

// AppendAudit writes one audit row.
func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&e).Error
}

// Audit returns the trail for one request, oldest first.
func (s *Store) Audit(ctx context.Context, refundRequestID string) ([]AuditEntry, error) {
	out := []AuditEntry{}
	err := s.db.WithContext(ctx).
		Where("refund_request_id = ?", refundRequestID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}
