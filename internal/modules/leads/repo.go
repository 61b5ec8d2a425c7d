package leads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUnknownType = errors.New("unknown lead type")

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// WithTx returns a Repo bound to tx.
func (r *Repo) WithTx(tx *gorm.DB) *Repo { return &Repo{db: tx} }

// Claim transfers ownership of an unclaimed lead to contractorID.
// It is a single conditional UPDATE, so of two concurrent claims at most one
// matches a row. Returns false when the lead was no longer claimable.
func (r *Repo) Claim(ctx context.Context, t Type, leadID, contractorID string, at time.Time) (bool, error) {
	var res *gorm.DB
	switch t {
	case TypeSystemLead:
		res = r.db.WithContext(ctx).Model(&SystemLead{}).
			Where("id = ? AND status = ?", leadID, SystemLeadAvailable).
			Updates(map[string]any{
				"status":         SystemLeadPurchased,
				"purchased_by":   contractorID,
				"purchased_date": at,
				"updated_at":     at,
			})
	case TypeHESRequest:
		res = r.db.WithContext(ctx).Model(&HESRequest{}).
			Where("id = ? AND status = ?", leadID, HESUnassigned).
			Updates(map[string]any{
				"status":         HESAssigned,
				"purchased_by":   contractorID,
				"purchased_date": at,
				"updated_at":     at,
			})
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Track creates the contractor's pipeline row for a purchased lead.
// An existing row is left untouched.
func (r *Repo) Track(ctx context.Context, contractorID, leadID string, t Type, at time.Time) error {
	row := ContractorLeadStatus{
		ID:           uuid.NewString(),
		ContractorID: contractorID,
		LeadID:       leadID,
		LeadType:     t,
		Status:       TrackingNew,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// Summary loads a lead from the catalog matching t.
func (r *Repo) Summary(ctx context.Context, t Type, leadID string) (Summary, error) {
	switch t {
	case TypeSystemLead:
		var l SystemLead
		if err := r.db.WithContext(ctx).First(&l, "id = ?", leadID).Error; err != nil {
			return Summary{}, err
		}
		return Summary{
			ID: l.ID, Type: t, Status: l.Status,
			Address: l.Address, City: l.City, State: l.State, Zip: l.Zip,
			Price: l.Price, PurchasedBy: deref(l.PurchasedBy),
		}, nil
	case TypeHESRequest:
		var h HESRequest
		if err := r.db.WithContext(ctx).First(&h, "id = ?", leadID).Error; err != nil {
			return Summary{}, err
		}
		return Summary{
			ID: h.ID, Type: t, Status: h.Status,
			Address: h.PropertyAddress, City: h.City, State: h.State, Zip: h.Zip,
			Price: h.Price, PurchasedBy: deref(h.PurchasedBy),
		}, nil
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// CountClosed counts leads the contractor marked as closed (won).
func (r *Repo) CountClosed(ctx context.Context, contractorID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ContractorLeadStatus{}).
		Where("contractor_id = ? AND status = ?", contractorID, TrackingClosed).
		Count(&n).Error
	return n, err
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
