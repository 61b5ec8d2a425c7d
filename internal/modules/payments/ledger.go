package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
)

// Ledger appends payment records. Recording is idempotent on
// PaymentRecord.IdempotencyKey, which carries a unique index.
type Ledger struct{ db *gorm.DB }

func NewLedger(db *gorm.DB) *Ledger { return &Ledger{db: db} }

// WithTx returns a Ledger bound to tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger { return &Ledger{db: tx} }

// Exists reports whether a payment was already recorded for the external key.
func (l *Ledger) Exists(ctx context.Context, externalID string) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&PaymentRecord{}).
		Where("idempotency_key = ?", externalID).
		Count(&n).Error
	return n > 0, err
}

// Record inserts p unless a row with the same idempotency key exists, in which
// case the existing row is returned and created is false. The insert uses
// ON CONFLICT DO NOTHING, so two racing deliveries still produce one row.
func (l *Ledger) Record(ctx context.Context, p PaymentRecord) (rec PaymentRecord, created bool, err error) {
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = p.ExternalPaymentIntentID
	}
	if p.IdempotencyKey == "" {
		return PaymentRecord{}, false, errors.New("payment record without idempotency key")
	}

	var existing PaymentRecord
	e := l.db.WithContext(ctx).First(&existing, "idempotency_key = ?", p.IdempotencyKey).Error
	if e == nil {
		return existing, false, nil
	}
	if !errors.Is(e, gorm.ErrRecordNotFound) {
		return PaymentRecord{}, false, e
	}

	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	if res.Error != nil {
		return PaymentRecord{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race to a concurrent insert
		if err := l.db.WithContext(ctx).First(&existing, "idempotency_key = ?", p.IdempotencyKey).Error; err != nil {
			return PaymentRecord{}, false, err
		}
		return existing, false, nil
	}
	return p, true, nil
}

func (l *Ledger) Get(ctx context.Context, id string) (PaymentRecord, error) {
	var p PaymentRecord
	err := l.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return p, err
}

// Lock reads a payment with a row lock held until the surrounding transaction
// ends. SQLite has no row locks; its single writer serializes instead.
func (l *Ledger) Lock(ctx context.Context, id string) (PaymentRecord, error) {
	var p PaymentRecord
	err := l.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	return p, err
}

// FindCompletedForLead returns the latest completed payment contractorID made for the lead.
func (l *Ledger) FindCompletedForLead(ctx context.Context, contractorID string, t leads.Type, leadID string) (PaymentRecord, error) {
	var p PaymentRecord
	err := l.db.WithContext(ctx).
		Where("contractor_id = ? AND status = ?", contractorID, StatusCompleted).
		Where(leadColumn(t)+" = ?", leadID).
		Order("created_at DESC").
		First(&p).Error
	return p, err
}

// MarkRefunded moves a completed payment to refunded. Returns rows affected.
func (l *Ledger) MarkRefunded(ctx context.Context, id string, at time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Model(&PaymentRecord{}).
		Where("id = ? AND status = ?", id, StatusCompleted).
		Updates(map[string]any{
			"status":      StatusRefunded,
			"refund_date": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}

// MarkChargeRefunded applies a processor-side refund notification. Matching
// zero rows is not an error: the payment may not be recorded yet or may
// already be refunded.
func (l *Ledger) MarkChargeRefunded(ctx context.Context, chargeID, intentID string, at time.Time) (int64, error) {
	q := l.db.WithContext(ctx).Model(&PaymentRecord{}).Where("status = ?", StatusCompleted)
	switch {
	case chargeID != "" && intentID != "":
		q = q.Where("(external_charge_id = ? OR external_payment_intent_id = ?)", chargeID, intentID)
	case chargeID != "":
		q = q.Where("external_charge_id = ?", chargeID)
	case intentID != "":
		q = q.Where("external_payment_intent_id = ?", intentID)
	default:
		return 0, nil
	}
	res := q.Updates(map[string]any{
		"status":      StatusRefunded,
		"refund_date": at,
		"updated_at":  at,
	})
	return res.RowsAffected, res.Error
}

// PurchaseTotals summarises a contractor's successful purchases (completed or later refunded).
type PurchaseTotals struct {
	Count   int64
	Average decimal.Decimal
}

func (l *Ledger) PurchaseTotals(ctx context.Context, contractorID string) (PurchaseTotals, error) {
	var rows []PaymentRecord
	if err := l.db.WithContext(ctx).
		Select("amount").
		Where("contractor_id = ? AND status IN ?", contractorID, []Status{StatusCompleted, StatusRefunded}).
		Find(&rows).Error; err != nil {
		return PurchaseTotals{}, err
	}
	out := PurchaseTotals{Count: int64(len(rows)), Average: decimal.Zero}
	if len(rows) == 0 {
		return out, nil
	}
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Amount)
	}
	out.Average = sum.Div(decimal.NewFromInt(int64(len(rows)))).Round(2)
	return out, nil
}
