package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// PaymentRecord is one row of the payment ledger. Rows are never deleted; only
// Status, RefundDate and UpdatedAt change after insert.
type PaymentRecord struct {
	ID           string  `gorm:"type:char(36);primaryKey" json:"id"`
	ContractorID string  `gorm:"type:char(36);not null;index:ix_payments_contractor" json:"contractor_id"`
	SystemLeadID *string `gorm:"type:char(36);index:ix_payments_system_lead" json:"system_lead_id,omitempty"`
	HESRequestID *string `gorm:"type:char(36);index:ix_payments_hes_request" json:"hes_request_id,omitempty"`

	ExternalPaymentIntentID string  `gorm:"type:varchar(128);not null;index:ix_payments_intent" json:"external_payment_intent_id"`
	ExternalChargeID        *string `gorm:"type:varchar(128);index:ix_payments_charge" json:"external_charge_id,omitempty"`
	ExternalSessionID       *string `gorm:"type:varchar(128)" json:"external_session_id,omitempty"`
	// IdempotencyKey is the payment-intent id for completed payments and
	// failed:<intent>:<event> for failed attempts.
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex:ux_payments_idempotency_key" json:"-"`

	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status         Status          `gorm:"type:varchar(32);not null" json:"status"`
	FailureMessage *string         `gorm:"type:varchar(255)" json:"failure_message,omitempty"`
	RefundDate     *time.Time      `json:"refund_date,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (PaymentRecord) TableName() string { return "payments" }

// SetLead sets exactly one of the lead reference columns.
func (p *PaymentRecord) SetLead(t leads.Type, id string) {
	p.SystemLeadID, p.HESRequestID = nil, nil
	switch t {
	case leads.TypeSystemLead:
		p.SystemLeadID = &id
	case leads.TypeHESRequest:
		p.HESRequestID = &id
	}
}

// ChargeRef is the processor reference a refund is issued against.
func (p PaymentRecord) ChargeRef() string {
	if p.ExternalChargeID != nil && *p.ExternalChargeID != "" {
		return *p.ExternalChargeID
	}
	return ""
}

func leadColumn(t leads.Type) string {
	if t == leads.TypeHESRequest {
		return "hes_request_id"
	}
	return "system_lead_id"
}
