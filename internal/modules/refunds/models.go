package refunds

import (
	"time"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/leads"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusDenied            Status = "denied"
	StatusMoreInfoRequested Status = "more_info_requested"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusApproved || s == StatusDenied }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied, StatusMoreInfoRequested:
		return true
	}
	return false
}

// openStatuses are the states an admin decision can start from.
var openStatuses = []Status{StatusPending, StatusMoreInfoRequested}

type ReasonCategory string

const (
	ReasonDuplicate              ReasonCategory = "duplicate"
	ReasonInvalidContact         ReasonCategory = "invalid_contact"
	ReasonOutOfServiceArea       ReasonCategory = "out_of_service_area"
	ReasonWrongInformation       ReasonCategory = "wrong_information"
	ReasonHomeownerNotInterested ReasonCategory = "homeowner_not_interested"
	ReasonOther                  ReasonCategory = "other"
)

func (c ReasonCategory) Valid() bool {
	switch c {
	case ReasonDuplicate, ReasonInvalidContact, ReasonOutOfServiceArea,
		ReasonWrongInformation, ReasonHomeownerNotInterested, ReasonOther:
		return true
	}
	return false
}

type RefundRequest struct {
	ID           string     `gorm:"type:char(36);primaryKey" json:"id"`
	PaymentID    string     `gorm:"type:char(36);not null;index:ix_refund_requests_payment" json:"payment_id"`
	ContractorID string     `gorm:"type:char(36);not null;index:ix_refund_requests_contractor" json:"contractor_id"`
	LeadID       string     `gorm:"type:char(36);not null" json:"lead_id"`
	LeadType     leads.Type `gorm:"type:varchar(32);not null" json:"lead_type"`

	Reason         string         `gorm:"type:text;not null" json:"reason"`
	ReasonCategory ReasonCategory `gorm:"type:varchar(64);not null" json:"reason_category"`
	Notes          *string        `gorm:"type:text" json:"notes,omitempty"`

	RequestedDate time.Time `gorm:"not null;index:ix_refund_requests_requested" json:"requested_date"`
	Status        Status    `gorm:"type:varchar(32);not null;index:ix_refund_requests_status" json:"status"`

	ReviewedBy   *string    `gorm:"type:char(36)" json:"reviewed_by,omitempty"`
	ReviewedDate *time.Time `json:"reviewed_date,omitempty"`
	AdminNotes   *string    `gorm:"type:text" json:"admin_notes,omitempty"`
	RefundDate   *time.Time `json:"refund_date,omitempty"`

	InfoRequested     *string    `gorm:"type:text" json:"info_requested,omitempty"`
	InfoRequestedDate *time.Time `json:"info_requested_date,omitempty"`
	InfoResponse      *string    `gorm:"type:text" json:"info_response,omitempty"`
	InfoResponseDate  *time.Time `json:"info_response_date,omitempty"`

	// RiskScore is advisory (0-100) and never gates a decision.
	RiskScore        int     `gorm:"not null;default:0" json:"risk_score"`
	EvidenceURL      *string `gorm:"type:varchar(512)" json:"evidence_url,omitempty"`
	ExternalRefundID *string `gorm:"type:varchar(128)" json:"external_refund_id,omitempty"`

	// Set while an admin's approval is between claim and finalize; the
	// processor refund is issued inside that window.
	ApprovalStartedBy *string    `gorm:"type:char(36)" json:"approval_started_by,omitempty"`
	ApprovalStartedAt *time.Time `json:"approval_started_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (RefundRequest) TableName() string { return "refund_requests" }

// approvalClaimTTL bounds how long a crashed approval blocks the request.
// Taking over a stale claim is safe: the processor idempotency key is per request.
const approvalClaimTTL = 2 * time.Minute

// ApprovalInFlight reports whether another approval holds a live claim.
func (r RefundRequest) ApprovalInFlight(now time.Time) bool {
	return r.ApprovalStartedAt != nil && r.ApprovalStartedAt.After(now.Add(-approvalClaimTTL))
}

// Audit actions.
const (
	ActionRequested     = "requested"
	ActionApproved      = "approved"
	ActionDenied        = "denied"
	ActionInfoRequested = "info_requested"
	ActionInfoProvided  = "info_provided"
	ActionEvidence      = "evidence_attached"
	// refund issued at the processor but the request moved on before it was recorded
	ActionRefundIssued = "refund_issued"
)

// AuditEntry is one append-only row of the refund audit trail.
type AuditEntry struct {
	ID              string    `gorm:"type:char(36);primaryKey" json:"id"`
	RefundRequestID string    `gorm:"type:char(36);not null;index:ix_refund_audit_request" json:"refund_request_id"`
	ActorID         string    `gorm:"type:char(36);not null" json:"actor_id"`
	Action          string    `gorm:"type:varchar(32);not null" json:"action"`
	FromStatus      *Status   `gorm:"type:varchar(32)" json:"from_status,omitempty"`
	ToStatus        Status    `gorm:"type:varchar(32);not null" json:"to_status"`
	Note            *string   `gorm:"type:text" json:"note,omitempty"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
}

func (AuditEntry) TableName() string { return "refund_audit_log" }

// Models lists the tables this package owns, for migrations.
func Models() []any { return []any{&RefundRequest{}, &AuditEntry{}} }
