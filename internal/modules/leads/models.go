package leads

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type distinguishes the two purchasable lead catalogs.
type Type string

const (
	TypeSystemLead Type = "system_lead"
	TypeHESRequest Type = "hes_request"
)

func (t Type) Valid() bool { return t == TypeSystemLead || t == TypeHESRequest }

const (
	SystemLeadAvailable = "available"
	SystemLeadPurchased = "purchased"

	HESUnassigned = "unassigned"
	HESAssigned   = "assigned"
)

// Per-contractor pipeline status.
const (
	TrackingNew       = "new"
	TrackingContacted = "contacted"
	TrackingQuoted    = "quoted"
	TrackingClosed    = "closed"
	TrackingLost      = "lost"
)

type SystemLead struct {
	ID            string          `gorm:"type:char(36);primaryKey" json:"id"`
	Status        string          `gorm:"type:varchar(32);not null;index:ix_system_leads_status" json:"status"`
	SystemType    string          `gorm:"type:varchar(64)" json:"system_type"`
	Address       string          `gorm:"type:varchar(255)" json:"address"`
	City          string          `gorm:"type:varchar(128)" json:"city"`
	State         string          `gorm:"type:varchar(64)" json:"state"`
	Zip           string          `gorm:"type:varchar(16)" json:"zip"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	PurchasedBy   *string         `gorm:"type:char(36)" json:"purchased_by,omitempty"`
	PurchasedDate *time.Time      `json:"purchased_date,omitempty"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (SystemLead) TableName() string { return "system_leads" }

type HESRequest struct {
	ID              string          `gorm:"type:char(36);primaryKey" json:"id"`
	Status          string          `gorm:"type:varchar(32);not null;index:ix_hes_requests_status" json:"status"`
	PropertyAddress string          `gorm:"type:varchar(255)" json:"property_address"`
	City            string          `gorm:"type:varchar(128)" json:"city"`
	State           string          `gorm:"type:varchar(64)" json:"state"`
	Zip             string          `gorm:"type:varchar(16)" json:"zip"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	PurchasedBy     *string         `gorm:"type:char(36)" json:"purchased_by,omitempty"`
	PurchasedDate   *time.Time      `json:"purchased_date,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (HESRequest) TableName() string { return "hes_requests" }

type ContractorLeadStatus struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"id"`
	ContractorID string    `gorm:"type:char(36);not null;uniqueIndex:ux_contractor_lead,priority:1" json:"contractor_id"`
	LeadID       string    `gorm:"type:char(36);not null;uniqueIndex:ux_contractor_lead,priority:2" json:"lead_id"`
	LeadType     Type      `gorm:"type:varchar(32);not null;uniqueIndex:ux_contractor_lead,priority:3" json:"lead_type"`
	Status       string    `gorm:"type:varchar(32);not null" json:"status"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (ContractorLeadStatus) TableName() string { return "contractor_lead_status" }

// Summary is the catalog-neutral view of a lead used by refund review.
type Summary struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Status      string          `json:"status"`
	Address     string          `json:"address"`
	City        string          `json:"city"`
	State       string          `json:"state"`
	Zip         string          `json:"zip"`
	Price       decimal.Decimal `json:"price"`
	PurchasedBy string          `json:"purchased_by,omitempty"`
}
