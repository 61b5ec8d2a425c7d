package users

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is the read-side view of the accounts table. Accounts are managed by
// the auth service; this module never writes them.
type User struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	Email       string    `gorm:"type:varchar(255);not null" json:"email"`
	Role        string    `gorm:"type:varchar(32);not null" json:"role"`
	FirstName   *string   `gorm:"type:varchar(128)" json:"first_name,omitempty"`
	LastName    *string   `gorm:"type:varchar(128)" json:"last_name,omitempty"`
	CompanyName *string   `gorm:"type:varchar(255)" json:"company_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

func (u User) DisplayName() string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	if len(parts) == 0 {
		return u.Email
	}
	return strings.Join(parts, " ")
}

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error
	return u, err
}
