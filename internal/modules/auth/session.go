package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Session rows are issued by the login service; here they are only read.
type Session struct {
	ID        string    `gorm:"type:varchar(128);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;index:ix_sessions_user_id"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

var ErrNoSession = errors.New("no valid session")

type Sessions struct{ db *gorm.DB }

func NewSessions(db *gorm.DB) *Sessions { return &Sessions{db: db} }

// Resolve turns a session token into the caller's Context. Expired or
// unknown tokens, and tokens whose user is gone, give ErrNoSession.
func (s *Sessions) Resolve(ctx context.Context, token string, now time.Time) (Context, error) {
	if token == "" {
		return Context{}, ErrNoSession
	}
	var row struct {
		UserID string
		Role   string
	}
	err := s.db.WithContext(ctx).
		Table("sessions").
		Select("sessions.user_id AS user_id, users.role AS role").
		Joins("JOIN users ON users.id = sessions.user_id").
		Where("sessions.id = ? AND sessions.expires_at > ?", token, now).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Context{}, ErrNoSession
	}
	if err != nil {
		return Context{}, err
	}
	return Context{UserID: row.UserID, Role: Role(row.Role)}, nil
}
