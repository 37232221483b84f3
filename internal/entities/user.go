package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserRole string

const (
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
)

type User struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Username     string          `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email        string          `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string          `gorm:"size:100;not null" json:"-"`
	Role         UserRole        `gorm:"size:20;not null;default:'member'" json:"role"`
	// Balance is stored as its decimal string; SQLite would round a numeric column through float64.
	Balance decimal.Decimal `gorm:"type:varchar(40);not null;default:'0'" json:"balance"`

	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	FailedLoginCount int        `gorm:"not null;default:0" json:"-"`
	LockedUntil      *time.Time `json:"-"`

	Reservations []Reservation `gorm:"foreignKey:UserID" json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsAdmin reports whether the user may manage the catalog and accounts.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
