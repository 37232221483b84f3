package entities

import "time"

type BookStatus string

const (
	BookStatusAvailable  BookStatus = "available"
	BookStatusReserved   BookStatus = "reserved"
	BookStatusCheckedOut BookStatus = "checked_out"
)

// BookStatuses lists every status a book can be in, in lifecycle order.
var BookStatuses = []BookStatus{
	BookStatusAvailable,
	BookStatusReserved,
	BookStatusCheckedOut,
}

// Valid reports whether s is one of the known book statuses.
func (s BookStatus) Valid() bool {
	for _, known := range BookStatuses {
		if s == known {
			return true
		}
	}
	return false
}

type Book struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	Name             string        `gorm:"index;size:512;not null" json:"name"`
	Author           string        `gorm:"index;size:256;not null" json:"author"`
	Status           BookStatus    `gorm:"index;size:20;not null;default:'available'" json:"status"`
	ReservationCount int           `gorm:"not null;default:0" json:"reservation_count"`
	Reservations     []Reservation `gorm:"foreignKey:BookID" json:"reservations,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
