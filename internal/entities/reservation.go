package entities

import (
	"time"

	"gorm.io/gorm"
)

// Reservation is a user's claim on a book for a pickup date. Once the book is
// picked up DueDate is set and the reservation doubles as the checkout record.
//
// ReservationDate and DueDate are civil dates stored as UTC midnight.
type Reservation struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"index;not null" json:"user_id"`
	BookID          uint       `gorm:"not null;uniqueIndex:idx_reservations_book_date,priority:1" json:"book_id"`
	ReservationDate time.Time  `gorm:"not null;uniqueIndex:idx_reservations_book_date,priority:2" json:"reservation_date"`
	DueDate         *time.Time `gorm:"index" json:"due_date,omitempty"`
	User            User       `gorm:"foreignKey:UserID" json:"-"`
	Book            Book       `gorm:"foreignKey:BookID" json:"book,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CheckedOut reports whether the reserved book has been picked up.
func (r Reservation) CheckedOut() bool {
	return r.DueDate != nil
}

// AfterFind puts loaded dates back in UTC; postgres drivers scan timestamptz
// into the host zone, which would move a midnight onto the previous day.
func (r *Reservation) AfterFind(*gorm.DB) error {
	r.ReservationDate = r.ReservationDate.UTC()
	if r.DueDate != nil {
		due := r.DueDate.UTC()
		r.DueDate = &due
	}
	return nil
}
