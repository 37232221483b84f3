package circulation

import (
	"strings"
	"time"

	"github.com/mrlokans/library/internal/entities"
)

// Derive computes a book's status and reservation count from its open
// reservations. A reservation with a due date means the book is out; any
// other reservation means it is held; no reservations means it is on the shelf.
func Derive(reservations []entities.Reservation) (entities.BookStatus, int) {
	status := entities.BookStatusAvailable
	for _, r := range reservations {
		if r.CheckedOut() {
			return entities.BookStatusCheckedOut, len(reservations)
		}
		status = entities.BookStatusReserved
	}
	return status, len(reservations)
}

// decideReserve checks whether actor may reserve book for date.
//
//	ERROR: ErrReservationExists if the book already has a reservation for date
//	ERROR: ErrPastDate if date is before today
//	ERROR: ErrBookNotAvailable if the book is reserved or checked out
func decideReserve(book *entities.Book, dateTaken bool, date, today time.Time) error {
	if dateTaken {
		return ErrReservationExists
	}
	if date.Before(today) {
		return ErrPastDate
	}
	if book.Status != entities.BookStatusAvailable {
		return ErrBookNotAvailable
	}
	return nil
}

// decidePickup checks whether actor may pick up book against reservation.
// A nil reservation means it does not exist.
//
//	ERROR: ErrBookNotReserved if the book is not reserved
//	ERROR: ErrReservationNotFound if the reservation is missing or for another book
//	ERROR: ErrNotOwner if the actor neither owns the reservation nor is an admin
//	ERROR: ErrPickupDateMismatch if the reservation is not for today
func decidePickup(actor Actor, book *entities.Book, reservation *entities.Reservation, today time.Time) error {
	if book.Status != entities.BookStatusReserved {
		return ErrBookNotReserved
	}
	if reservation == nil || reservation.BookID != book.ID {
		return ErrReservationNotFound
	}
	if !actor.Owns(reservation) {
		return ErrNotOwner
	}
	if !StoredDate(reservation.ReservationDate).Equal(today) {
		return ErrPickupDateMismatch
	}
	return nil
}

// decideReturn checks whether actor may return book against reservation.
//
//	ERROR: ErrBookNotCheckedOut if the book is not checked out, or this reservation was never picked up
//	ERROR: ErrReservationNotFound if the reservation is missing or for another book
//	ERROR: ErrNotOwner if the actor neither owns the reservation nor is an admin
func decideReturn(actor Actor, book *entities.Book, reservation *entities.Reservation) error {
	if book.Status != entities.BookStatusCheckedOut {
		return ErrBookNotCheckedOut
	}
	if reservation == nil || reservation.BookID != book.ID {
		return ErrReservationNotFound
	}
	if !actor.Owns(reservation) {
		return ErrNotOwner
	}
	if !reservation.CheckedOut() {
		return ErrBookNotCheckedOut
	}
	return nil
}

// decideCancel checks whether actor may cancel reservation. Cancelling has
// no state precondition.
func decideCancel(actor Actor, reservation *entities.Reservation) error {
	if reservation == nil {
		return ErrReservationNotFound
	}
	if !actor.Owns(reservation) {
		return ErrNotOwner
	}
	return nil
}

// decideSetStatus checks an administrative status override.
func decideSetStatus(actor Actor, status entities.BookStatus) error {
	if !actor.IsAdmin() {
		return ErrNotAdmin
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

const (
	maxBookNameLength   = 512
	maxBookAuthorLength = 256
)

// decideAddBook validates a new catalog entry and returns it normalised.
func decideAddBook(actor Actor, name, author string) (*entities.Book, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotAdmin
	}
	name = strings.TrimSpace(name)
	author = strings.TrimSpace(author)
	if name == "" || author == "" || len(name) > maxBookNameLength || len(author) > maxBookAuthorLength {
		return nil, ErrInvalidBook
	}
	return &entities.Book{
		Name:   name,
		Author: author,
		Status: entities.BookStatusAvailable,
	}, nil
}
