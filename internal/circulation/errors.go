package circulation

import "errors"

// Validation errors. The messages are shown to library users as-is.
var (
	ErrInvalidDate        = errors.New("invalid date, expected YYYY-MM-DD")
	ErrReservationExists  = errors.New("reservation already exists for that date")
	ErrPastDate           = errors.New("cannot reserve a past date")
	ErrBookNotAvailable   = errors.New("book is not available")
	ErrBookNotReserved    = errors.New("book is not in reserved state")
	ErrPickupDateMismatch = errors.New("pickup date mismatch")
	ErrBookNotCheckedOut  = errors.New("book is not checked out")
	ErrInvalidStatus      = errors.New("select a valid option")
	ErrInvalidBook        = errors.New("book name and author are required")
	ErrSelfDelete         = errors.New("you cannot delete your own account")
)

// Not-found errors.
var (
	ErrBookNotFound        = errors.New("book not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrUserNotFound        = errors.New("user not found")
)

// Authorization errors.
var (
	ErrNotOwner         = errors.New("you can only manage your own reservations")
	ErrNotAdmin         = errors.New("you are not authorized to perform this action")
	ErrNotAuthenticated = errors.New("you must be logged in")
)

// ErrorKind classifies an error for presentation.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindNone
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindNone:
		return "none"
	default:
		return "internal"
	}
}

var kinds = map[ErrorKind][]error{
	KindValidation: {
		ErrInvalidDate, ErrReservationExists, ErrPastDate, ErrBookNotAvailable,
		ErrBookNotReserved, ErrPickupDateMismatch, ErrBookNotCheckedOut,
		ErrInvalidStatus, ErrInvalidBook, ErrSelfDelete,
	},
	KindNotFound:  {ErrBookNotFound, ErrReservationNotFound, ErrUserNotFound},
	KindForbidden: {ErrNotOwner, ErrNotAdmin, ErrNotAuthenticated},
}

// Kind maps err to its kind. A nil error is KindNone; anything unrecognised is KindInternal.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for kind, sentinels := range kinds {
		for _, sentinel := range sentinels {
			if errors.Is(err, sentinel) {
				return kind
			}
		}
	}
	return KindInternal
}

// Public returns the sentinel behind err, whose message is safe to show.
// Internal errors yield nil.
func Public(err error) error {
	for _, sentinels := range kinds {
		for _, sentinel := range sentinels {
			if errors.Is(err, sentinel) {
				return sentinel
			}
		}
	}
	return nil
}
