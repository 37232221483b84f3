package circulation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/database/books"
	"github.com/mrlokans/library/internal/database/reservations"
	"github.com/mrlokans/library/internal/entities"
)

// DefaultLoanDays is the loan period applied at pickup.
const DefaultLoanDays = 30

// AuditLogger receives a record of every state change.
type AuditLogger interface {
	LogCirculation(ctx context.Context, userID uint, action string, bookID uint, description string, err error)
	LogCatalog(ctx context.Context, userID uint, action string, bookID uint, description string)
	LogAccount(ctx context.Context, userID uint, action string, targetUserID uint, description string)
}

type noopAuditLogger struct{}

func (noopAuditLogger) LogCirculation(context.Context, uint, string, uint, string, error) {}
func (noopAuditLogger) LogCatalog(context.Context, uint, string, uint, string)           {}
func (noopAuditLogger) LogAccount(context.Context, uint, string, uint, string)           {}

// Service applies lifecycle transitions to the catalog and reservation ledger.
type Service struct {
	db       *gorm.DB
	clock    Clock
	loanDays int
	audit    AuditLogger
}

// Option configures a Service.
type Option func(*Service)

// WithAuditLogger records every transition through logger.
func WithAuditLogger(logger AuditLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.audit = logger
		}
	}
}

// NewService creates a lifecycle service. A non-positive loanDays means DefaultLoanDays.
func NewService(db *gorm.DB, clock Clock, loanDays int, opts ...Option) *Service {
	if loanDays <= 0 {
		loanDays = DefaultLoanDays
	}
	if clock == nil {
		clock = NewClock(time.UTC)
	}
	s := &Service{
		db:       db,
		clock:    clock,
		loanDays: loanDays,
		audit:    noopAuditLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the library's current civil date.
func (s *Service) Today() time.Time {
	return s.clock.Today()
}

// LoanDays returns the loan period applied at pickup.
func (s *Service) LoanDays() int {
	return s.loanDays
}

// Reserve claims a book for the given pickup date.
func (s *Service) Reserve(ctx context.Context, actor Actor, bookID uint, rawDate string) (*entities.Reservation, error) {
	if actor.UserID == 0 {
		return nil, ErrNotAuthenticated
	}
	date, err := ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	today := s.clock.Today()

	var created *entities.Reservation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := books.NewRepository(tx)
		reservationRepo := reservations.NewRepository(tx)

		book, err := bookRepo.GetByID(bookID)
		if err != nil {
			return notFound(err, ErrBookNotFound)
		}

		taken, err := reservationRepo.ExistsForDate(book.ID, date)
		if err != nil {
			return fmt.Errorf("failed to check reservations: %w", err)
		}

		if err := decideReserve(book, taken, date, today); err != nil {
			return err
		}

		created = &entities.Reservation{
			UserID:          actor.UserID,
			BookID:          book.ID,
			ReservationDate: date,
		}
		if err := reservationRepo.Create(created); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReservationExists
			}
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		return rederive(bookRepo, reservationRepo, book.ID)
	})

	s.audit.LogCirculation(ctx, actor.UserID, "reserve", bookID, "Reserved for "+date.Format(DateLayout), err)
	if err != nil {
		return nil, err
	}
	log.Printf("[CIRCULATION] User %d reserved book %d for %s", actor.UserID, bookID, date.Format(DateLayout))
	return created, nil
}

// Pickup checks a reserved book out to the reservation's owner. The due date
// is today plus the loan period.
func (s *Service) Pickup(ctx context.Context, actor Actor, bookID, reservationID uint) (*entities.Reservation, error) {
	today := s.clock.Today()

	var picked *entities.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := books.NewRepository(tx)
		reservationRepo := reservations.NewRepository(tx)

		book, reservation, err := load(bookRepo, reservationRepo, bookID, reservationID)
		if err != nil {
			return err
		}

		if err := decidePickup(actor, book, reservation, today); err != nil {
			return err
		}

		due := today.AddDate(0, 0, s.loanDays)
		if err := reservationRepo.SetDueDate(reservation.ID, due); err != nil {
			return fmt.Errorf("failed to set due date: %w", err)
		}
		reservation.DueDate = &due
		picked = reservation

		return rederive(bookRepo, reservationRepo, book.ID)
	})

	s.audit.LogCirculation(ctx, actor.UserID, "pickup", bookID, fmt.Sprintf("Picked up reservation %d", reservationID), err)
	if err != nil {
		return nil, err
	}
	log.Printf("[CIRCULATION] Reservation %d picked up, book %d due %s", reservationID, bookID, picked.DueDate.Format(DateLayout))
	return picked, nil
}

// Return closes a checkout. The reservation is removed from the ledger.
func (s *Service) Return(ctx context.Context, actor Actor, bookID, reservationID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := books.NewRepository(tx)
		reservationRepo := reservations.NewRepository(tx)

		book, reservation, err := load(bookRepo, reservationRepo, bookID, reservationID)
		if err != nil {
			return err
		}

		if err := decideReturn(actor, book, reservation); err != nil {
			return err
		}

		if err := reservationRepo.Delete(reservation.ID); err != nil {
			return fmt.Errorf("failed to delete reservation: %w", err)
		}

		return rederive(bookRepo, reservationRepo, book.ID)
	})

	s.audit.LogCirculation(ctx, actor.UserID, "return", bookID, fmt.Sprintf("Returned reservation %d", reservationID), err)
	if err != nil {
		return err
	}
	log.Printf("[CIRCULATION] Reservation %d returned, book %d", reservationID, bookID)
	return nil
}

// Cancel withdraws a reservation regardless of the book's state.
// It returns the ID of the book the reservation was for.
func (s *Service) Cancel(ctx context.Context, actor Actor, reservationID uint) (uint, error) {
	var bookID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := books.NewRepository(tx)
		reservationRepo := reservations.NewRepository(tx)

		reservation, err := reservationRepo.GetByID(reservationID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load reservation: %w", err)
		}

		if err := decideCancel(actor, reservation); err != nil {
			return err
		}
		bookID = reservation.BookID

		if err := reservationRepo.Delete(reservation.ID); err != nil {
			return fmt.Errorf("failed to delete reservation: %w", err)
		}

		err = rederive(bookRepo, reservationRepo, bookID)
		if errors.Is(err, ErrBookNotFound) {
			return nil
		}
		return err
	})

	s.audit.LogCirculation(ctx, actor.UserID, "cancel", bookID, fmt.Sprintf("Cancelled reservation %d", reservationID), err)
	if err != nil {
		return 0, err
	}
	log.Printf("[CIRCULATION] Reservation %d cancelled, book %d", reservationID, bookID)
	return bookID, nil
}

// SetStatus overrides a book's status. Only administrators may do this.
func (s *Service) SetStatus(ctx context.Context, actor Actor, bookID uint, status entities.BookStatus) (*entities.Book, error) {
	if err := decideSetStatus(actor, status); err != nil {
		return nil, err
	}

	var book *entities.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := books.NewRepository(tx)
		reservationRepo := reservations.NewRepository(tx)

		var err error
		book, err = bookRepo.GetByID(bookID)
		if err != nil {
			return notFound(err, ErrBookNotFound)
		}

		open, err := reservationRepo.ListForBook(book.ID)
		if err != nil {
			return fmt.Errorf("failed to list reservations: %w", err)
		}
		_, count := Derive(open)

		if err := bookRepo.UpdateState(book.ID, status, count); err != nil {
			return fmt.Errorf("failed to update book status: %w", err)
		}
		book.Status = status
		book.ReservationCount = count
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogCatalog(ctx, actor.UserID, "book_status", bookID, fmt.Sprintf("Status of '%s' set to %s", book.Name, status))
	log.Printf("[CIRCULATION] Book %d status overridden to %s by user %d", bookID, status, actor.UserID)
	return book, nil
}

// load fetches a book and one of its reservations. A missing reservation is
// returned as nil so the decide functions can order their checks.
func load(bookRepo *books.Repository, reservationRepo *reservations.Repository, bookID, reservationID uint) (*entities.Book, *entities.Reservation, error) {
	book, err := bookRepo.GetByID(bookID)
	if err != nil {
		return nil, nil, notFound(err, ErrBookNotFound)
	}

	reservation, err := reservationRepo.GetByID(reservationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return book, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load reservation: %w", err)
	}
	return book, reservation, nil
}

// rederive stores the status and count Derive computes for the book.
func rederive(bookRepo *books.Repository, reservationRepo *reservations.Repository, bookID uint) error {
	open, err := reservationRepo.ListForBook(bookID)
	if err != nil {
		return fmt.Errorf("failed to list reservations: %w", err)
	}
	status, count := Derive(open)
	if err := bookRepo.UpdateState(bookID, status, count); err != nil {
		return notFound(err, ErrBookNotFound)
	}
	return nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", sentinel.Error(), err)
}
