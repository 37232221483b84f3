package circulation

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/database/books"
	"github.com/mrlokans/library/internal/database/reservations"
)

// ReconcileResult summarises a reconciliation run.
type ReconcileResult struct {
	Checked int
	Fixed   int
}

// Reconcile recomputes status and reservation count for every book from the
// ledger and stores the result where it differs. Administrative status
// overrides are reverted.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	ids, err := books.NewRepository(s.db.WithContext(ctx)).IDs()
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("failed to list books: %w", err)
	}
	return s.reconcileBooks(ctx, ids)
}

// reconcileBooks checks each of ids. Books deleted since ids was read are skipped.
func (s *Service) reconcileBooks(ctx context.Context, ids []uint) (ReconcileResult, error) {
	var result ReconcileResult

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		fixed, err := s.reconcileBook(ctx, id)
		if errors.Is(err, ErrBookNotFound) {
			log.Printf("[CIRCULATION] Book %d deleted during reconciliation, skipping", id)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("failed to reconcile book %d: %w", id, err)
		}
		result.Checked++
		if fixed {
			result.Fixed++
		}
	}

	log.Printf("[CIRCULATION] Reconciled %d books, fixed %d", result.Checked, result.Fixed)
	return result, nil
}

func (s *Service) reconcileBook(ctx context.Context, bookID uint) (bool, error) {
	var fixed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := books.NewRepository(tx)
		reservationRepo := reservations.NewRepository(tx)

		book, err := bookRepo.GetByID(bookID)
		if err != nil {
			return notFound(err, ErrBookNotFound)
		}
		open, err := reservationRepo.ListForBook(bookID)
		if err != nil {
			return err
		}

		status, count := Derive(open)
		if book.Status == status && book.ReservationCount == count {
			return nil
		}

		log.Printf("[CIRCULATION] Book %d drifted: stored %s/%d, derived %s/%d",
			bookID, book.Status, book.ReservationCount, status, count)
		fixed = true
		return bookRepo.UpdateState(bookID, status, count)
	})
	return fixed, err
}
