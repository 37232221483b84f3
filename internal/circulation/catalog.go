package circulation

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/database/books"
	"github.com/mrlokans/library/internal/database/reservations"
	"github.com/mrlokans/library/internal/database/users"
	"github.com/mrlokans/library/internal/entities"
)

// AddBook puts a new book on the shelf. Only administrators may do this.
func (s *Service) AddBook(ctx context.Context, actor Actor, name, author string) (*entities.Book, error) {
	book, err := decideAddBook(actor, name, author)
	if err != nil {
		return nil, err
	}

	if err := books.NewRepository(s.db.WithContext(ctx)).Create(book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	s.audit.LogCatalog(ctx, actor.UserID, "book_create", book.ID, fmt.Sprintf("Added '%s' by '%s'", book.Name, book.Author))
	log.Printf("[CIRCULATION] Book %d added by user %d", book.ID, actor.UserID)
	return book, nil
}

// DeleteBook removes a book and every reservation against it.
func (s *Service) DeleteBook(ctx context.Context, actor Actor, bookID uint) (*entities.Book, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotAdmin
	}

	var book *entities.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bookRepo := books.NewRepository(tx)

		var err error
		book, err = bookRepo.GetByID(bookID)
		if err != nil {
			return notFound(err, ErrBookNotFound)
		}
		if err := bookRepo.Delete(book.ID); err != nil {
			return notFound(err, ErrBookNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogCatalog(ctx, actor.UserID, "book_delete", bookID, fmt.Sprintf("Deleted '%s' by '%s'", book.Name, book.Author))
	log.Printf("[CIRCULATION] Book %d deleted by user %d", bookID, actor.UserID)
	return book, nil
}

// DeleteUser removes an account and its reservations, then recomputes every
// book those reservations pointed at.
func (s *Service) DeleteUser(ctx context.Context, actor Actor, userID uint) (*entities.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotAdmin
	}
	if actor.UserID != 0 && actor.UserID == userID {
		return nil, ErrSelfDelete
	}

	var user *entities.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)
		bookRepo := books.NewRepository(tx)
		reservationRepo := reservations.NewRepository(tx)

		var err error
		user, err = userRepo.GetUserByID(userID)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}

		bookIDs, err := userRepo.DeleteUser(user.ID)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}

		for _, bookID := range bookIDs {
			if err := rederive(bookRepo, reservationRepo, bookID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAccount(ctx, actor.UserID, "user_delete", userID, fmt.Sprintf("Deleted user '%s'", user.Username))
	log.Printf("[CIRCULATION] User %d deleted by user %d", userID, actor.UserID)
	return user, nil
}
