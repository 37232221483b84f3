// Package books provides database operations for the book catalog.
//
// # Usage
//
//	repo := books.NewRepository(db)
//	book, err := repo.GetByID(123)
//	page, err := repo.List(books.Filter{Name: "dune"}, c.Query("page"), 6)
package books

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/entities"
	"github.com/mrlokans/library/internal/pagination"
)

// Filter narrows a catalog listing. Empty fields match everything.
type Filter struct {
	Name   string              `form:"name" json:"name"`
	Status entities.BookStatus `form:"status" json:"status"`
}

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new books repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create adds a book to the catalog. New books always start available.
func (r *Repository) Create(book *entities.Book) error {
	book.Status = entities.BookStatusAvailable
	book.ReservationCount = 0
	return r.db.Create(book).Error
}

// GetByID retrieves a book by its ID.
func (r *Repository) GetByID(id uint) (*entities.Book, error) {
	var book entities.Book
	if err := r.db.First(&book, id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// List returns one page of books matching the filter, ordered by name.
func (r *Repository) List(filter Filter, rawPage string, pageSize int) (pagination.Page[entities.Book], error) {
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	query := r.db.Model(&entities.Book{})
	if name := strings.TrimSpace(filter.Name); name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return pagination.Page[entities.Book]{}, fmt.Errorf("count books: %w", err)
	}

	number, offset := pagination.Resolve(rawPage, total, pageSize)

	var books []entities.Book
	err := query.Order("name ASC, id ASC").Limit(pageSize).Offset(offset).Find(&books).Error
	if err != nil {
		return pagination.Page[entities.Book]{}, fmt.Errorf("list books: %w", err)
	}

	return pagination.New(books, number, pageSize, total), nil
}

// UpdateState stores the lifecycle status and open reservation count of a book.
func (r *Repository) UpdateState(id uint, status entities.BookStatus, reservationCount int) error {
	result := r.db.Model(&entities.Book{}).Where("id = ?", id).Updates(map[string]any{
		"status":            status,
		"reservation_count": reservationCount,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a book together with its reservations.
func (r *Repository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&entities.Reservation{}).Error; err != nil {
			return fmt.Errorf("delete reservations of book %d: %w", id, err)
		}
		result := tx.Delete(&entities.Book{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// IDs returns the IDs of every book in the catalog.
func (r *Repository) IDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&entities.Book{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

// Count returns the number of books in the catalog.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.Book{}).Count(&count).Error
	return count, err
}

// CountByStatus returns how many books are in each status. Every known
// status is present, with zero when no book holds it.
func (r *Repository) CountByStatus() (map[entities.BookStatus]int64, error) {
	var rows []struct {
		Status entities.BookStatus
		Total  int64
	}
	err := r.db.Model(&entities.Book{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[entities.BookStatus]int64, len(entities.BookStatuses))
	for _, s := range entities.BookStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
