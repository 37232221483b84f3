// Package reservations provides database operations for the reservation ledger.
package reservations

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/entities"
	"github.com/mrlokans/library/internal/pagination"
)

// Repository handles all reservation database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new reservations repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create records a new reservation.
func (r *Repository) Create(reservation *entities.Reservation) error {
	return r.db.Create(reservation).Error
}

// GetByID retrieves a reservation by its ID.
func (r *Repository) GetByID(id uint) (*entities.Reservation, error) {
	var reservation entities.Reservation
	if err := r.db.First(&reservation, id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// ExistsForDate reports whether the book already has a reservation for the given date.
func (r *Repository) ExistsForDate(bookID uint, date time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&entities.Reservation{}).
		Where("book_id = ? AND reservation_date = ?", bookID, date).
		Count(&count).Error
	return count > 0, err
}

// ListForBook returns every open reservation of a book.
func (r *Repository) ListForBook(bookID uint) ([]entities.Reservation, error) {
	var reservations []entities.Reservation
	err := r.db.Where("book_id = ?", bookID).Order("reservation_date ASC").Find(&reservations).Error
	return reservations, err
}

// ListForUser returns every reservation owned by a user.
func (r *Repository) ListForUser(userID uint) ([]entities.Reservation, error) {
	var reservations []entities.Reservation
	err := r.db.Where("user_id = ?", userID).Order("reservation_date ASC, id ASC").Find(&reservations).Error
	return reservations, err
}

// PageForUser returns one page of a user's reservations with their books.
func (r *Repository) PageForUser(userID uint, rawPage string, pageSize int) (pagination.Page[entities.Reservation], error) {
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	query := r.db.Model(&entities.Reservation{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return pagination.Page[entities.Reservation]{}, fmt.Errorf("count reservations: %w", err)
	}

	number, offset := pagination.Resolve(rawPage, total, pageSize)

	var reservations []entities.Reservation
	err := query.Preload("Book").
		Order("reservation_date ASC, id ASC").
		Limit(pageSize).Offset(offset).
		Find(&reservations).Error
	if err != nil {
		return pagination.Page[entities.Reservation]{}, fmt.Errorf("list reservations: %w", err)
	}

	return pagination.New(reservations, number, pageSize, total), nil
}

// SetDueDate marks a reservation as picked up.
func (r *Repository) SetDueDate(id uint, due time.Time) error {
	result := r.db.Model(&entities.Reservation{}).Where("id = ?", id).Update("due_date", due)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a reservation.
func (r *Repository) Delete(id uint) error {
	result := r.db.Delete(&entities.Reservation{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// BookIDsForUser returns the distinct books a user holds reservations on.
func (r *Repository) BookIDsForUser(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&entities.Reservation{}).
		Where("user_id = ?", userID).
		Distinct("book_id").
		Pluck("book_id", &ids).Error
	return ids, err
}

// Count returns the number of reservations in the ledger.
func (r *Repository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&entities.Reservation{}).Count(&count).Error
	return count, err
}
