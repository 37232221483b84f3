// Package users provides database operations for library accounts.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetUserByUsername("alice")
package users

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/library/internal/entities"
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser stores a new account. The password must already be hashed.
func (r *Repository) CreateUser(user *entities.User) error {
	if user.Role == "" {
		user.Role = entities.UserRoleMember
	}
	return r.db.Create(user).Error
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(id uint) (*entities.User, error) {
	var user entities.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(username string) (*entities.User, error) {
	var user entities.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AddToBalance adds amount to a user's balance and returns the new balance.
// Call it on a transaction: the row is touched first so SQLite takes its
// write lock before the read, and postgres holds the row FOR UPDATE.
func (r *Repository) AddToBalance(id uint, amount decimal.Decimal) (decimal.Decimal, error) {
	touched := r.db.Model(&entities.User{}).Where("id = ?", id).Update("updated_at", time.Now())
	if touched.Error != nil {
		return decimal.Zero, touched.Error
	}
	if touched.RowsAffected == 0 {
		return decimal.Zero, gorm.ErrRecordNotFound
	}

	var user entities.User
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "balance").
		First(&user, id).Error; err != nil {
		return decimal.Zero, err
	}

	balance := user.Balance.Add(amount)
	if err := r.db.Model(&entities.User{}).
		Where("id = ?", id).
		Update("balance", balance.String()).Error; err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// DeleteUser removes an account together with its reservations and returns
// the IDs of the books those reservations pointed at.
func (r *Repository) DeleteUser(id uint) ([]uint, error) {
	var bookIDs []uint
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entities.Reservation{}).
			Where("user_id = ?", id).
			Distinct("book_id").
			Pluck("book_id", &bookIDs).Error; err != nil {
			return fmt.Errorf("failed to collect reservations of user %d: %w", id, err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&entities.Reservation{}).Error; err != nil {
			return fmt.Errorf("failed to delete reservations of user %d: %w", id, err)
		}
		result := tx.Delete(&entities.User{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bookIDs, nil
}

// CountUsers returns the number of accounts.
func (r *Repository) CountUsers() (int64, error) {
	var count int64
	err := r.db.Model(&entities.User{}).Count(&count).Error
	return count, err
}

// CountAdmins returns the number of accounts with the admin role.
func (r *Repository) CountAdmins() (int64, error) {
	var count int64
	err := r.db.Model(&entities.User{}).Where("role = ?", entities.UserRoleAdmin).Count(&count).Error
	return count, err
}

// FindByLogin looks an account up by username or email.
func (r *Repository) FindByLogin(login string) (*entities.User, error) {
	var user entities.User
	err := r.db.Where("username = ? OR email = ?", login, login).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginTaken reports whether either the username or the email is in use.
func (r *Repository) LoginTaken(username, email string) (bool, error) {
	var count int64
	err := r.db.Model(&entities.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, err
}

// RecordLogin stamps a successful sign-in and clears any lockout.
func (r *Repository) RecordLogin(id uint, at time.Time) error {
	return r.db.Model(&entities.User{}).Where("id = ?", id).Updates(map[string]any{
		"last_login_at":      at,
		"failed_login_count": 0,
		"locked_until":       nil,
	}).Error
}

// RecordLoginFailure stores the failure counter and, when lockedUntil is
// non-nil, the end of the lockout.
func (r *Repository) RecordLoginFailure(id uint, count int, lockedUntil *time.Time) error {
	updates := map[string]any{"failed_login_count": count}
	if lockedUntil != nil {
		updates["locked_until"] = *lockedUntil
	}
	return r.db.Model(&entities.User{}).Where("id = ?", id).Updates(updates).Error
}

// SetPasswordHash replaces the stored hash.
func (r *Repository) SetPasswordHash(id uint, hash string) error {
	return r.db.Model(&entities.User{}).Where("id = ?", id).Update("password_hash", hash).Error
}
