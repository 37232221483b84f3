package users

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/library/internal/entities"
)

func setupTestDB(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.User{}, &entities.Book{}, &entities.Reservation{}))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRepository(db), db
}

func createUser(t *testing.T, repo *Repository, username string) *entities.User {
	user := &entities.User{
		Username:     username,
		Email:        username + "@library.org",
		PasswordHash: "hash",
	}
	require.NoError(t, repo.CreateUser(user))
	return user
}

func TestRepository_CreateUser(t *testing.T) {
	repo, _ := setupTestDB(t)

	user := createUser(t, repo, "alice")

	assert.NotZero(t, user.ID)
	assert.Equal(t, entities.UserRoleMember, user.Role)
	assert.True(t, user.Balance.IsZero())
}

func TestRepository_CreateUser_DuplicateUsername(t *testing.T) {
	repo, _ := setupTestDB(t)

	createUser(t, repo, "alice")

	err := repo.CreateUser(&entities.User{Username: "alice", Email: "other@library.org", PasswordHash: "hash"})
	assert.Error(t, err)
}

func TestRepository_GetUserByID(t *testing.T) {
	repo, _ := setupTestDB(t)

	created := createUser(t, repo, "alice")

	user, err := repo.GetUserByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = repo.GetUserByID(999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_GetUserByUsername(t *testing.T) {
	repo, _ := setupTestDB(t)

	created := createUser(t, repo, "alice")

	user, err := repo.GetUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	_, err = repo.GetUserByUsername("nonexistent")
	assert.Error(t, err)
}

func TestRepository_AddToBalance(t *testing.T) {
	repo, db := setupTestDB(t)
	user := createUser(t, repo, "alice")

	var running decimal.Decimal
	for i := 0; i < 3; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			var err error
			running, err = NewRepository(tx).AddToBalance(user.ID, decimal.RequireFromString("0.30"))
			return err
		})
		require.NoError(t, err)
	}
	assert.Equal(t, "0.9", running.String())

	reloaded, err := repo.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.9", reloaded.Balance.String())

	var stored string
	require.NoError(t, db.Raw("SELECT balance FROM users WHERE id = ?", user.ID).Scan(&stored).Error)
	assert.Equal(t, "0.9", stored, "the column holds the exact decimal")

	_, err = repo.AddToBalance(999, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_AddToBalance_ManySmallCharges(t *testing.T) {
	repo, _ := setupTestDB(t)
	user := createUser(t, repo, "alice")

	for i := 0; i < 100; i++ {
		_, err := repo.AddToBalance(user.ID, decimal.RequireFromString("0.01"))
		require.NoError(t, err)
	}

	reloaded, err := repo.GetUserByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", reloaded.Balance.String())
}

func TestRepository_DeleteUser(t *testing.T) {
	repo, db := setupTestDB(t)

	user := createUser(t, repo, "alice")
	other := createUser(t, repo, "other")

	book := &entities.Book{Name: "Dune", Author: "Frank Herbert"}
	require.NoError(t, db.Create(book).Error)

	day := time.Date(2030, 1, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&entities.Reservation{UserID: user.ID, BookID: book.ID, ReservationDate: day}).Error)
	require.NoError(t, db.Create(&entities.Reservation{UserID: user.ID, BookID: book.ID, ReservationDate: day.AddDate(0, 0, 1)}).Error)
	require.NoError(t, db.Create(&entities.Reservation{UserID: other.ID, BookID: book.ID, ReservationDate: day.AddDate(0, 0, 2)}).Error)

	bookIDs, err := repo.DeleteUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{book.ID}, bookIDs)

	var remaining int64
	require.NoError(t, db.Model(&entities.Reservation{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)

	_, err = repo.GetUserByID(user.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.DeleteUser(user.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_Counts(t *testing.T) {
	repo, _ := setupTestDB(t)

	createUser(t, repo, "member")
	require.NoError(t, repo.CreateUser(&entities.User{
		Username:     "admin",
		Email:        "admin@library.org",
		PasswordHash: "hash",
		Role:         entities.UserRoleAdmin,
	}))

	users, err := repo.CountUsers()
	require.NoError(t, err)
	assert.Equal(t, int64(2), users)

	admins, err := repo.CountAdmins()
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)
}

func TestRepository_FindByLogin(t *testing.T) {
	repo, _ := setupTestDB(t)

	alice := createUser(t, repo, "alice")

	byName, err := repo.FindByLogin("alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	byEmail, err := repo.FindByLogin("alice@library.org")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	_, err = repo.FindByLogin("bob")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepository_LoginTaken(t *testing.T) {
	repo, _ := setupTestDB(t)

	createUser(t, repo, "alice")

	taken, err := repo.LoginTaken("alice", "other@library.org")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.LoginTaken("someone", "alice@library.org")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = repo.LoginTaken("bob", "bob@library.org")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestRepository_LoginBookkeeping(t *testing.T) {
	repo, _ := setupTestDB(t)

	alice := createUser(t, repo, "alice")
	until := time.Now().Add(time.Hour)

	require.NoError(t, repo.RecordLoginFailure(alice.ID, 3, &until))
	got, err := repo.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailedLoginCount)
	require.NotNil(t, got.LockedUntil)

	require.NoError(t, repo.RecordLogin(alice.ID, time.Now()))
	got, err = repo.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginCount)
	assert.Nil(t, got.LockedUntil)
	assert.NotNil(t, got.LastLoginAt)

	require.NoError(t, repo.SetPasswordHash(alice.ID, "new-hash"))
	got, err = repo.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
}
