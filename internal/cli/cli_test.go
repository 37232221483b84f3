package cli

import (
	"bufio"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database"
	"github.com/mrlokans/library/internal/entities"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.Database{
			Driver: config.DatabaseDriverSQLite,
			Path:   filepath.Join(t.TempDir(), "library.db"),
		},
		Auth:        config.Auth{BcryptCost: 4},
		Circulation: config.Circulation{LoanDays: 30, TimeZone: "UTC"},
	}
}

func TestCreateAdminCommand_ParseFlags(t *testing.T) {
	t.Run("requires username", func(t *testing.T) {
		cmd := NewCreateAdminCommand(testConfig(t))
		err := cmd.ParseFlags([]string{"-email", "a@example.com"})
		assert.ErrorContains(t, err, "-username")
	})

	t.Run("requires email", func(t *testing.T) {
		cmd := NewCreateAdminCommand(testConfig(t))
		err := cmd.ParseFlags([]string{"-username", "root"})
		assert.ErrorContains(t, err, "-email")
	})

	t.Run("falls back to ADMIN_PASSWORD", func(t *testing.T) {
		t.Setenv("ADMIN_PASSWORD", "from-the-environment")
		cmd := NewCreateAdminCommand(testConfig(t))
		require.NoError(t, cmd.ParseFlags([]string{"-username", "root", "-email", "root@example.com"}))
		assert.Equal(t, "from-the-environment", cmd.Password)
	})
}

func TestCreateAdminCommand_Run(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	cfg := testConfig(t)
	cmd := NewCreateAdminCommand(cfg)
	cmd.stdin = bufio.NewReader(strings.NewReader("a-long-enough-password\n"))
	require.NoError(t, cmd.ParseFlags([]string{"-username", "root", "-email", "root@example.com"}))

	require.NoError(t, cmd.Run())

	db, err := database.NewSQLiteDatabase(cfg.Database.Path)
	require.NoError(t, err)
	defer db.Close()

	var user entities.User
	require.NoError(t, db.DB.Where("username = ?", "root").First(&user).Error)
	assert.Equal(t, entities.UserRoleAdmin, user.Role)

	// A second run collides on the username.
	cmd.Password = "a-long-enough-password"
	assert.Error(t, cmd.Run())
}

func TestReconcileCommand_Run(t *testing.T) {
	cfg := testConfig(t)

	db, err := database.NewSQLiteDatabase(cfg.Database.Path)
	require.NoError(t, err)
	book := entities.Book{Name: "Emma", Author: "Jane Austen", Status: entities.BookStatusCheckedOut, ReservationCount: 4}
	require.NoError(t, db.DB.Create(&book).Error)
	require.NoError(t, db.Close())

	cmd := NewReconcileCommand(cfg)
	require.NoError(t, cmd.ParseFlags(nil))
	require.NoError(t, cmd.Run())

	db, err = database.NewSQLiteDatabase(cfg.Database.Path)
	require.NoError(t, err)
	defer db.Close()

	var stored entities.Book
	require.NoError(t, db.DB.First(&stored, book.ID).Error)
	assert.Equal(t, entities.BookStatusAvailable, stored.Status)
	assert.Equal(t, 0, stored.ReservationCount)
}
