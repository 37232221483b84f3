package auth

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database/users"
	"github.com/mrlokans/library/internal/entities"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// RFC 5321 caps a path at 254 octets.
const maxEmailLength = 254

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("a user with that username or email already exists")
	ErrAuthRequired     = errors.New("authentication required")
	ErrInvalidRole      = errors.New("invalid role")
	ErrUsernameRequired = errors.New("username is required")
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrAccountLocked    = errors.New("account is locked due to too many failed login attempts")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters: letters, digits, dot, underscore or hyphen")
	ErrEmailInvalid     = errors.New("invalid email format")
	ErrSetupComplete    = errors.New("an administrator already exists")
)

// Service owns account creation and sign-in for library users.
type Service struct {
	users  *users.Repository
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(db *gorm.DB, cfg config.Auth) *Service {
	return &Service{
		users:  users.NewRepository(db),
		config: cfg,
		now:    time.Now,
	}
}

// Register creates a member account from the public sign-up form.
func (s *Service) Register(username, email, password, confirm string) (*entities.User, error) {
	if password != confirm {
		return nil, ErrPasswordMismatch
	}
	return s.CreateUser(username, email, password, entities.UserRoleMember)
}

// CreateAdmin creates the first administrator. It fails once any administrator exists.
func (s *Service) CreateAdmin(username, email, password string) (*entities.User, error) {
	hasAdmin, err := s.HasAdmin()
	if err != nil {
		return nil, err
	}
	if hasAdmin {
		return nil, ErrSetupComplete
	}
	return s.CreateUser(username, email, password, entities.UserRoleAdmin)
}

func validateAccount(username, email, password string, role entities.UserRole) error {
	switch {
	case username == "":
		return ErrUsernameRequired
	case email == "":
		return ErrEmailRequired
	case password == "":
		return ErrPasswordRequired
	case !usernamePattern.MatchString(username):
		return ErrUsernameInvalid
	case len(email) > maxEmailLength || !emailPattern.MatchString(email):
		return ErrEmailInvalid
	}
	if role != entities.UserRoleAdmin && role != entities.UserRoleMember {
		return ErrInvalidRole
	}
	return ValidatePassword(password)
}

// CreateUser validates and stores a new account with a zero balance.
func (s *Service) CreateUser(username, email, password string, role entities.UserRole) (*entities.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateAccount(username, email, password, role); err != nil {
		return nil, err
	}

	taken, err := s.users.LoginTaken(username, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if taken {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{Username: username, Email: email, PasswordHash: hash, Role: role}
	if err := s.users.CreateUser(user); err != nil {
		// a concurrent sign-up can win the race past LoginTaken
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate checks a username or email against its password. Repeated
// failures lock the account for the configured duration.
func (s *Service) Authenticate(login, password string) (*entities.User, error) {
	user, err := s.users.FindByLogin(strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		s.recordFailedLogin(user, now)
		return nil, err
	}

	if err := s.users.RecordLogin(user.ID, now); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	user.LastLoginAt = &now
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return user, nil
}

func (s *Service) lockoutPolicy() (int, time.Duration) {
	limits := RateLimitConfigFrom(s.config)
	return limits.MaxAttempts, limits.LockoutDuration
}

func (s *Service) recordFailedLogin(user *entities.User, now time.Time) {
	threshold, lockout := s.lockoutPolicy()

	user.FailedLoginCount++
	var until *time.Time
	if user.FailedLoginCount >= threshold {
		t := now.Add(lockout)
		until = &t
		user.LockedUntil = until
	}
	if err := s.users.RecordLoginFailure(user.ID, user.FailedLoginCount, until); err != nil {
		log.Printf("[AUTH] Failed to record login failure for user %d: %v", user.ID, err)
	}
}

// GetUserByID retrieves a user by their ID.
func (s *Service) GetUserByID(id uint) (*entities.User, error) {
	user, err := s.users.GetUserByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.SetPasswordHash(user.ID, hash)
}

// HasUsers reports whether any account exists.
func (s *Service) HasUsers() (bool, error) {
	count, err := s.GetUserCount()
	return count > 0, err
}

// HasAdmin reports whether at least one administrator exists.
func (s *Service) HasAdmin() (bool, error) {
	count, err := s.users.CountAdmins()
	return count > 0, err
}

// GetUserCount returns the number of accounts.
func (s *Service) GetUserCount() (int64, error) {
	return s.users.CountUsers()
}
