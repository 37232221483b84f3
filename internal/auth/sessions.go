package auth

import (
	"context"
	"database/sql"
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"

	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/entities"
)

const (
	sessionKeyIdentity = "identity"
	sessionKeyFlash    = "flash"
)

// Flash kinds
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

const defaultSessionLifetime = 24 * time.Hour

func init() {
	gob.Register(SessionData{})
	gob.Register(Flash{})
}

// SessionData is what a session remembers about its user.
type SessionData struct {
	UserID   uint
	Username string
	Role     entities.UserRole
	LoginAt  time.Time
}

// Flash is a one-shot message shown on the next page the user sees.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager adds library sign-in state and flash messages on top of scs.
type SessionManager struct {
	*scs.SessionManager
}

// NewSessionManager builds a manager on the store named in sessions. sqlDB
// is only needed by the sqlite store.
func NewSessionManager(sqlDB *sql.DB, cfg config.Auth, sessions config.Sessions) (*SessionManager, error) {
	store, err := newSessionStore(sqlDB, sessions)
	if err != nil {
		return nil, err
	}

	sm := scs.New()
	sm.Store = store

	sm.Lifetime = cfg.SessionLifetime
	if sm.Lifetime <= 0 {
		sm.Lifetime = defaultSessionLifetime
	}
	sm.IdleTimeout = sm.Lifetime / 2

	sm.Cookie.Name = "session"
	sm.Cookie.Path = "/"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = cfg.SecureCookies
	// Lax keeps the cookie on the redirect that follows a form post
	sm.Cookie.SameSite = http.SameSiteLaxMode

	return &SessionManager{SessionManager: sm}, nil
}

func newSessionStore(sqlDB *sql.DB, sessions config.Sessions) (scs.Store, error) {
	switch sessions.Store {
	case config.SessionStoreMemory:
		return memstore.New(), nil
	case config.SessionStoreRedis:
		store, err := NewRedisStore(sessions)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.SessionStoreSQLite, "":
		if sqlDB == nil {
			return nil, fmt.Errorf("sqlite session store requires a database connection")
		}
		if err := ensureSessionsTable(sqlDB); err != nil {
			return nil, err
		}
		return sqlite3store.New(sqlDB), nil
	}
	return nil, fmt.Errorf("unsupported session store %q", sessions.Store)
}

// ensureSessionsTable creates the schema sqlite3store expects.
func ensureSessionsTable(sqlDB *sql.DB) error {
	const schema = `CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`
	if _, err := sqlDB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// CreateSession signs user in under a fresh token, so a token planted
// before login is worthless afterwards.
func (sm *SessionManager) CreateSession(r *http.Request, user *entities.User) error {
	ctx := r.Context()
	if err := sm.RenewToken(ctx); err != nil {
		return err
	}
	sm.Put(ctx, sessionKeyIdentity, SessionData{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		LoginAt:  time.Now(),
	})
	return nil
}

func (sm *SessionManager) DestroySession(r *http.Request) error {
	return sm.Destroy(r.Context())
}

// GetSessionData returns the signed-in identity, or nil for an anonymous session.
func (sm *SessionManager) GetSessionData(r *http.Request) *SessionData {
	data, ok := sm.Get(r.Context(), sessionKeyIdentity).(SessionData)
	if !ok || data.UserID == 0 {
		return nil
	}
	return &data
}

// GetUserID returns 0 when nobody is signed in.
func (sm *SessionManager) GetUserID(r *http.Request) uint {
	if data := sm.GetSessionData(r); data != nil {
		return data.UserID
	}
	return 0
}

func (sm *SessionManager) GetUsername(r *http.Request) string {
	if data := sm.GetSessionData(r); data != nil {
		return data.Username
	}
	return ""
}

func (sm *SessionManager) GetUserRole(r *http.Request) entities.UserRole {
	if data := sm.GetSessionData(r); data != nil {
		return data.Role
	}
	return ""
}

func (sm *SessionManager) IsAuthenticated(r *http.Request) bool {
	return sm.GetSessionData(r) != nil
}

// SetFlash stores a message for the next page load, replacing any pending one.
func (sm *SessionManager) SetFlash(ctx context.Context, kind, message string) {
	sm.Put(ctx, sessionKeyFlash, Flash{Kind: kind, Message: message})
}

// PopFlash returns and clears the pending message, if any.
func (sm *SessionManager) PopFlash(ctx context.Context) *Flash {
	flash, ok := sm.Pop(ctx, sessionKeyFlash).(Flash)
	if !ok || flash.Message == "" {
		return nil
	}
	return &flash
}
