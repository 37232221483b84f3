package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/entities"
)

func setupSessionManager(t *testing.T) *SessionManager {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.User{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// sqlite3store and gorm must share the single in-memory connection
	sqlDB.SetMaxOpenConns(1)

	sm, err := NewSessionManager(sqlDB, config.Auth{SessionLifetime: 24 * time.Hour}, config.Sessions{Store: config.SessionStoreSQLite})
	require.NoError(t, err)
	return sm
}

// inSession runs fn inside a loaded session and returns the recorded response.
func inSession(t *testing.T, sm *SessionManager, fn func(r *http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fn(r)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	return rr
}

var sessionMember = &entities.User{ID: 42, Username: "alice", Email: "alice@library.org", Role: entities.UserRoleMember}

func TestNewSessionManager(t *testing.T) {
	sm := setupSessionManager(t)

	assert.Equal(t, "session", sm.Cookie.Name)
	assert.True(t, sm.Cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, sm.Cookie.SameSite)
	assert.Equal(t, 24*time.Hour, sm.Lifetime)
	assert.Equal(t, 12*time.Hour, sm.IdleTimeout)
}

func TestNewSessionManager_Stores(t *testing.T) {
	sm, err := NewSessionManager(nil, config.Auth{}, config.Sessions{Store: config.SessionStoreMemory})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, sm.Lifetime, "zero lifetime falls back to a day")

	_, err = NewSessionManager(nil, config.Auth{}, config.Sessions{Store: "etcd"})
	assert.Error(t, err)

	_, err = NewSessionManager(nil, config.Auth{}, config.Sessions{Store: config.SessionStoreSQLite})
	assert.Error(t, err, "the sqlite store needs a database")
}

func TestNewSessionManager_SecureCookies(t *testing.T) {
	sm, err := NewSessionManager(nil, config.Auth{SessionLifetime: 2 * time.Hour, SecureCookies: true}, config.Sessions{Store: config.SessionStoreMemory})
	require.NoError(t, err)

	assert.True(t, sm.Cookie.Secure)
	assert.Equal(t, time.Hour, sm.IdleTimeout)
}

func TestSessionManager_Lifecycle(t *testing.T) {
	sm := setupSessionManager(t)

	rr := inSession(t, sm, func(r *http.Request) {
		assert.False(t, sm.IsAuthenticated(r))
		assert.Nil(t, sm.GetSessionData(r))
		assert.Empty(t, sm.GetUserRole(r))

		require.NoError(t, sm.CreateSession(r, sessionMember))

		assert.True(t, sm.IsAuthenticated(r))
		assert.Equal(t, sessionMember.ID, sm.GetUserID(r))
		assert.Equal(t, sessionMember.Username, sm.GetUsername(r))
		assert.Equal(t, sessionMember.Role, sm.GetUserRole(r))

		data := sm.GetSessionData(r)
		require.NotNil(t, data)
		assert.Equal(t, sessionMember.ID, data.UserID)
		assert.False(t, data.LoginAt.IsZero())

		require.NoError(t, sm.DestroySession(r))
		assert.False(t, sm.IsAuthenticated(r))
	})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSessionManager_CreateSessionSetsCookie(t *testing.T) {
	sm := setupSessionManager(t)

	rr := inSession(t, sm, func(r *http.Request) {
		require.NoError(t, sm.CreateSession(r, sessionMember))
	})

	require.NotEmpty(t, rr.Result().Cookies())
	assert.Equal(t, "session", rr.Result().Cookies()[0].Name)
}

func TestSessionManager_Flash(t *testing.T) {
	sm := setupSessionManager(t)

	inSession(t, sm, func(r *http.Request) {
		ctx := r.Context()
		assert.Nil(t, sm.PopFlash(ctx))

		sm.SetFlash(ctx, FlashError, "book is not available")
		assert.Equal(t, &Flash{Kind: FlashError, Message: "book is not available"}, sm.PopFlash(ctx))
		assert.Nil(t, sm.PopFlash(ctx), "flash is consumed on read")
	})
}

func TestSessionLoadSave_FlashSurvivesRedirect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sm := setupSessionManager(t)

	router := gin.New()
	router.Use(sm.SessionLoadSave())
	router.POST("/books/1/reserve", func(c *gin.Context) {
		sm.SetFlash(c.Request.Context(), FlashError, "cannot reserve a past date")
		c.Redirect(http.StatusSeeOther, "/books")
	})
	router.GET("/books", func(c *gin.Context) {
		flash := sm.PopFlash(c.Request.Context())
		if flash == nil {
			c.String(http.StatusOK, "")
			return
		}
		c.String(http.StatusOK, flash.Message)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/books/1/reserve", nil))
	require.Equal(t, http.StatusSeeOther, rr.Code)
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies, "the redirect must carry the session cookie")

	follow := func() string {
		req := httptest.NewRequest(http.MethodGet, "/books", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Body.String()
	}
	assert.Equal(t, "cannot reserve a past date", follow())
	assert.Empty(t, follow())
}

// TestRedisStore needs a live server, e.g. LIBRARY_TEST_REDIS_ADDR=localhost:6379.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("LIBRARY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LIBRARY_TEST_REDIS_ADDR not set")
	}

	store, err := NewRedisStore(config.Sessions{RedisAddr: addr})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	token := "test-" + time.Now().Format("150405.000000000")

	require.NoError(t, store.CommitCtx(ctx, token, []byte("alice"), time.Now().Add(time.Minute)))
	data, found, err := store.FindCtx(ctx, token)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("alice"), data)

	require.NoError(t, store.DeleteCtx(ctx, token))
	_, found, err = store.FindCtx(ctx, token)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	_, err := NewRedisStore(config.Sessions{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}
