package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/library/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestOpenRedirectPrevention(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/":                                 "/",
		"/books":                            "/books",
		"/books?name=dune&status=available": "/books?name=dune&status=available",
		"//attacker.example":                "/",
		"https://attacker.example":          "/",
		"/https://attacker.example":         "/",
		"/books\\reserve":                   "/",
		"\\attacker.example":                "/",
		"data:text/html,<script>":           "/",
		"javascript:alert(1)":               "/",
		"attacker.example":                  "/",
	}

	for input, want := range cases {
		assert.Equal(t, want, sanitizeRedirectPath(input), "sanitizeRedirectPath(%q)", input)
	}
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, isLocalPath("/"))
	assert.True(t, isLocalPath("/reservations/4/cancel"))

	assert.False(t, isLocalPath(""))
	assert.False(t, isLocalPath("books"))
	assert.False(t, isLocalPath("//attacker.example"))
	assert.False(t, isLocalPath("https://attacker.example"))
	assert.False(t, isLocalPath("/users\\1"))
}

func newTestLimiter(maxAttempts int) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		MaxAttempts:     maxAttempts,
		WindowDuration:  time.Minute,
		LockoutDuration: time.Minute,
		CleanupInterval: time.Hour,
	})
}

func TestRateLimiter_AllowsInitialAttempts(t *testing.T) {
	rl := newTestLimiter(3)
	defer rl.Stop()

	for attempt := 1; attempt <= 3; attempt++ {
		allowed, _ := rl.Allow("203.0.113.7", "alice")
		require.True(t, allowed, "attempt %d", attempt)
		rl.RecordFailure("203.0.113.7", "alice")
	}

	allowed, retryAfter := rl.Allow("203.0.113.7", "alice")
	assert.False(t, allowed)
	assert.Positive(t, retryAfter)
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	rl := newTestLimiter(3)
	defer rl.Stop()

	rl.RecordFailure("203.0.113.7", "alice")
	rl.RecordFailure("203.0.113.7", "alice")
	rl.RecordSuccess("203.0.113.7", "alice")

	allowed, _ := rl.Allow("203.0.113.7", "alice")
	assert.True(t, allowed)
}

func TestRateLimiter_DifferentUsersAreIndependent(t *testing.T) {
	rl := newTestLimiter(2)
	defer rl.Stop()

	rl.RecordFailure("203.0.113.7", "alice")
	rl.RecordFailure("203.0.113.7", "alice")

	allowed, _ := rl.Allow("203.0.113.7", "alice")
	assert.False(t, allowed)

	allowed, _ = rl.Allow("203.0.113.7", "bob")
	assert.True(t, allowed)
}

func TestRateLimiter_UsernameCaseInsensitive(t *testing.T) {
	rl := newTestLimiter(2)
	defer rl.Stop()

	rl.RecordFailure("10.0.0.1", "Librarian")
	locked, _ := rl.RecordFailure("10.0.0.1", "librarian ")
	assert.True(t, locked)

	allowed, _ := rl.Allow("10.0.0.1", "LIBRARIAN")
	assert.False(t, allowed)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	rl.Stop()
	rl.Stop()
}

func TestPasswordValidation_MinLength(t *testing.T) {
	for password, wantErr := range map[string]bool{
		"short":                    true,
		"borrowbook1":              true,
		"borrowbooks12":            false,
		"twelvechar12":             false,
		"a much longer passphrase": false,
	} {
		_, err := HashPassword(password, 4)
		assert.Equal(t, wantErr, err != nil, "HashPassword(%q): %v", password, err)
	}
}

func serveWith(t *testing.T, mw gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.Use(mw)
	router.GET("/books", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSecurityHeaders(t *testing.T) {
	rr := serveWith(t, SecurityHeadersMiddleware(), httptest.NewRequest(http.MethodGet, "/books", nil))

	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rr.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rr.Header().Get("Permissions-Policy"))

	csp := rr.Header().Get("Content-Security-Policy")
	assert.True(t, strings.Contains(csp, "frame-ancestors 'none'"), "csp: %s", csp)
}

func TestHSTSHeader(t *testing.T) {
	plain := serveWith(t, StrictTransportSecurityMiddleware(31536000), httptest.NewRequest(http.MethodGet, "/books", nil))
	assert.Empty(t, plain.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	secure := serveWith(t, StrictTransportSecurityMiddleware(31536000), req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", secure.Header().Get("Strict-Transport-Security"))
}

func TestHSTSHeader_CustomMaxAge(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := serveWith(t, StrictTransportSecurityMiddleware(3600), req)

	assert.Equal(t, "max-age=3600; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
}

func TestUsernameValidation(t *testing.T) {
	valid := []string{"bob", "alice99", "head_librarian", "night-desk", "j.austen"}
	invalid := []string{"", "a", "al", "alice@library", "alice smith", strings.Repeat("x", 65)}

	for _, name := range valid {
		assert.True(t, usernamePattern.MatchString(name), name)
	}
	for _, name := range invalid {
		assert.False(t, usernamePattern.MatchString(name), name)
	}
}

func TestEmailValidation(t *testing.T) {
	valid := []string{"alice@library.org", "front.desk@library.org", "alice+holds@library.org", "bob@branch.library.org"}
	invalid := []string{"library", "@library.org", "alice@", "alice@.org", "alice@library"}

	for _, email := range valid {
		assert.True(t, emailPattern.MatchString(email), email)
	}
	for _, email := range invalid {
		assert.False(t, emailPattern.MatchString(email), email)
	}
}

func TestRateLimitConfigFrom(t *testing.T) {
	cfg := RateLimitConfigFrom(config.Auth{MaxLoginAttempts: 3, LockoutDuration: time.Hour})

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.LockoutDuration)
	assert.Equal(t, DefaultRateLimitConfig().WindowDuration, cfg.WindowDuration)
	assert.Equal(t, DefaultRateLimitConfig().CleanupInterval, cfg.CleanupInterval)
}

func TestRateLimiter_SweepDropsExpiredEntries(t *testing.T) {
	rl := newTestLimiter(1)
	defer rl.Stop()

	rl.RecordFailure("203.0.113.7", "carol")
	rl.sweep(time.Now().Add(3 * time.Minute))

	allowed, _ := rl.Allow("203.0.113.7", "carol")
	assert.True(t, allowed)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1800", retryAfterSeconds(30*time.Minute))
	assert.Equal(t, "2", retryAfterSeconds(1500*time.Millisecond), "partial seconds round up")
}
