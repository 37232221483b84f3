package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/entities"
)

// userContextKey holds the signed-in *entities.User on the gin context.
const userContextKey = "auth_user"

// publicPaths are reachable without a session. Everything under /static/
// is public as well.
var publicPaths = map[string]struct{}{
	"/health":       {},
	"/ping":         {},
	"/favicon.ico":  {},
	"/login":        {},
	"/register":     {},
	"/setup":        {},
	"/api/login":    {},
	"/api/register": {},
	"/api/setup":    {},
	"/api/session":  {},
}

func isPublicPath(path string) bool {
	if _, ok := publicPaths[path]; ok {
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

// UserLoader resolves the user behind a session.
type UserLoader interface {
	GetUserByID(id uint) (*entities.User, error)
}

// Middleware attaches the session's user to each request and turns
// anonymous visitors away from private pages.
type Middleware struct {
	users    UserLoader
	sessions *SessionManager
}

func NewMiddleware(users UserLoader, sessions *SessionManager) *Middleware {
	return &Middleware{users: users, sessions: sessions}
}

// Handler loads the user from the session on every request, public or not.
// A session whose account has been deleted counts as anonymous.
func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := m.sessionUser(c.Request); user != nil {
			c.Set(userContextKey, user)
			c.Next()
			return
		}
		if isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		denyAnonymous(c)
	}
}

func (m *Middleware) sessionUser(r *http.Request) *entities.User {
	if m.sessions == nil {
		return nil
	}
	id := m.sessions.GetUserID(r)
	if id == 0 {
		return nil
	}
	user, err := m.users.GetUserByID(id)
	if err != nil {
		return nil
	}
	return user
}

// denyAnonymous answers 401 to API clients and sends browsers to the login
// page with a way back.
func denyAnonymous(c *gin.Context) {
	if IsAPIRequest(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error()})
		return
	}
	c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}

// IsAPIRequest reports whether the caller expects JSON rather than a page.
func IsAPIRequest(c *gin.Context) bool {
	return acceptsJSON(c.Request)
}

// acceptsJSON treats everything under /api/ and any request accepting
// application/json as an API call.
func acceptsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || strings.Contains(r.Header.Get("Accept"), "application/json")
}

// RequireRole lets through only users holding one of roles.
func (m *Middleware) RequireRole(roles ...entities.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetUserRole(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		if IsAPIRequest(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.AbortWithStatus(http.StatusForbidden)
	}
}

// RequireAdmin limits a route group to administrators.
func (m *Middleware) RequireAdmin() gin.HandlerFunc {
	return m.RequireRole(entities.UserRoleAdmin)
}

// GetUser returns the signed-in user, or nil.
func GetUser(c *gin.Context) *entities.User {
	v, _ := c.Get(userContextKey)
	user, _ := v.(*entities.User)
	return user
}

// GetUserID returns the signed-in user's ID, or 0.
func GetUserID(c *gin.Context) uint {
	if user := GetUser(c); user != nil {
		return user.ID
	}
	return 0
}

// GetUsername returns the signed-in user's name, or "".
func GetUsername(c *gin.Context) string {
	if user := GetUser(c); user != nil {
		return user.Username
	}
	return ""
}

// GetUserRole returns the signed-in user's role, or "".
func GetUserRole(c *gin.Context) entities.UserRole {
	if user := GetUser(c); user != nil {
		return user.Role
	}
	return ""
}

func IsAuthenticated(c *gin.Context) bool {
	return GetUser(c) != nil
}
