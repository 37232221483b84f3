package auth

import (
	"context"
	"errors"
	"html/template"
	"log"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/entities"
)

// Audit actions recorded by the controller
const (
	ActionLogin    = "login"
	ActionLogout   = "logout"
	ActionRegister = "register"
	ActionSetup    = "setup"
)

const (
	msgBadCredentials = "Invalid username or password"
	msgLocked         = "Account is locked. Please try again later."
	msgThrottled      = "Too many login attempts. Please try again later."
	msgDatabase       = "Database error. Please try again."
)

// AuthLogger records authentication events.
type AuthLogger interface {
	LogAuth(ctx context.Context, userID uint, action string, success bool)
}

type noopAuthLogger struct{}

func (noopAuthLogger) LogAuth(context.Context, uint, string, bool) {}

// credentials is the body accepted by the login, register and setup endpoints.
// Browser forms and JSON clients share the same field names.
type credentials struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	Next            string `form:"next" json:"next"`
}

// authPage names a template and its heading.
type authPage struct {
	template string
	title    string
}

var (
	loginPage    = authPage{"login.html", "Login"}
	registerPage = authPage{"register.html", "Register"}
	setupPage    = authPage{"setup.html", "Initial Setup"}
)

// AuthController serves sign-in, sign-up, first-run setup and logout.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	templates      *template.Template
	rateLimiter    *RateLimiter
	audit          AuthLogger

	// setupMu closes the gap between the HasUsers check and CreateAdmin
	setupMu sync.Mutex
}

// ControllerOption configures an AuthController.
type ControllerOption func(*AuthController)

// WithAuthLogger records login, logout and registration outcomes.
func WithAuthLogger(l AuthLogger) ControllerOption {
	return func(ac *AuthController) {
		if l != nil {
			ac.audit = l
		}
	}
}

// NewAuthController loads templatesPath/auth/*.html when present; without
// them every page answers with JSON.
func NewAuthController(service *Service, sessionManager *SessionManager, templatesPath string, cfg config.Auth, opts ...ControllerOption) (*AuthController, error) {
	ac := &AuthController{
		service:        service,
		sessionManager: sessionManager,
		rateLimiter:    NewRateLimiter(RateLimitConfigFrom(cfg)),
		audit:          noopAuthLogger{},
	}
	if templatesPath != "" {
		if tmpl, err := template.ParseGlob(filepath.Join(templatesPath, "auth", "*.html")); err == nil {
			ac.templates = tmpl
		} else {
			log.Printf("[AUTH] No auth templates under %s, serving JSON: %v", templatesPath, err)
		}
	}
	for _, opt := range opts {
		opt(ac)
	}
	return ac, nil
}

// RegisterRoutes mounts every route twice: for browser forms and under /api
// for JSON clients.
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	for _, r := range []gin.IRouter{router, router.Group("/api")} {
		r.GET("/login", ac.LoginPage)
		r.POST("/login", ac.Login)
		r.POST("/logout", ac.Logout)
		r.GET("/register", ac.RegisterPage)
		r.POST("/register", ac.Register)
		r.GET("/setup", ac.SetupPage)
		r.POST("/setup", ac.Setup)
	}
	router.GET("/api/session", ac.Session)
}

// Stop releases the rate limiter's sweeper.
func (ac *AuthController) Stop() {
	ac.rateLimiter.Stop()
}

func (ac *AuthController) signedIn(c *gin.Context) bool {
	return ac.sessionManager != nil && ac.sessionManager.IsAuthenticated(c.Request)
}

// LoginPage renders the login form, or sends a fresh install to setup.
func (ac *AuthController) LoginPage(c *gin.Context) {
	if ac.signedIn(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	if hasUsers, _ := ac.service.HasUsers(); !hasUsers {
		c.Redirect(http.StatusFound, "/setup")
		return
	}

	data := ac.pageData(c, loginPage, credentials{}, c.Query("error"))
	data["Next"] = sanitizeRedirectPath(c.Query("next"))
	ac.render(c, http.StatusOK, loginPage, data)
}

// Login checks the throttle, then the credentials, then opens a session.
func (ac *AuthController) Login(c *gin.Context) {
	var in credentials
	_ = c.ShouldBind(&in)
	next := sanitizeRedirectPath(in.Next)
	ip := c.ClientIP()
	ctx := c.Request.Context()

	fail := func(status int, msg string) {
		data := ac.pageData(c, loginPage, in, msg)
		data["Next"] = next
		ac.render(c, status, loginPage, data)
	}

	if ok, wait := ac.rateLimiter.Allow(ip, in.Username); !ok {
		c.Header("Retry-After", retryAfterSeconds(wait))
		fail(http.StatusTooManyRequests, msgThrottled)
		return
	}

	user, err := ac.service.Authenticate(in.Username, in.Password)
	if err != nil {
		ac.rateLimiter.RecordFailure(ip, in.Username)
		ac.audit.LogAuth(ctx, 0, ActionLogin, false)
		if errors.Is(err, ErrAccountLocked) {
			fail(http.StatusUnauthorized, msgLocked)
			return
		}
		fail(http.StatusUnauthorized, msgBadCredentials)
		return
	}
	ac.rateLimiter.RecordSuccess(ip, in.Username)

	if err := ac.startSession(c, user); err != nil {
		log.Printf("[AUTH] Failed to create session for %s: %v", user.Username, err)
		fail(http.StatusInternalServerError, "Failed to create session")
		return
	}
	ac.audit.LogAuth(ctx, user.ID, ActionLogin, true)
	ac.finish(c, next, user)
}

// Logout destroys the session and returns to the login page.
func (ac *AuthController) Logout(c *gin.Context) {
	userID := GetUserID(c)
	if ac.sessionManager != nil {
		if err := ac.sessionManager.DestroySession(c.Request); err != nil {
			log.Printf("[AUTH] Failed to destroy session: %v", err)
		}
	}
	if userID != 0 {
		ac.audit.LogAuth(c.Request.Context(), userID, ActionLogout, true)
	}

	if IsAPIRequest(c) {
		c.JSON(http.StatusOK, gin.H{"message": "logged out", "redirect": "/login"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// RegisterPage renders the sign-up form.
func (ac *AuthController) RegisterPage(c *gin.Context) {
	if ac.signedIn(c) {
		c.Redirect(http.StatusFound, "/")
		return
	}
	ac.render(c, http.StatusOK, registerPage, ac.pageData(c, registerPage, credentials{}, ""))
}

// Register creates a member account and signs it in straight away.
func (ac *AuthController) Register(c *gin.Context) {
	var in credentials
	_ = c.ShouldBind(&in)
	ctx := c.Request.Context()

	user, err := ac.service.Register(in.Username, in.Email, in.Password, in.ConfirmPassword)
	if err != nil {
		ac.audit.LogAuth(ctx, 0, ActionRegister, false)
		status, msg := http.StatusBadRequest, err.Error()
		if !isUserInputError(err) {
			log.Printf("[AUTH] Registration failed: %v", err)
			status, msg = http.StatusInternalServerError, "Failed to create account"
		}
		ac.render(c, status, registerPage, ac.pageData(c, registerPage, in, msg))
		return
	}

	if err := ac.startSession(c, user); err != nil {
		log.Printf("[AUTH] Failed to create session for %s: %v", user.Username, err)
	}
	ac.audit.LogAuth(ctx, user.ID, ActionRegister, true)
	ac.finish(c, "/", user)
}

// SetupPage renders the first-administrator form on an empty install.
func (ac *AuthController) SetupPage(c *gin.Context) {
	hasUsers, err := ac.service.HasUsers()
	switch {
	case err != nil:
		ac.render(c, http.StatusInternalServerError, setupPage, ac.pageData(c, setupPage, credentials{}, msgDatabase))
	case hasUsers:
		c.Redirect(http.StatusFound, "/login")
	default:
		ac.render(c, http.StatusOK, setupPage, ac.pageData(c, setupPage, credentials{}, c.Query("error")))
	}
}

// Setup creates the first administrator. Once any account exists it only
// points at the login page.
func (ac *AuthController) Setup(c *gin.Context) {
	ac.setupMu.Lock()
	defer ac.setupMu.Unlock()

	var in credentials
	_ = c.ShouldBind(&in)
	fail := func(status int, msg string) {
		ac.render(c, status, setupPage, ac.pageData(c, setupPage, in, msg))
	}

	hasUsers, err := ac.service.HasUsers()
	if err != nil {
		fail(http.StatusInternalServerError, msgDatabase)
		return
	}
	if hasUsers {
		ac.setupClosed(c)
		return
	}
	if in.Password != in.ConfirmPassword {
		fail(http.StatusBadRequest, "Passwords do not match")
		return
	}

	user, err := ac.service.CreateAdmin(in.Username, in.Email, in.Password)
	switch {
	case errors.Is(err, ErrUserExists), errors.Is(err, ErrSetupComplete):
		ac.setupClosed(c)
		return
	case isUserInputError(err):
		fail(http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.Printf("[AUTH] Setup failed: %v", err)
		fail(http.StatusBadRequest, "Failed to create user")
		return
	}

	if err := ac.startSession(c, user); err != nil {
		log.Printf("[AUTH] Failed to create session for %s: %v", user.Username, err)
	}
	ac.audit.LogAuth(c.Request.Context(), user.ID, ActionSetup, true)
	ac.finish(c, "/", user)
}

func (ac *AuthController) setupClosed(c *gin.Context) {
	if IsAPIRequest(c) {
		c.JSON(http.StatusConflict, gin.H{"error": ErrSetupComplete.Error(), "redirect": "/login"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/login")
}

// Session reports the current user and a CSRF token for JSON clients.
func (ac *AuthController) Session(c *gin.Context) {
	token := GetCSRFToken(c)
	if user := GetUser(c); user != nil {
		c.JSON(http.StatusOK, gin.H{"user": user, "csrf_token": token})
		return
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": ErrAuthRequired.Error(), "csrf_token": token})
}

func (ac *AuthController) startSession(c *gin.Context, user *entities.User) error {
	if ac.sessionManager == nil {
		return nil
	}
	return ac.sessionManager.CreateSession(c.Request, user)
}

// finish redirects browsers to next and answers JSON clients with the user.
func (ac *AuthController) finish(c *gin.Context, next string, user *entities.User) {
	if IsAPIRequest(c) {
		c.JSON(http.StatusOK, gin.H{"user": user, "redirect": next})
		return
	}
	c.Redirect(http.StatusSeeOther, next)
}

// retryAfterSeconds formats a wait for the Retry-After header.
func retryAfterSeconds(wait time.Duration) string {
	return strconv.Itoa(int(math.Ceil(wait.Seconds())))
}

var inputErrors = []error{
	ErrPasswordTooShort, ErrPasswordTooLong, ErrPasswordRequired, ErrPasswordMismatch,
	ErrUsernameRequired, ErrUsernameInvalid, ErrEmailRequired, ErrEmailInvalid, ErrUserExists,
}

// isUserInputError reports whether err came from validating submitted
// fields, and so is safe to show back to the user.
func isUserInputError(err error) bool {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// pageData fills the fields every auth template reads. The password is
// never echoed back.
func (ac *AuthController) pageData(c *gin.Context, page authPage, in credentials, msg string) gin.H {
	return gin.H{
		"Title":     page.title,
		"Username":  in.Username,
		"Email":     in.Email,
		"CSRFToken": GetCSRFToken(c),
		"Error":     msg,
	}
}

// render executes an auth template, or answers JSON for API clients and
// when no templates were loaded.
func (ac *AuthController) render(c *gin.Context, status int, page authPage, data gin.H) {
	if ac.templates == nil || IsAPIRequest(c) {
		if msg, _ := data["Error"].(string); msg != "" {
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.JSON(status, data)
		return
	}

	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := ac.templates.ExecuteTemplate(c.Writer, page.template, data); err != nil {
		log.Printf("[AUTH] Failed to render %s: %v", page.template, err)
	}
}
