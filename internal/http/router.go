package http

import (
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/pagination"
)

var templateFuncs = template.FuncMap{
	"date": func(v any) string {
		switch t := v.(type) {
		case time.Time:
			return circulation.StoredDate(t).Format(circulation.DateLayout)
		case *time.Time:
			if t != nil {
				return circulation.StoredDate(*t).Format(circulation.DateLayout)
			}
		}
		return ""
	},
	"money": func(d decimal.Decimal) string {
		return d.StringFixed(2)
	},
	"add": func(a, b int) int {
		return a + b
	},
	"subtract": func(a, b int) int {
		return a - b
	},
	"pages": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i + 1
		}
		return out
	},
}

// loadTemplates parses the page templates. A missing directory is not an
// error: every page then answers with JSON.
func loadTemplates(dir string) (*template.Template, error) {
	if dir == "" {
		return nil, nil
	}
	pattern := filepath.Join(dir, "*.html")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFiles(matches...)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}

// NewRouter creates and configures the HTTP router with all endpoints.
// The returned function releases background resources held by handlers.
func NewRouter(cfg RouterConfig) (*gin.Engine, func(), error) {
	tmpl, err := loadTemplates(cfg.TemplatesPath)
	if err != nil {
		return nil, nil, err
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware(0))
	}

	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", auth.CSRFTokenHeader, RequestIDHeader},
			ExposeHeaders:    []string{auth.CSRFTokenHeader, RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies))
	}

	// Session runs after CSRF so session context isn't overwritten by CSRF's request replacement
	if cfg.SessionManager != nil {
		router.Use(cfg.SessionManager.SessionLoadSave())
	}

	router.Use(auth.NewMiddleware(cfg.AuthService, cfg.SessionManager).Handler())

	if tmpl != nil {
		router.SetHTMLTemplate(tmpl)
	}
	if cfg.StaticPath != "" {
		router.Static("/static", cfg.StaticPath)
	}

	var authOpts []auth.ControllerOption
	if cfg.Audit != nil {
		authOpts = append(authOpts, auth.WithAuthLogger(cfg.Audit))
	}
	authController, err := auth.NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.TemplatesPath, cfg.AuthConfig, authOpts...)
	if err != nil {
		return nil, nil, err
	}
	authController.RegisterRoutes(router)

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	v := &views{html: tmpl != nil, sessions: cfg.SessionManager}
	health := NewHealthController(cfg.Database, cfg.Version)
	home := NewHomeController(v, cfg.Database.DB, cfg.Circulation, cfg.Fees, pageSize)
	circulationController := NewCirculationController(v, cfg.Circulation)
	booksController := NewBooksController(v, cfg.Database.DB, cfg.Circulation, cfg.Audit, pageSize)
	usersController := NewUsersController(v, cfg.Directory, cfg.Circulation, pageSize)
	profileController := NewProfileController(v, cfg.AuthService)
	auditController := NewAuditController(v, cfg.Audit)
	tasksController := NewTasksController(v, cfg.TaskStatus, cfg.Maintenance)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Pages and form actions; the /api mount answers with JSON
	for _, r := range []gin.IRouter{router, router.Group("/api")} {
		r.GET("/", home.Index)

		r.GET("/books", booksController.List)
		r.POST("/books", booksController.Add)
		r.POST("/books/:id/status", booksController.SetStatus)
		r.POST("/books/:id/delete", booksController.Delete)
		r.GET("/books/:id/history", booksController.History)

		r.POST("/books/:id/reserve", circulationController.Reserve)
		r.POST("/books/:id/pickup/:reservation_id", circulationController.Pickup)
		r.POST("/books/:id/return/:reservation_id", circulationController.Return)
		r.POST("/reservations/:id/cancel", circulationController.Cancel)

		r.GET("/users", usersController.List)
		r.POST("/users/:id/delete", usersController.Delete)

		r.GET("/profile", profileController.ProfilePage)
		r.POST("/profile/password", profileController.ChangePassword)

		r.GET("/audit", auditController.List)
		r.POST("/maintenance/:job/run", tasksController.RunMaintenance)
	}
	router.GET("/api/tasks/:id", tasksController.GetTaskStatus)

	return router, authController.Stop, nil
}
