package http

import (
	"github.com/mrlokans/library/internal/audit"
	"github.com/mrlokans/library/internal/auth"
	"github.com/mrlokans/library/internal/circulation"
	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/database"
	"github.com/mrlokans/library/internal/directory"
	"github.com/mrlokans/library/internal/fees"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Database    *database.Database
	Circulation *circulation.Service
	Fees        *fees.Accruer
	Directory   *directory.Directory
	Audit       *audit.Service

	// Authentication
	AuthService    *auth.Service
	SessionManager *auth.SessionManager
	AuthConfig     config.Auth
	CSRFSecret     []byte // CSRF protection is off when empty
	SecureCookies  bool

	// Origins allowed to call /api from a browser
	CORSOrigins []string

	// UI paths
	TemplatesPath string
	StaticPath    string

	// Listing page size
	PageSize int

	// Application info
	Version string

	// Background maintenance (optional)
	TaskStatus  TaskStatusReader
	Maintenance MaintenanceRunner
}
