// Package config reads the library's settings from the environment, with an
// optional .env file underneath.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FeeTrigger selects which reservations accrue fees on a landing-page visit.
type FeeTrigger string

const (
	// FeeTriggerBeforeDue charges while the due date is still in the future,
	// (due - today) + 1 charges per visit. This is the historical behavior.
	FeeTriggerBeforeDue FeeTrigger = "before_due"
	// FeeTriggerOverdue charges one unit per day past the due date.
	FeeTriggerOverdue FeeTrigger = "overdue"
)

type Config struct {
	HTTP
	Global
	Database
	UI
	Auth
	Sessions
	Circulation
	Fees
	Tasks
	Maintenance
	Audit
	CORS
}

type HTTP struct {
	Port int32
	Host string
}

type Global struct {
	ShutdownTimeoutInSeconds int
}

type Database struct {
	Driver string // DatabaseDriverSQLite or DatabaseDriverPostgres
	Path   string // sqlite file
	DSN    string // postgres connection string
}

// UI points at the HTML templates and static assets. Without templates
// every handler answers with JSON.
type UI struct {
	TemplatesPath string
	StaticPath    string
}

type Auth struct {
	SessionSecret   string
	SessionLifetime time.Duration
	BcryptCost      int
	SecureCookies   bool // off for local development over plain HTTP

	// Failed logins: MaxLoginAttempts inside RateLimitWindow locks the
	// account (and the client/login pair) for LockoutDuration.
	MaxLoginAttempts int
	RateLimitWindow  time.Duration
	LockoutDuration  time.Duration
}

type Sessions struct {
	Store         string // SessionStoreSQLite, SessionStoreMemory or SessionStoreRedis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type Circulation struct {
	LoanDays int    // days from pickup to due date
	PageSize int    // rows per listing page
	TimeZone string // IANA zone that decides what "today" is
}

type Fees struct {
	PerCharge string // decimal amount per charge
	Trigger   FeeTrigger
}

// Tasks sizes the background queue. Attempts, backoff and retention are
// per task type and live on each task's queue config.
type Tasks struct {
	Enabled         bool
	Workers         int
	ReleaseAfter    time.Duration
	CleanupInterval time.Duration
}

type Maintenance struct {
	Enabled           bool
	ReconcileSchedule string // cron, e.g. "0 3 * * *"
	AuditSchedule     string
}

type Audit struct {
	RetentionDays int
}

type CORS struct {
	AllowedOrigins []string
}

// defaults keyed by environment variable name, lower-cased for viper.
var defaults = map[string]any{
	"port":                        8188,
	"host":                        "0.0.0.0",
	"shutdown_timeout_in_seconds": 2,

	"database_driver": DatabaseDriverSQLite,
	"database_path":   DefaultDatabasePath,
	"database_dsn":    "",
	"templates_path":  "./templates",
	"static_path":     "./static",

	"auth_session_secret":     "", // generated at startup when empty
	"auth_session_lifetime":   "24h",
	"auth_bcrypt_cost":        12,
	"auth_secure_cookies":     true,
	"auth_max_login_attempts": 5,
	"auth_rate_limit_window":  "15m",
	"auth_lockout_duration":   "30m",

	"session_store":  SessionStoreSQLite,
	"redis_addr":     "localhost:6379",
	"redis_password": "",
	"redis_db":       0,

	"loan_days":        30,
	"page_size":        6,
	"library_timezone": "UTC",
	"fee_per_charge":   "0.01",
	"fee_trigger":      string(FeeTriggerBeforeDue),

	"tasks_enabled":           true,
	"task_workers":            2,
	"task_max_retries":        3,
	"task_retry_delay":        "1m",
	"task_timeout":            "5m",
	"task_release_after":      "15m",
	"task_cleanup_interval":   "1h",
	"task_retention_duration": "24h",

	"maintenance_enabled":    true,
	"reconcile_schedule":     "0 3 * * *",
	"audit_cleanup_schedule": "30 3 * * *",
	"audit_retention_days":   90,

	"cors_allowed_origins": "",
}

// loadEnvFile fills in variables from ENV_FILE (or .env) without overriding
// the real environment. A missing file is fine.
func loadEnvFile() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("WARNING: could not load env file %s: %v", path, err)
	}
}

// splitList parses a comma-separated setting, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func NewConfig() *Config {
	loadEnvFile()
	v := newViper()

	return &Config{
		HTTP:   HTTP{Port: v.GetInt32("PORT"), Host: v.GetString("HOST")},
		Global: Global{ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS")},
		Database: Database{
			Driver: v.GetString("DATABASE_DRIVER"),
			Path:   v.GetString("DATABASE_PATH"),
			DSN:    v.GetString("DATABASE_DSN"),
		},
		UI: UI{
			TemplatesPath: v.GetString("TEMPLATES_PATH"),
			StaticPath:    v.GetString("STATIC_PATH"),
		},
		Auth:     readAuth(v),
		Sessions: readSessions(v),
		Circulation: Circulation{
			LoanDays: v.GetInt("LOAN_DAYS"),
			PageSize: v.GetInt("PAGE_SIZE"),
			TimeZone: v.GetString("LIBRARY_TIMEZONE"),
		},
		Fees: Fees{
			PerCharge: v.GetString("FEE_PER_CHARGE"),
			Trigger:   FeeTrigger(strings.ToLower(v.GetString("FEE_TRIGGER"))),
		},
		Tasks: readTasks(v),
		Maintenance: Maintenance{
			Enabled:           v.GetBool("MAINTENANCE_ENABLED"),
			ReconcileSchedule: v.GetString("RECONCILE_SCHEDULE"),
			AuditSchedule:     v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		Audit: Audit{RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS")},
		CORS:  CORS{AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS"))},
	}
}

func readAuth(v *viper.Viper) Auth {
	return Auth{
		SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
		SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
		BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
		SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
		MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
		RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
		LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
	}
}

func readSessions(v *viper.Viper) Sessions {
	return Sessions{
		Store:         strings.ToLower(v.GetString("SESSION_STORE")),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
	}
}

func readTasks(v *viper.Viper) Tasks {
	return Tasks{
		Enabled:         v.GetBool("TASKS_ENABLED"),
		Workers:         v.GetInt("TASK_WORKERS"),
		ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
		CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
	}
}

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DatabaseDriverSQLite:
	case DatabaseDriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver))
	}

	switch c.Sessions.Store {
	case SessionStoreSQLite, SessionStoreMemory, SessionStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unsupported SESSION_STORE %q", c.Sessions.Store))
	}

	switch c.Fees.Trigger {
	case FeeTriggerBeforeDue, FeeTriggerOverdue:
	default:
		errs = append(errs, fmt.Errorf("unsupported FEE_TRIGGER %q", c.Fees.Trigger))
	}

	if c.Circulation.LoanDays <= 0 {
		errs = append(errs, fmt.Errorf("LOAN_DAYS must be positive, got %d", c.Circulation.LoanDays))
	}
	if c.Circulation.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be positive, got %d", c.Circulation.PageSize))
	}

	return errors.Join(errs...)
}
