package config

// Default paths for databases
const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./library.db"

	// DefaultEnvFile is loaded into the environment before configuration is read, if present
	DefaultEnvFile = ".env"
)

// Supported database drivers
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// Supported session stores
const (
	SessionStoreSQLite = "sqlite"
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)
