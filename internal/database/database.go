package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/entities"
)

// Models lists every entity managed by the schema migration, in dependency order.
var Models = []any{
	&entities.User{},
	&entities.Book{},
	&entities.Reservation{},
	&entities.AuditEvent{},
}

type Database struct {
	DB     *gorm.DB
	driver string
}

// NewDatabase opens the configured database and migrates the schema.
func NewDatabase(cfg config.Database) (*Database, error) {
	return open(cfg, logger.Default.LogMode(logger.Info))
}

// NewSQLiteDatabase is a shortcut for opening a SQLite file with quiet logging, used by CLI tools and tests.
func NewSQLiteDatabase(path string) (*Database, error) {
	return open(config.Database{Driver: config.DatabaseDriverSQLite, Path: path}, logger.Default.LogMode(logger.Silent))
}

func open(cfg config.Database, gormLogger logger.Interface) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DatabaseDriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required for the postgres driver")
		}
		dialector = postgres.Open(cfg.DSN)
	case config.DatabaseDriverSQLite, "":
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = config.DatabaseDriverSQLite
	}

	target := cfg.Path
	if driver == config.DatabaseDriverPostgres {
		target = "postgres"
	}
	log.Printf("Database initialized successfully (%s)", target)

	return &Database{DB: db, driver: driver}, nil
}

// Driver returns the configured driver name ("sqlite" or "postgres").
func (d *Database) Driver() string {
	return d.driver
}

// Ping checks database connectivity.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
