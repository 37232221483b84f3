// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup (sqlite or postgres) and migrations
//	├── books/           # Catalog CRUD and filtered listing
//	├── reservations/    # Reservation ledger queries and mutations
//	├── users/           # Account lookups, balance updates, deletion
//	└── audit/           # Audit event storage and retention
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type bound to a *gorm.DB. Repositories
// accept the handle they are given, so the circulation service can bind them
// to a transaction:
//
//	db, err := database.NewDatabase(cfg.Database)
//
//	err = db.DB.Transaction(func(tx *gorm.DB) error {
//		book, err := books.NewRepository(tx).GetByID(bookID)
//		...
//	})
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Register new entities in Models
package database
