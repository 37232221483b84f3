// Package directory is the read model behind the administrator's user
// listing. Queries are built with goqu and executed through sqlx so the same
// code serves SQLite and Postgres.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mrlokans/library/internal/config"
	"github.com/mrlokans/library/internal/entities"
	"github.com/mrlokans/library/internal/pagination"
)

const (
	tableUsers        = "users"
	tableReservations = "reservations"
	aliasUsers        = "u"
	aliasReservations = "r"
	aliasCount        = "reservation_count"
)

var ErrBuildingQueryFailed = errors.New("building directory query failed")

// UserSummary is one row of the user listing.
type UserSummary struct {
	ID               uint              `db:"id" json:"id"`
	Username         string            `db:"username" json:"username"`
	Email            string            `db:"email" json:"email"`
	Role             entities.UserRole `db:"role" json:"role"`
	Balance          decimal.Decimal   `db:"balance" json:"balance"`
	ReservationCount int64             `db:"reservation_count" json:"reservation_count"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
}

// Totals are the library-wide counters shown above the listing.
type Totals struct {
	Users        int64 `json:"users"`
	Reservations int64 `json:"reservations"`
}

// Directory answers user listing queries.
type Directory struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

// New wraps an open connection. driver is the configured database driver.
func New(db *sql.DB, driver string) *Directory {
	sqlxDriver, dialect := "sqlite3", "sqlite3"
	if driver == config.DatabaseDriverPostgres {
		sqlxDriver, dialect = "postgres", "postgres"
	}
	return &Directory{
		db:      sqlx.NewDb(db, sqlxDriver),
		dialect: goqu.Dialect(dialect),
	}
}

// Users returns one page of accounts ordered by username, each with the
// number of reservations it holds.
func (d *Directory) Users(ctx context.Context, rawPage string, pageSize int) (pagination.Page[UserSummary], error) {
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	total, err := d.count(ctx, tableUsers)
	if err != nil {
		return pagination.Page[UserSummary]{}, err
	}
	number, offset := pagination.Resolve(rawPage, total, pageSize)

	query, err := d.buildUsersQuery(pageSize, offset)
	if err != nil {
		return pagination.Page[UserSummary]{}, err
	}

	var rows []UserSummary
	if err := d.db.SelectContext(ctx, &rows, query); err != nil {
		return pagination.Page[UserSummary]{}, fmt.Errorf("failed to list users: %w", err)
	}

	return pagination.New(rows, number, pageSize, total), nil
}

// Totals counts every account and every open reservation.
func (d *Directory) Totals(ctx context.Context) (Totals, error) {
	users, err := d.count(ctx, tableUsers)
	if err != nil {
		return Totals{}, err
	}
	reservations, err := d.count(ctx, tableReservations)
	if err != nil {
		return Totals{}, err
	}
	return Totals{Users: users, Reservations: reservations}, nil
}

func (d *Directory) buildUsersQuery(limit, offset int) (string, error) {
	col := func(name string) goqu.Expression { return goqu.I(aliasUsers + "." + name) }

	selectStmt := d.dialect.
		From(goqu.T(tableUsers).As(aliasUsers)).
		LeftJoin(
			goqu.T(tableReservations).As(aliasReservations),
			goqu.On(goqu.I(aliasReservations+".user_id").Eq(goqu.I(aliasUsers+".id"))),
		).
		Select(
			col("id"), col("username"), col("email"), col("role"), col("balance"), col("created_at"),
			goqu.COUNT(goqu.I(aliasReservations+".id")).As(aliasCount),
		).
		GroupBy(col("id"), col("username"), col("email"), col("role"), col("balance"), col("created_at")).
		Order(goqu.I(aliasUsers + ".username").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset))

	query, _, err := selectStmt.ToSQL()
	if err != nil {
		return "", errors.Join(ErrBuildingQueryFailed, err)
	}
	return query, nil
}

func (d *Directory) count(ctx context.Context, table string) (int64, error) {
	query, _, err := d.dialect.From(table).Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return 0, errors.Join(ErrBuildingQueryFailed, err)
	}

	var n int64
	if err := d.db.GetContext(ctx, &n, query); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
