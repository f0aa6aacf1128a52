package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrations embed.FS

// Migrate brings the schema up to the latest version. Running it on an
// up-to-date database is a no-op.
func (g *Gateway) Migrate(ctx context.Context) error {
	conn, err := g.open(ctx)
	if err != nil {
		return err
	}

	driver, err := migrationDriver(g.driver, conn)
	if err != nil {
		conn.Close()
		return err
	}
	source, err := iofs.New(migrations, "migrations/"+g.driver)
	if err != nil {
		conn.Close()
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, g.driver, driver)
	if err != nil {
		conn.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	// closing m also closes conn
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	version, _, _ := m.Version()
	g.logger.Info("schema up to date", zap.String("driver", g.driver), zap.Uint("version", version))
	return nil
}

func migrationDriver(driver string, conn *sql.DB) (database.Driver, error) {
	switch driver {
	case DriverSQLite:
		return migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	case DriverMySQL:
		return migratemysql.WithInstance(conn, &migratemysql.Config{})
	case DriverPostgres:
		return migratepgx.WithInstance(conn, &migratepgx.Config{})
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
}
