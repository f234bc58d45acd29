package auth

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// DefaultPingTimeout bounds the connectivity check done when the client opens
const DefaultPingTimeout = 5 * time.Second

const migrationsRoot = "data/sql/migrations"

func init() {
	persistence.RegisterModel((*Account)(nil))
	persistence.RegisterModel((*ConfirmationToken)(nil))
}

// PersistenceConfig describes the database the persistence client opens
type PersistenceConfig struct {
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c PersistenceConfig) GetDebug() bool { return c.Debug }

func (c PersistenceConfig) GetDriver() string {
	if isPostgresDSN(c.DSN) {
		return "postgres"
	}
	return sqliteshim.ShimName
}

func (c PersistenceConfig) GetServer() string { return c.DSN }

func (c PersistenceConfig) GetDSN() string { return c.DSN }

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return DefaultPingTimeout
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string { return "" }

// OpenPersistence opens the database for cfg.DSN and wraps it in a
// persistence client. postgres:// and postgresql:// DSNs use pgdriver,
// anything else is handed to sqlite.
func OpenPersistence(cfg PersistenceConfig) (*persistence.Client, error) {
	var (
		sqldb   *sql.DB
		dialect schema.Dialect
	)

	if isPostgresDSN(cfg.DSN) {
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		dialect = pgdialect.New()
	} else {
		db, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		// sqlite serializes writers, a single connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
		sqldb = db
		dialect = sqlitedialect.New()
	}

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		_ = sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create persistence client")
	}

	return client, nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Migrate registers the embedded per dialect migrations with client and
// applies the ones not yet recorded as run.
func Migrate(ctx context.Context, client *persistence.Client) error {
	migrations, err := fs.Sub(GetMigrationsFS(), migrationsRoot)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read migrations")
	}

	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel(migrationsRoot),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "migrations are missing a dialect")
	}

	if err := client.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "migration failed")
	}

	return nil
}
