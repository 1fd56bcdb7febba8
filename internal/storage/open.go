package storage

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	logx "satsalert/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"))

	var (
		db     *sqlx.DB
		schema string
		err    error
	)
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		db, err = openSQLite(ctx, cfg)
		schema = "migrations/sqlite.sql"
	case "postgres", "postgresql":
		db, err = openPostgres(ctx, cfg)
		schema = "migrations/postgres.sql"
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	st := &sqlStore{db: db, log: log, now: time.Now}
	if err := st.migrate(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage migrate: %w", err)
	}
	log.Info("storage ready", logx.String("driver", db.DriverName()))
	return st, nil
}

func (s *sqlStore) migrate(ctx context.Context, name string) error {
	b, err := migrationsFS.ReadFile(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}
