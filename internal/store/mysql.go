// Package store provides storage backends for BotRouter.
//
// This file implements a MySQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "embed"

	"github.com/go-sql-driver/mysql"
)

//go:embed migrations_mysql.sql
var mysqlMigrations string

// MySQLStore persists bot configuration in MySQL or TiDB.
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore creates a new MySQL store from a go-sql-driver DSN
// (user:pass@tcp(host:3306)/db). A leading mysql:// is ignored.
func NewMySQLStore(opts ...Option) (*MySQLStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("MySQLStore.NewMySQLStore: creating MySQL store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("MySQLStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	mcfg, err := mysql.ParseDSN(strings.TrimPrefix(cfg.DSN, "mysql://"))
	if err != nil {
		slog.Error("Failed to parse MySQL DSN", "error", err)
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if mcfg.Params == nil {
		mcfg.Params = map[string]string{}
	}
	if _, ok := mcfg.Params["charset"]; !ok {
		mcfg.Params["charset"] = "utf8mb4"
	}

	db, err := sql.Open("mysql", mcfg.FormatDSN())
	if err != nil {
		slog.Error("Failed to open MySQL connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("MySQL ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Running MySQL migrations")
	if err := runMigrations(db, mysqlMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("MySQL migrations applied successfully")
	return &MySQLStore{sqlStore{db: db, dialect: mysqlDialect}}, nil
}
