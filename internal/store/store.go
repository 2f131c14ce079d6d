// Package store provides storage backends for BotRouter.
//
// It exposes narrow repository interfaces for each consumer (settings, canned
// responses, conversation flows, knowledge, usage accounting) and implements
// them over SQLite, PostgreSQL, MySQL and an in-memory map for tests.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// ErrNotFound is returned by mutations that target a missing row.
var ErrNotFound = errors.New("record not found")

// SettingsRepo resolves bot identity and provider credential rows.
// Lookups return (nil, nil) when no row matches.
type SettingsRepo interface {
	GetUserSettings(userID int64) (*models.Settings, error)
	GetGlobalSettings() (*models.Settings, error)
	GetFirstSettings() (*models.Settings, error)
	SaveSettings(s *models.Settings) error
}

// ResponseRepo holds the canned response configuration.
type ResponseRepo interface {
	GetBotResponses() (*models.BotResponses, error)
	SaveBotResponses(r *models.BotResponses) error
	ListDefaultMessages() ([]models.DefaultMessage, error)
	CountDefaultMessages() (int, error)
	SaveDefaultMessage(m *models.DefaultMessage) error
	DeleteDefaultMessage(id int64) error
}

// FlowRepo holds conversation flow graphs.
type FlowRepo interface {
	HasActiveFlows() (bool, error)
	ListActiveFlows() ([]models.ConversationFlow, error)
	ListFlows() ([]models.ConversationFlow, error)
	GetFlowGraph(flowID int64) (*models.FlowGraph, error)
	// SaveFlowGraph validates and persists a whole graph. Node ids in the input
	// are local to the request; they are reassigned and connections remapped.
	SaveFlowGraph(g *models.FlowGraph) error
	SetFlowActive(flowID int64, active bool) error
	DeleteFlow(flowID int64) error
}

// KnowledgeRepo holds FAQs, documents, response rules and their categories.
type KnowledgeRepo interface {
	ListCategories() ([]models.KnowledgeCategory, error)
	SaveCategory(c *models.KnowledgeCategory) error
	ListFAQs() ([]models.FAQ, error)
	SaveFAQ(f *models.FAQ) error
	ListDocuments() ([]models.Document, error)
	SaveDocument(d *models.Document) error
	ListActiveRules() ([]models.ResponseRule, error)
	SaveRule(r *models.ResponseRule) error
}

// UsageRepo records provider calls.
type UsageRepo interface {
	AddUsageLog(l models.UsageLog) error
	ListUsageLogs(userID int64) ([]models.UsageLog, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	SettingsRepo
	ResponseRepo
	FlowRepo
	KnowledgeRepo
	UsageRepo
	Ping() error
	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a functional option for configuring stores.
type Option func(*Opts)

// WithSQLiteDSN sets the file path of an SQLite database.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithMySQLDSN sets the MySQL connection string (go-sql-driver format).
func WithMySQLDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DSN types returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeMySQL    = "mysql"
	DSNTypeSQLite   = "sqlite3"
)

// DetectDSNType guesses the backend for a DSN.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"),
		strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return DSNTypePostgres
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("), strings.Contains(lower, "@unix("):
		return DSNTypeMySQL
	default:
		return DSNTypeSQLite
	}
}

// Open returns the backend selected by the DSN, or an in-memory store when no DSN is set.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("store.Open: no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(cfg.DSN) {
	case DSNTypePostgres:
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	case DSNTypeMySQL:
		return NewMySQLStore(WithMySQLDSN(cfg.DSN))
	case DSNTypeSQLite:
		return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported DSN type for %q", cfg.DSN)
	}
}
