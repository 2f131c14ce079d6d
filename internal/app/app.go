// Package app loads BotRouter configuration and wires the decision pipeline
// shared by the server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/BTreeMap/BotRouter/internal/api"
	"github.com/BTreeMap/BotRouter/internal/cache"
	"github.com/BTreeMap/BotRouter/internal/credentials"
	"github.com/BTreeMap/BotRouter/internal/decision"
	"github.com/BTreeMap/BotRouter/internal/flow"
	"github.com/BTreeMap/BotRouter/internal/genai"
	"github.com/BTreeMap/BotRouter/internal/knowledge"
	"github.com/BTreeMap/BotRouter/internal/models"
	"github.com/BTreeMap/BotRouter/internal/persona"
	"github.com/BTreeMap/BotRouter/internal/prompt"
	"github.com/BTreeMap/BotRouter/internal/responses"
	"github.com/BTreeMap/BotRouter/internal/store"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for BotRouter state data
	DefaultStateDir = "/var/lib/botrouter"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "botrouter.db"
)

// Config holds environment configuration
type Config struct {
	StateDir    string `envconfig:"BOTROUTER_STATE_DIR" default:"/var/lib/botrouter"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	APIAddr     string `envconfig:"API_ADDR" default:":8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"debug"`
	SecretKey   string `envconfig:"BOTROUTER_SECRET_KEY"`

	BotInfoCacheTTL   time.Duration `envconfig:"BOT_INFO_CACHE_TTL" default:"30s"`
	ResponsesCacheTTL time.Duration `envconfig:"RESPONSES_CACHE_TTL" default:"60s"`
	FlowCacheTTL      time.Duration `envconfig:"FLOW_CACHE_TTL" default:"300s"`

	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s"`
	OpenAIBaseURL   string        `envconfig:"OPENAI_BASE_URL"`
	MistralBaseURL  string        `envconfig:"MISTRAL_BASE_URL"`
	ClaudeBaseURL   string        `envconfig:"CLAUDE_BASE_URL"`

	Redis cache.RedisConfig
}

// DefaultDSN is the SQLite file inside the state directory.
func (c Config) DefaultDSN() string {
	return filepath.Join(c.StateDir, DefaultDBFileName)
}

// GenAI maps provider settings onto the dispatcher config.
func (c Config) GenAI() genai.Config {
	return genai.Config{
		OpenAIBaseURL:  c.OpenAIBaseURL,
		MistralBaseURL: c.MistralBaseURL,
		ClaudeBaseURL:  c.ClaudeBaseURL,
		Timeout:        c.ProviderTimeout,
	}
}

// LoadConfig reads the .env file, if any, then the environment. Without a
// DATABASE_URL the store defaults to SQLite in the state directory.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("LoadConfig: failed to load .env file", "error", err)
	} else {
		slog.Debug("LoadConfig: successfully loaded .env file")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return Config{}, fmt.Errorf("failed to process environment: %w", err)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = config.DefaultDSN()
		slog.Debug("LoadConfig: no database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	return config, nil
}

// StoreOptions selects the store backend for dsn. An empty dsn yields no
// options and therefore the in-memory store.
func StoreOptions(dsn string) []store.Option {
	var storeOpts []store.Option
	if dsn == "" {
		slog.Debug("StoreOptions: no database DSN provided, will use in-memory store")
		return storeOpts
	}
	switch store.DetectDSNType(dsn) {
	case store.DSNTypePostgres:
		slog.Debug("StoreOptions: detected PostgreSQL DSN", "dsn_type", "postgresql")
		storeOpts = append(storeOpts, store.WithPostgresDSN(dsn))
	case store.DSNTypeMySQL:
		slog.Debug("StoreOptions: detected MySQL DSN", "dsn_type", "mysql")
		storeOpts = append(storeOpts, store.WithMySQLDSN(dsn))
	default:
		slog.Debug("StoreOptions: detected SQLite DSN", "dsn_type", "sqlite", "db_path", dsn)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(dsn))
	}
	return storeOpts
}

// App is the wired component graph.
type App struct {
	Store       store.Store
	Resolver    *persona.Resolver
	Responses   *responses.Manager
	Flows       *flow.Executor
	Knowledge   *knowledge.Integrator
	Dispatcher  *genai.Dispatcher
	Credentials *credentials.Resolver // nil without BOTROUTER_SECRET_KEY
	Engine      *decision.Engine

	closers []func() error
}

// New opens the store at dsn and the optional Redis cache, then wires every
// component. The provider stage is enabled only when a secret key is set.
func New(cfg Config, dsn string) (*App, error) {
	st, err := store.Open(StoreOptions(dsn)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a := &App{Store: st, closers: []func() error{st.Close}}

	var factory cache.Factory
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		factory.Client = rdb
		a.closers = append(a.closers, rdb.Close)
		slog.Info("App.New: using Redis shared cache")
	}

	a.Resolver = persona.NewResolver(st, cache.NewCache[models.BotInfo](factory, "bot_info", cfg.BotInfoCacheTTL))
	a.Responses = responses.NewManager(st, st, a.Resolver, cache.NewCache[responses.Snapshot](factory, "responses", cfg.ResponsesCacheTTL))
	a.Flows = flow.NewExecutor(st, cache.NewCache[models.FlowGraph](factory, "flows", cfg.FlowCacheTTL))
	a.Knowledge = knowledge.NewIntegrator(st)
	a.Dispatcher = genai.NewDispatcher(cfg.GenAI(), genai.WithUsageLog(st))

	var gen decision.Generator
	if cfg.SecretKey != "" {
		sealer, err := credentials.NewSealer(cfg.SecretKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid BOTROUTER_SECRET_KEY: %w", err)
		}
		a.Credentials = credentials.NewResolver(st, sealer)
		builder := prompt.NewBuilder(a.Resolver, a.Responses, a.Knowledge, nil)
		gen = decision.NewAPIManager(a.Credentials, builder, a.Dispatcher)
	} else {
		slog.Warn("App.New: BOTROUTER_SECRET_KEY not set, provider stage disabled")
	}

	a.Engine = decision.NewEngine(a.Flows, a.Responses, a.Knowledge, gen)
	return a, nil
}

// ClearCaches drops the bot info, response and flow caches.
func (a *App) ClearCaches(ctx context.Context) {
	a.Resolver.ClearCache(ctx, 0)
	a.Responses.ClearCache(ctx)
	a.Flows.ClearCache(ctx)
}

// Server returns the HTTP server for the wired engine.
func (a *App) Server(opts ...api.Option) *api.Server {
	opts = append([]api.Option{
		api.WithCacheClearer("bot_info", func(ctx context.Context) { a.Resolver.ClearCache(ctx, 0) }),
		api.WithCacheClearer("responses", a.Responses.ClearCache),
		api.WithCacheClearer("flows", a.Flows.ClearCache),
	}, opts...)
	return api.NewServer(a.Engine, a.Responses, a.Store, opts...)
}

// Close releases the store and cache connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("App.Close: failed to release resource", "error", err)
		}
	}
}
