package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BTreeMap/BotRouter/internal/api"
	"github.com/BTreeMap/BotRouter/internal/app"
	"github.com/BTreeMap/BotRouter/internal/lockfile"
	"github.com/BTreeMap/BotRouter/internal/store"
)

// logLevel is adjusted once flags are parsed.
var logLevel = new(slog.LevelVar)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Failed to load environment configuration", "error", err)
		os.Exit(1)
	}

	// Parse command line flags
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse command line flags", "error", err)
		os.Exit(1)
	}
	if err := setLogLevel(*flags.logLevel); err != nil {
		slog.Warn("Invalid log level, keeping debug", "level", *flags.logLevel, "error", err)
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping BotRouter")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "redis", config.Redis.Enabled())
	if err := run(ctx, config, flags); err != nil {
		slog.Error("BotRouter failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("BotRouter exited successfully")
}

// Flags holds command line flag values
type Flags struct {
	stateDir *string
	dbDSN    *string
	apiAddr  *string
	logLevel *string
}

// initializeLogger sets up structured logging, debug until configured otherwise
func initializeLogger() {
	logLevel.Set(slog.LevelDebug)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}

func setLogLevel(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	logLevel.Set(l)
	return nil
}

// loadEnvironmentConfig loads configuration from the .env file and environment variables
func loadEnvironmentConfig() (app.Config, error) {
	config, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}
	slog.Debug("environment variables loaded",
		"BOTROUTER_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"LOG_LEVEL", config.LogLevel,
		"BOTROUTER_SECRET_KEY_SET", config.SecretKey != "",
		"REDIS_URL_SET", config.Redis.Enabled(),
		"PROVIDER_TIMEOUT", config.ProviderTimeout)
	return config, nil
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config app.Config) (Flags, error) {
	flags := Flags{
		stateDir: fs.String("state-dir", config.StateDir, "state directory for BotRouter data (overrides $BOTROUTER_STATE_DIR)"),
		dbDSN:    fs.String("db-dsn", config.DatabaseURL, "database DSN, SQLite path or PostgreSQL/MySQL URL (overrides $DATABASE_URL)"),
		apiAddr:  fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		logLevel: fs.String("log-level", config.LogLevel, "log level: debug, info, warn or error (overrides $LOG_LEVEL)"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"logLevel", *flags.logLevel)

	// Move the default SQLite file along with an overridden state directory
	if *flags.dbDSN == config.DefaultDSN() && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, app.DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "old_state_dir", config.StateDir, "new_state_dir", *flags.stateDir)
	}
	return flags, nil
}

// ensureDirectoriesExist creates the parent directory of a file-based DSN
func ensureDirectoriesExist(flags Flags) error {
	if *flags.dbDSN == "" || store.DetectDSNType(*flags.dbDSN) != store.DSNTypeSQLite {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	return nil
}

// lockStateDir prevents two servers from sharing one SQLite file.
func lockStateDir(flags Flags) (*lockfile.Lock, error) {
	if *flags.dbDSN == "" || store.DetectDSNType(*flags.dbDSN) != store.DSNTypeSQLite {
		return nil, nil
	}
	return lockfile.Acquire(filepath.Dir(*flags.dbDSN), *flags.apiAddr)
}

func run(ctx context.Context, config app.Config, flags Flags) error {
	lock, err := lockStateDir(flags)
	if err != nil {
		return err
	}
	defer lock.Release()

	a, err := app.New(config, *flags.dbDSN)
	if err != nil {
		return err
	}
	defer a.Close()
	if !a.Engine.IsReady(ctx) {
		slog.Warn("No active flow or configured response yet, answers depend on provider keys")
	}
	return a.Server(api.WithAddr(*flags.apiAddr)).Run(ctx)
}
