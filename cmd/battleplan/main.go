package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/salasoft/battleplan/internal/analytics"
	"github.com/salasoft/battleplan/internal/api"
	"github.com/salasoft/battleplan/internal/catalog"
	"github.com/salasoft/battleplan/internal/enrollment"
	"github.com/salasoft/battleplan/internal/events"
	"github.com/salasoft/battleplan/internal/planner"
	"github.com/salasoft/battleplan/internal/reminder"
	"github.com/salasoft/battleplan/internal/schedule"
	"github.com/salasoft/battleplan/internal/store"
	"github.com/salasoft/battleplan/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for battleplan state data
	DefaultStateDir = "/var/lib/battleplan"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "battleplan.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("battleplan failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("battleplan exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	SweepCron   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	sweepCron *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("BATTLEPLAN_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		SweepCron:   os.Getenv("SWEEP_SCHEDULE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BATTLEPLAN_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Without a database URL, default to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"BATTLEPLAN_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SWEEP_SCHEDULE", config.SweepCron)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for battleplan data (overrides $BATTLEPLAN_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN: postgres:// URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key for plan generation (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sweepCron: flag.String("sweep-cron", config.SweepCron, "cron schedule for the daily mission sweep (overrides $SWEEP_SCHEDULE)"),
	}
	flag.Parse()
	return flags
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	clock := schedule.SystemClock{}
	bus := events.NewBus()

	cat := catalog.NewCatalog(st, clock)
	tracker := enrollment.NewTracker(st, clock)
	processor := enrollment.NewCompletionProcessor(st, clock, bus)
	aggregator := analytics.NewAggregator(st, clock, nil)

	apiOpts := []api.Option{}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.openaiKey != "" {
		gen, err := planner.NewGenerator(cat, planner.WithAPIKey(*flags.openaiKey))
		if err != nil {
			return err
		}
		apiOpts = append(apiOpts, api.WithGenerator(gen))
		slog.Info("Plan generation enabled")
	} else {
		slog.Warn("No OpenAI API key configured, plan generation disabled")
	}

	if util.ParseBoolEnv("SWEEP_ENABLED", true) {
		reminderOpts := []reminder.Option{
			reminder.WithParallelism(util.ParseIntEnv("SWEEP_PARALLELISM", 8)),
		}
		if *flags.sweepCron != "" {
			reminderOpts = append(reminderOpts, reminder.WithCronSpec(*flags.sweepCron))
		}
		sweeper := reminder.NewService(st, clock, bus, reminderOpts...)
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
	} else {
		slog.Warn("Daily mission sweep disabled via SWEEP_ENABLED")
	}

	server := api.NewServer(cat, tracker, processor, aggregator, clock, apiOpts...)
	slog.Info("Bootstrapping battleplan", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "")
	return server.Run(ctx)
}

// openStore picks the backend from the DSN shape: postgres URLs go to the
// Postgres store, everything else is treated as a SQLite path.
func openStore(dsn string) (store.Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		slog.Info("Using Postgres store")
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Info("Using SQLite store", "path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}
