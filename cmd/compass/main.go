package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mindsupport/compass/internal/api"
	"github.com/mindsupport/compass/internal/flow"
	"github.com/mindsupport/compass/internal/genai"
	"github.com/mindsupport/compass/internal/store"
	"github.com/mindsupport/compass/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Compass state data
	DefaultStateDir = "/var/lib/compass"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "compass.db"
	// DefaultAPIAddr is the default API listen address
	DefaultAPIAddr = ":8080"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Error("Failed to initialize completion client", "error", err)
		os.Exit(1)
	}

	gate := genai.NewPacingGate(*flags.maxCallsPerMinute)
	invoker := genai.NewInvoker(client, gate, genai.DefaultRetryPolicy())
	orchestrator := flow.NewOrchestrator(st, flow.NewAssessmentFlow(invoker))

	slog.Info("Bootstrapping Compass",
		"api_addr", *flags.apiAddr,
		"max_calls_per_minute", *flags.maxCallsPerMinute)
	server := api.NewServer(orchestrator, *flags.apiAddr)
	if err := server.Run(); err != nil {
		slog.Error("Compass failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Compass exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL       string
	RedisAddr         string
	StateDir          string
	OpenAIKey         string
	Model             string
	APIAddr           string
	MaxCallsPerMinute int
}

// Flags holds command line flag values
type Flags struct {
	stateDir          *string
	dbDSN             *string
	redisAddr         *string
	openaiKey         *string
	model             *string
	apiAddr           *string
	maxCallsPerMinute *int
}

// initializeLogger sets up structured logging. $COMPASS_DEBUG=true lowers the
// level to debug; the default is info.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("COMPASS_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		StateDir:          os.Getenv("COMPASS_STATE_DIR"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		Model:             os.Getenv("COMPASS_MODEL"),
		APIAddr:           util.EnvOrDefault("API_ADDR", DefaultAPIAddr),
		MaxCallsPerMinute: util.ParseIntEnv("COMPASS_MAX_CALLS_PER_MINUTE", genai.DefaultMaxCallsPerMinute),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No COMPASS_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" && config.RedisAddr == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"COMPASS_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"COMPASS_MAX_CALLS_PER_MINUTE", config.MaxCallsPerMinute)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:          flag.String("state-dir", config.StateDir, "state directory for Compass data (overrides $COMPASS_STATE_DIR)"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "database DSN for the conversation store (overrides $DATABASE_URL)"),
		redisAddr:         flag.String("redis-addr", config.RedisAddr, "Redis address for the conversation store (overrides $REDIS_ADDR)"),
		openaiKey:         flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		model:             flag.String("model", config.Model, "completion model name (overrides $COMPASS_MODEL)"),
		apiAddr:           flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		maxCallsPerMinute: flag.Int("max-calls-per-minute", config.MaxCallsPerMinute, "completion call budget per minute (overrides $COMPASS_MAX_CALLS_PER_MINUTE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr_set", *flags.redisAddr != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"maxCallsPerMinute", *flags.maxCallsPerMinute)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if *flags.redisAddr != "" || isPostgresDSN(*flags.dbDSN) {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// isPostgresDSN reports whether the DSN targets PostgreSQL.
func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// buildStore selects and opens the conversation store from the configured DSN:
// Redis when a Redis address is set, PostgreSQL for postgres DSNs, SQLite for
// file paths.
func buildStore(flags Flags) (store.Store, error) {
	switch {
	case *flags.redisAddr != "":
		slog.Debug("Configuring Redis store", "addr_set", true)
		return store.NewRedisStore(store.WithDSN(*flags.redisAddr))
	case isPostgresDSN(*flags.dbDSN):
		slog.Debug("Configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	default:
		slog.Debug("Configuring SQLite store", "db_path", *flags.dbDSN)
		return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	}
}
