package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/expense-tracker/internal/expense"
	"github.com/zombor/expense-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const defaultModels = "gemini-2.5-flash,gemini-1.5-flash,gemini-1.5-pro,gemini-pro,gemini-pro-vision"

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is fine; flags and the environment still apply
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		os.Exit(1)
	}

	fs := ff.NewFlagSet("expense-tracker")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		storeType     = fs.StringLong("store", "bolt", "Record store: 'bolt' or 'postgres'")
		dbPath        = fs.StringLong("db", "expense-tracker.db", "Database file path (bolt store)")
		postgresURL   = fs.StringLong("postgres-url", "", "Postgres connection URL (postgres store)")
		models        = fs.StringLong("models", defaultModels, "Comma-separated backend IDs in priority order, e.g. 'gemini-2.5-flash,ollama:llava,openai:gpt-4o-mini'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiTimeout = fs.DurationLong("gemini-timeout", scanning.DefaultGeminiTimeout, "Per-call Gemini timeout")
		ollamaURL     = fs.StringLong("ollama-url", scanning.DefaultOllamaURL, "Ollama API base URL")
		ollamaTimeout = fs.DurationLong("ollama-timeout", scanning.DefaultOllamaTimeout, "Per-call Ollama timeout")
		openAIKey     = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openAIBaseURL = fs.StringLong("openai-base-url", "", "OpenAI-compatible API base URL (optional)")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel      = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat     = fs.StringLong("log-format", "text", "Log format: 'text' or 'json'")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx := context.Background()

	// Initialize record store
	var store expense.Store
	switch *storeType {
	case "bolt":
		slog.Info("Initializing database...", "path", *dbPath)
		store, err = expense.NewBoltDB(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
	case "postgres":
		if *postgresURL == "" {
			slog.Error("Postgres URL is required. Set --postgres-url flag or EXPENSE_TRACKER_POSTGRES_URL environment variable")
			os.Exit(1)
		}
		slog.Info("Connecting to Postgres...")
		pg, err := expense.NewPostgresStore(ctx, *postgresURL)
		if err != nil {
			slog.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("Failed to migrate Postgres schema", "error", err)
			os.Exit(1)
		}
		store = pg
	default:
		slog.Error("Invalid store type", "type", *storeType, "valid", "bolt or postgres")
		os.Exit(1)
	}
	defer store.Close()

	// Initialize backends
	router := scanning.NewRouter()
	defer router.Close()

	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey != "" {
		slog.Info("Initializing Gemini backend...", "timeout", *geminiTimeout)
		gemini, err := scanning.NewGemini(ctx, apiKey, *geminiTimeout)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		router.Register(scanning.ProviderGemini, gemini)
	} else {
		slog.Warn("No Gemini API key configured; gemini backends will fail over")
	}

	slog.Info("Initializing Ollama backend...", "url", *ollamaURL, "timeout", *ollamaTimeout)
	router.Register(scanning.ProviderOllama, scanning.NewOllama(*ollamaURL, *ollamaTimeout))

	openAIToken := *openAIKey
	if openAIToken == "" {
		openAIToken = os.Getenv("OPENAI_API_KEY")
	}
	if openAIToken != "" {
		slog.Info("Initializing OpenAI backend...", "base_url", *openAIBaseURL)
		router.Register(scanning.ProviderOpenAI, scanning.NewOpenAI(openAIToken, *openAIBaseURL, scanning.DefaultOpenAITimeout))
	}

	backends := splitModels(*models)
	if len(backends) == 0 {
		slog.Error("At least one backend is required. Set --models flag or EXPENSE_TRACKER_MODELS environment variable")
		os.Exit(1)
	}
	slog.Info("Extraction waterfall configured", "backends", backends)
	waterfall := scanning.NewWaterfall(router, backends)

	// Initialize service
	expenseService := expense.NewService(store, waterfall)

	// Initialize server
	basicAuth := expense.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := expense.NewServer(expenseService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}
}

// newLogger builds the process logger from the log flags
func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

func splitModels(value string) []string {
	var ids []string
	for _, id := range strings.Split(value, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
