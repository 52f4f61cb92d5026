// CLAUDE:SUMMARY CLI entry point for inviterelay: root command, persistent flags, config/logger/store setup shared by subcommands.
// Command inviterelay carries invite codes from the capture site to the
// submit site.
//
// Usage:
//
//	inviterelay run                    # both loops, one browser
//	inviterelay capture                # capture loop only
//	inviterelay submit                 # submit loop only
//	inviterelay status --follow        # print the shared state on change
//	inviterelay set-code AB12CD        # inject a code by hand
//	inviterelay reset                  # clear the code and counter
//	inviterelay mcp                    # MCP server on stdio
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/inviterelay/dbopen"
	"github.com/hazyhaar/inviterelay/observability"
	"github.com/hazyhaar/inviterelay/relay"
	"github.com/hazyhaar/inviterelay/store"
)

var (
	configPath string
	logLevel   string
	memoryOnly bool
	storePath  string
)

var rootCmd = &cobra.Command{
	Use:           "inviterelay",
	Short:         "inviterelay relays an invite code from one site to another with a per-code retry limit.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "path to inviterelay.yaml")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&memoryOnly, "memory", false, "keep state in process memory instead of SQLite")
	pf.StringVar(&storePath, "store", "", "path to the SQLite state file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "inviterelay:", err)
		os.Exit(1)
	}
}

// env is what every subcommand starts from.
type env struct {
	cfg     *relay.Config
	logger  *slog.Logger
	store   store.Store
	journal *observability.Journal // nil with --memory
	db      *sql.DB
}

func (e *env) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// setup loads the configuration, applies flag overrides, builds the
// logger and opens the store.
func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := relay.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
		cfg.Debug = logLevel == "debug"
	}
	if flags.Changed("memory") {
		cfg.Store.Memory = memoryOnly
	}
	if flags.Changed("store") {
		cfg.Store.Path = storePath
	}

	e := &env{cfg: cfg, logger: newLogger(cfg)}
	slog.SetDefault(e.logger)

	if cfg.Store.Memory {
		e.store = store.NewMemory()
		return e, nil
	}
	db, err := dbopen.Open(cfg.Store.Path,
		dbopen.WithMkdirAll(),
		dbopen.WithBusyTimeout(int(cfg.Store.BusyTimeout.Milliseconds())),
		dbopen.WithSchema(store.Schema),
		dbopen.WithSchema(observability.Schema),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e.db = db
	e.store = store.NewSQLite(db,
		store.WithPollInterval(cfg.Store.PollInterval),
		store.WithLogger(e.logger),
	)
	e.journal = observability.NewJournal(db)
	return e, nil
}

// operator builds the manual control surface for one-shot commands.
func (e *env) operator(runID string) *relay.Operator {
	opts := []relay.OperatorOption{relay.WithOperatorLogger(e.logger)}
	if e.journal != nil {
		opts = append(opts,
			relay.WithEventReader(e.journal),
			relay.WithOperatorSink(e.journal, runID),
		)
	}
	return relay.NewOperator(e.store, e.cfg.Loop.MaxTriesPerCode, opts...)
}

func newLogger(cfg *relay.Config) *slog.Logger {
	var level slog.Level
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.LogLevel == "debug":
		level = slog.LevelDebug
	case cfg.LogLevel == "warn":
		level = slog.LevelWarn
	case cfg.LogLevel == "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
