package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"knowtrace/internal/config"
	"knowtrace/internal/engine"
	"knowtrace/internal/graph"
	"knowtrace/internal/store"
	"knowtrace/internal/types"
)

var (
	// Global flags
	configPath  string
	catalogPath string
	dbPath      string
	verbose     bool

	// Shared state built by the pre-run hooks
	cfg        *config.Config
	logger     *zap.Logger
	app        *engine.Engine
	appStore   *store.LocalStore
	appWatcher *graph.Watcher
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "knowtrace",
	Short: "knowtrace - Knowledge-tracing and adaptation engine",
	Long: `knowtrace models what a learner knows and adapts what they see next.

Every answer updates a Bayesian knowledge-tracing estimate modulated by
stress, cognitive load, and time pressure, propagates mastery across the
concept graph, and produces a difficulty band, prerequisite suggestions, and
intervention recommendations derived from a Datalog policy kernel.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appWatcher != nil {
			appWatcher.Stop()
		}
		if appStore != nil {
			_ = appStore.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		applyFlagOverrides(c)
		return c, nil
	}
	c := config.DefaultConfig()
	applyFlagOverrides(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyFlagOverrides(c *config.Config) {
	if catalogPath != "" {
		c.Catalog.Path = catalogPath
	}
	if dbPath != "" {
		c.Store.Path = dbPath
		c.Store.Enabled = true
	}
	if v := os.Getenv("KNOWTRACE_CATALOG"); v != "" && catalogPath == "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("KNOWTRACE_DB"); v != "" && dbPath == "" {
		c.Store.Path = v
		c.Store.Enabled = true
	}
}

func buildLogger(c *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if !c.Logging.JSON {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// ensureEngine builds the engine on first use: catalog, optional store
// replay, optional catalog watcher. Commands that operate on pure inputs
// never pay the catalog cost.
func ensureEngine() (*engine.Engine, error) {
	if app != nil {
		return app, nil
	}

	g, err := graph.LoadCatalogFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.Catalog.Path, err)
	}
	holder := graph.NewHolder(g)

	e, err := engine.New(cfg, holder, types.SystemClock{}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Store.Enabled {
		s, err := store.NewLocalStore(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
		}
		appStore = s
		e.AttachStore(s)
		if err := replayProfiles(e, s); err != nil {
			return nil, err
		}
	}

	if cfg.Catalog.Watch {
		debounce := time.Duration(cfg.Catalog.DebounceMs) * time.Millisecond
		w, err := graph.NewWatcher(cfg.Catalog.Path, holder, debounce, logger)
		if err != nil {
			logger.Warn("catalog watcher unavailable", zap.Error(err))
		} else if err := w.Start(); err != nil {
			logger.Warn("catalog watcher failed to start", zap.Error(err))
		} else {
			appWatcher = w
		}
	}

	app = e
	return app, nil
}

// replayProfiles restores the newest persisted snapshot for every known
// learner.
func replayProfiles(e *engine.Engine, s *store.LocalStore) error {
	ctx := context.Background()
	learners, err := s.Learners(ctx)
	if err != nil {
		return err
	}
	for _, id := range learners {
		snap, err := s.LoadLatest(ctx, id)
		if err != nil {
			return err
		}
		if err := e.RestoreProfile(snap); err != nil {
			return fmt.Errorf("restore %s: %w", id, err)
		}
	}
	if len(learners) > 0 {
		logger.Info("profiles restored", zap.Int("learners", len(learners)))
	}
	return nil
}

// persistAll writes every in-memory learner back to the store.
func persistAll(e *engine.Engine) error {
	if appStore == nil {
		return nil
	}
	ctx := context.Background()
	for _, id := range e.Learners() {
		if err := e.Persist(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "concept catalog file (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite profile store (overrides config, implies persistence)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
