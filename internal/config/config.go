// Package config holds the knowtrace configuration: policy knobs for the
// tracing engine, catalog/store paths, and logging switches. Configuration is
// yaml on disk with environment-variable overrides for paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all knowtrace configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Catalog is the concept catalog location.
	Catalog CatalogConfig `yaml:"catalog"`

	// Engine holds the knowledge-tracing policy knobs.
	Engine EngineConfig `yaml:"engine"`

	// Stress configures the behavioral stress detector.
	Stress StressConfig `yaml:"stress"`

	// Transfer configures cross-concept transfer.
	Transfer TransferConfig `yaml:"transfer"`

	// Store configures snapshot persistence.
	Store StoreConfig `yaml:"store"`

	// Logging controls log output.
	Logging LoggingConfig `yaml:"logging"`
}

// CatalogConfig locates the concept catalog and its watcher behavior.
type CatalogConfig struct {
	Path          string `yaml:"path"`
	Watch         bool   `yaml:"watch"`
	DebounceMs    int    `yaml:"debounce_ms"`
	RejectOnCycle bool   `yaml:"reject_on_cycle"` // always true in practice; kept explicit for operators
}

// EngineConfig holds the BKT update policy knobs. Window sizes are policy,
// not correctness; the documented defaults are N=20, M=50.
type EngineConfig struct {
	ConceptWindow      int     `yaml:"concept_window"`      // N: per-concept recent outcomes
	OverallWindow      int     `yaml:"overall_window"`      // M: cross-concept recent outcomes
	ReadinessThreshold float64 `yaml:"readiness_threshold"` // τ for prerequisite gaps
	ReadyCutoff        float64 `yaml:"ready_cutoff"`        // overall readiness needed to be "ready"
	UpdateBudget       string  `yaml:"update_budget"`       // per-update wall budget, "" disables
	Workers            int     `yaml:"workers"`             // dispatcher worker count
	QueueSize          int     `yaml:"queue_size"`          // dispatcher channel capacity
}

// StressConfig holds the detector window and tier thresholds.
type StressConfig struct {
	Window        int     `yaml:"window"` // W: behavioral samples retained
	MildLevel     float64 `yaml:"mild_level"`
	ModerateLevel float64 `yaml:"moderate_level"`
	HighLevel     float64 `yaml:"high_level"`
}

// CrossSubjectRule is one entry of the cross-subject transfer catalog.
type CrossSubjectRule struct {
	Source   string  `yaml:"source"`
	Target   string  `yaml:"target"`
	Strength float64 `yaml:"strength"`
}

// TransferConfig holds the transfer-learning knobs. The cross-subject table
// is configuration, not code.
type TransferConfig struct {
	MasteryThreshold float64            `yaml:"mastery_threshold"` // τ_t: source mastery needed to transfer
	TotalCap         float64            `yaml:"total_cap"`
	AuditCapacity    int                `yaml:"audit_capacity"` // ring buffer size
	AuditMinAmount   float64            `yaml:"audit_min_amount"`
	CrossSubject     []CrossSubjectRule `yaml:"cross_subject"`
}

// StoreConfig configures SQLite snapshot persistence.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls zap output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "knowtrace",
		Version: "1.0.0",
		Catalog: CatalogConfig{
			Path:          "catalog.yaml",
			Watch:         false,
			DebounceMs:    500,
			RejectOnCycle: true,
		},
		Engine: EngineConfig{
			ConceptWindow:      20,
			OverallWindow:      50,
			ReadinessThreshold: 0.7,
			ReadyCutoff:        0.8,
			UpdateBudget:       "",
			Workers:            4,
			QueueSize:          256,
		},
		Stress: StressConfig{
			Window:        10,
			MildLevel:     0.35,
			ModerateLevel: 0.55,
			HighLevel:     0.75,
		},
		Transfer: TransferConfig{
			MasteryThreshold: 0.75,
			TotalCap:         0.3,
			AuditCapacity:    256,
			AuditMinAmount:   0.05,
			CrossSubject:     nil,
		},
		Store: StoreConfig{
			Enabled: false,
			Path:    filepath.Join(".knowtrace", "profiles.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// UpdateBudgetDuration parses the per-update wall budget. Zero means no
// budget.
func (c *Config) UpdateBudgetDuration() (time.Duration, error) {
	if c.Engine.UpdateBudget == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Engine.UpdateBudget)
	if err != nil {
		return 0, fmt.Errorf("invalid update_budget %q: %w", c.Engine.UpdateBudget, err)
	}
	return d, nil
}

// Load reads a config file, applies defaults for zero values, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as yaml, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyDefaults fills zero values that yaml left unset.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Engine.ConceptWindow <= 0 {
		c.Engine.ConceptWindow = def.Engine.ConceptWindow
	}
	if c.Engine.OverallWindow <= 0 {
		c.Engine.OverallWindow = def.Engine.OverallWindow
	}
	if c.Engine.ReadinessThreshold <= 0 {
		c.Engine.ReadinessThreshold = def.Engine.ReadinessThreshold
	}
	if c.Engine.ReadyCutoff <= 0 {
		c.Engine.ReadyCutoff = def.Engine.ReadyCutoff
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = def.Engine.Workers
	}
	if c.Engine.QueueSize <= 0 {
		c.Engine.QueueSize = def.Engine.QueueSize
	}
	if c.Stress.Window <= 0 {
		c.Stress.Window = def.Stress.Window
	}
	if c.Stress.MildLevel <= 0 {
		c.Stress.MildLevel = def.Stress.MildLevel
	}
	if c.Stress.ModerateLevel <= 0 {
		c.Stress.ModerateLevel = def.Stress.ModerateLevel
	}
	if c.Stress.HighLevel <= 0 {
		c.Stress.HighLevel = def.Stress.HighLevel
	}
	if c.Transfer.MasteryThreshold <= 0 {
		c.Transfer.MasteryThreshold = def.Transfer.MasteryThreshold
	}
	if c.Transfer.TotalCap <= 0 {
		c.Transfer.TotalCap = def.Transfer.TotalCap
	}
	if c.Transfer.AuditCapacity <= 0 {
		c.Transfer.AuditCapacity = def.Transfer.AuditCapacity
	}
	if c.Transfer.AuditMinAmount <= 0 {
		c.Transfer.AuditMinAmount = def.Transfer.AuditMinAmount
	}
	if c.Catalog.DebounceMs <= 0 {
		c.Catalog.DebounceMs = def.Catalog.DebounceMs
	}
}

// applyEnvOverrides lets deployment environments relocate files without
// editing the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KNOWTRACE_CATALOG"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("KNOWTRACE_DB"); v != "" {
		c.Store.Path = v
		c.Store.Enabled = true
	}
	if v := os.Getenv("KNOWTRACE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configs the engine cannot honor.
func (c *Config) Validate() error {
	if c.Engine.ConceptWindow > 20 {
		return fmt.Errorf("concept_window %d exceeds maximum 20", c.Engine.ConceptWindow)
	}
	if c.Engine.OverallWindow > 50 {
		return fmt.Errorf("overall_window %d exceeds maximum 50", c.Engine.OverallWindow)
	}
	if c.Stress.Window > 12 {
		return fmt.Errorf("stress window %d exceeds maximum 12", c.Stress.Window)
	}
	if c.Engine.ReadinessThreshold <= 0 || c.Engine.ReadinessThreshold > 1 {
		return fmt.Errorf("readiness_threshold %.2f out of (0,1]", c.Engine.ReadinessThreshold)
	}
	for _, r := range c.Transfer.CrossSubject {
		if r.Source == "" || r.Target == "" {
			return fmt.Errorf("cross_subject rule with empty concept id")
		}
		if r.Strength <= 0 || r.Strength > 1 {
			return fmt.Errorf("cross_subject %s->%s strength %.2f out of (0,1]", r.Source, r.Target, r.Strength)
		}
	}
	if _, err := c.UpdateBudgetDuration(); err != nil {
		return err
	}
	return nil
}
