package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults for configuration values.
const (
	DefaultEloK          = 20.0
	DefaultEloHFA        = 65.0
	DefaultEloSeed       = 1500.0
	DefaultBaseline      = "isotonic"
	DefaultBaselineBins  = 10
	DefaultMinBinCount   = 5
	DefaultTrainFraction = 0.7
	DefaultSplitPolicy   = "fraction"
	DefaultWindowWeeks   = 4
	DefaultCVFolds       = 5
	DefaultTrials        = 24
	DefaultLiftBins      = 10
	DefaultSeed          = 1
	DefaultDBPath        = "data/edge.db"
)

// Config holds all pipeline configuration.
type Config struct {
	// Elo engine
	EloK    float64 `yaml:"elo_k"`
	EloHFA  float64 `yaml:"elo_hfa"`
	EloSeed float64 `yaml:"elo_seed"`

	// Market baseline
	BaselineMethod string `yaml:"baseline_method"` // isotonic, binned, logistic, normal
	BaselineBins   int    `yaml:"baseline_bins"`
	MinBinCount    int    `yaml:"min_bin_count"`

	// Temporal split
	SplitPolicy   string  `yaml:"split_policy"` // fraction, rolling, expanding
	TrainFraction float64 `yaml:"train_fraction"`
	WindowWeeks   int     `yaml:"window_weeks"`

	// Model search
	CVFolds int   `yaml:"cv_folds"`
	Trials  int   `yaml:"trials"`
	Seed    int64 `yaml:"seed"`

	// Edge evaluation
	EdgeThresholds []float64 `yaml:"edge_thresholds"`
	LiftBins       int       `yaml:"lift_bins"`

	// Storage
	DBPath string `yaml:"db_path"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		EloK:           DefaultEloK,
		EloHFA:         DefaultEloHFA,
		EloSeed:        DefaultEloSeed,
		BaselineMethod: DefaultBaseline,
		BaselineBins:   DefaultBaselineBins,
		MinBinCount:    DefaultMinBinCount,
		SplitPolicy:    DefaultSplitPolicy,
		TrainFraction:  DefaultTrainFraction,
		WindowWeeks:    DefaultWindowWeeks,
		CVFolds:        DefaultCVFolds,
		Trials:         DefaultTrials,
		Seed:           DefaultSeed,
		EdgeThresholds: []float64{0.03, 0.05, 0.07},
		LiftBins:       DefaultLiftBins,
		DBPath:         DefaultDBPath,
	}
}

// Load builds configuration from defaults, an optional YAML file, and
// environment variables (and .env file if present), in that precedence
// order: env beats file beats defaults.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ELO_K"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EloK = f
		}
	}
	if v := os.Getenv("ELO_HFA"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EloHFA = f
		}
	}
	if v := os.Getenv("ELO_SEED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.EloSeed = f
		}
	}
	if v := os.Getenv("BASELINE_METHOD"); v != "" {
		cfg.BaselineMethod = v
	}
	if v := os.Getenv("BASELINE_BINS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BaselineBins = n
		}
	}
	if v := os.Getenv("SPLIT_POLICY"); v != "" {
		cfg.SplitPolicy = v
	}
	if v := os.Getenv("TRAIN_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TrainFraction = f
		}
	}
	if v := os.Getenv("WINDOW_WEEKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowWeeks = n
		}
	}
	if v := os.Getenv("CV_FOLDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CVFolds = n
		}
	}
	if v := os.Getenv("TRIALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trials = n
		}
	}
	if v := os.Getenv("SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("EDGE_THRESHOLDS"); v != "" {
		if taus, err := parseThresholds(v); err == nil {
			cfg.EdgeThresholds = taus
		}
	}
	if v := os.Getenv("LIFT_BINS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LiftBins = n
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
}

func parseThresholds(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	taus := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		taus = append(taus, f)
	}
	return taus, nil
}

// Validate checks that configuration values are within acceptable ranges.
func Validate(cfg Config) error {
	if cfg.EloK <= 0 {
		return fmt.Errorf("ELO_K must be positive, got %f", cfg.EloK)
	}
	if cfg.EloSeed <= 0 {
		return fmt.Errorf("ELO_SEED must be positive, got %f", cfg.EloSeed)
	}
	switch cfg.BaselineMethod {
	case "isotonic", "binned", "logistic", "normal":
	default:
		return fmt.Errorf("unknown BASELINE_METHOD %q", cfg.BaselineMethod)
	}
	if cfg.BaselineBins < 1 {
		return fmt.Errorf("BASELINE_BINS must be at least 1, got %d", cfg.BaselineBins)
	}
	switch cfg.SplitPolicy {
	case "fraction", "rolling", "expanding":
	default:
		return fmt.Errorf("unknown SPLIT_POLICY %q", cfg.SplitPolicy)
	}
	if cfg.TrainFraction <= 0 || cfg.TrainFraction >= 1 {
		return fmt.Errorf("TRAIN_FRACTION must be in (0, 1), got %f", cfg.TrainFraction)
	}
	if cfg.WindowWeeks < 1 {
		return fmt.Errorf("WINDOW_WEEKS must be at least 1, got %d", cfg.WindowWeeks)
	}
	if cfg.CVFolds < 2 {
		return fmt.Errorf("CV_FOLDS must be at least 2, got %d", cfg.CVFolds)
	}
	if cfg.Trials < 1 {
		return fmt.Errorf("TRIALS must be at least 1, got %d", cfg.Trials)
	}
	if len(cfg.EdgeThresholds) == 0 {
		return fmt.Errorf("EDGE_THRESHOLDS must not be empty")
	}
	for _, tau := range cfg.EdgeThresholds {
		if tau <= 0 || tau >= 1 {
			return fmt.Errorf("edge threshold %f outside (0, 1)", tau)
		}
	}
	if cfg.LiftBins < 1 {
		return fmt.Errorf("LIFT_BINS must be at least 1, got %d", cfg.LiftBins)
	}
	return nil
}
