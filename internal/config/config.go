package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration tree.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	Scan        ScanConfig        `yaml:"scan"`
	Sizing      SizingConfig      `yaml:"sizing"`
	Exits       ExitsConfig       `yaml:"exits"`
	Governor    GovernorConfig    `yaml:"governor"`
	Evolution   EvolutionConfig   `yaml:"evolution"`
	Signals     SignalsConfig     `yaml:"signals"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Events      EventsConfig      `yaml:"events"`
	HTTP        HTTPConfig        `yaml:"http"`
	Stream      StreamConfig      `yaml:"stream"`
	LogLevel    string            `yaml:"log_level" default:"info"`
}

// EngineConfig controls the driver loop and portfolio limits.
type EngineConfig struct {
	CycleInterval    time.Duration `yaml:"cycle_interval" default:"3m"`
	CycleTimeout     time.Duration `yaml:"cycle_timeout" default:"2m"`
	MaxActiveHunts   int           `yaml:"max_active_hunts" default:"5" validate:"min=1"`
	TotalCapital     float64       `yaml:"total_capital" default:"10000" validate:"gt=0"`
	MaxPortfolioRisk float64       `yaml:"max_portfolio_risk" default:"0.6" validate:"gt=0,lte=1"`
	ReentryCooldown  time.Duration `yaml:"reentry_cooldown" default:"5m"`
	Paper            bool          `yaml:"paper" default:"true"`
}

// ScanConfig controls admission thresholds shared by all scanners. Return and
// downside caps are percentages; an empty Enabled list runs every registered
// scanner.
type ScanConfig struct {
	MinExpectancy     float64  `yaml:"min_expectancy" default:"1.5" validate:"gt=0"`
	MinProbability    float64  `yaml:"min_probability" default:"0.3" validate:"gte=0,lt=1"`
	MinSignalStrength float64  `yaml:"min_signal_strength" default:"0.4" validate:"gte=0,lt=1"`
	MaxExpectedReturn float64  `yaml:"max_expected_return" default:"15" validate:"gt=0"`
	MaxDownside       float64  `yaml:"max_downside" default:"10" validate:"gt=0"`
	Enabled           []string `yaml:"enabled"`
}

// SizingConfig controls the Kelly allocator.
type SizingConfig struct {
	KellyMultiplier float64       `yaml:"kelly_multiplier" default:"0.5" validate:"gt=0,lte=1"`
	KellyCap        float64       `yaml:"kelly_cap" default:"0.25" validate:"gt=0,lte=1"`
	MinFraction     float64       `yaml:"min_fraction" default:"0.01" validate:"gt=0"`
	MaxFraction     float64       `yaml:"max_fraction" default:"0.10" validate:"gt=0,lte=1"`
	MinNotional     float64       `yaml:"min_notional" default:"10" validate:"gte=0"` // exchange minimum
	SafetyLosses    int           `yaml:"safety_losses" default:"3" validate:"min=0"`
	SafetyCooldown  time.Duration `yaml:"safety_cooldown" default:"2h"`
}

// ExitsConfig controls the exit evaluator.
type ExitsConfig struct {
	InstantExitPct      float64 `yaml:"instant_exit_pct" default:"2" validate:"gt=0"`
	MomentumCapturePnL  float64 `yaml:"momentum_capture_pnl" default:"0.7" validate:"gt=0,lte=1"`
	MomentumCaptureHold float64 `yaml:"momentum_capture_hold" default:"0.6" validate:"gt=0,lte=1"`
	PatienceFloor       float64 `yaml:"patience_floor" default:"0.7" validate:"gt=0,lte=1"`
}

// GovernorConfig paces external calls and rotates symbol batches.
type GovernorConfig struct {
	BatchSize          int                      `yaml:"batch_size" default:"20" validate:"min=1"`
	MinIntervals       map[string]time.Duration `yaml:"min_intervals"`
	DefaultMinInterval time.Duration            `yaml:"default_min_interval" default:"1500ms"`
}

// EvolutionConfig controls prior recalibration.
type EvolutionConfig struct {
	Threshold    int `yaml:"threshold" default:"50" validate:"min=1"`
	WindowSize   int `yaml:"window_size" default:"100" validate:"min=10"`
	VelocitySpan int `yaml:"velocity_span" default:"10" validate:"min=2"`
}

// SignalsConfig points signal channels at external score endpoints. A channel
// without an endpoint reads as neutral.
type SignalsConfig struct {
	Timeout   time.Duration     `yaml:"timeout" default:"2s"`
	Endpoints map[string]string `yaml:"endpoints"` // kind -> score URL
}

// PersistenceConfig configures the durable ledger and the redis mirror. Both
// are best-effort; empty DSN/addr disables the backend.
type PersistenceConfig struct {
	PostgresDSN string        `yaml:"postgres_dsn"`
	Timeout     time.Duration `yaml:"timeout" default:"5s"`
	RedisAddr   string        `yaml:"redis_addr"`
	RedisDB     int           `yaml:"redis_db" default:"0"`
}

// EventsConfig configures the optional kafka event publisher.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" default:"crypthunt.events"`
}

// HTTPConfig configures the status/metrics server.
type HTTPConfig struct {
	Addr string `yaml:"addr" default:":8087"`
}

// StreamConfig configures the websocket ticker feed.
type StreamConfig struct {
	URL          string        `yaml:"url"`
	ReconnectMin time.Duration `yaml:"reconnect_min" default:"1s"`
	ReconnectMax time.Duration `yaml:"reconnect_max" default:"30s"`
	StaleAfter   time.Duration `yaml:"stale_after" default:"2m"`
}

// Load reads, defaults, and validates a config file. A missing path returns
// the pure-default configuration so `crypthunt run --paper` works out of the
// box.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if cfg.Governor.MinIntervals == nil {
		cfg.Governor.MinIntervals = map[string]time.Duration{}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Sizing.MinFraction > cfg.Sizing.MaxFraction {
		return nil, fmt.Errorf("invalid config: min_fraction %.4f > max_fraction %.4f",
			cfg.Sizing.MinFraction, cfg.Sizing.MaxFraction)
	}
	return cfg, nil
}
