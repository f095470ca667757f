// Package config loads solver and service settings from an optional env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variable.
type Config struct {
	FixCost          float64 `mapstructure:"CFLP_FIX_COST"`
	MIPTimeLimit     string  `mapstructure:"CFLP_MIP_TIME_LIMIT"`
	MIPGapLimit      float64 `mapstructure:"CFLP_MIP_GAP_LIMIT"`
	FacilityCapacity int     `mapstructure:"CFLP_FACILITY_CAPACITY"`
	DemandQuantity   int     `mapstructure:"CFLP_DEMAND_QUANTITY"`
	MaxExactPairs    int     `mapstructure:"CFLP_MAX_EXACT_PAIRS"` // 0 default, negative uncapped
	City             string  `mapstructure:"CFLP_CITY"`
	DataDir          string  `mapstructure:"CFLP_DATA_DIR"`
	ScenariosFile    string  `mapstructure:"CFLP_SCENARIOS_FILE"`

	Store       string `mapstructure:"CFLP_STORE"` // file, memory, postgres or redis
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	DBMigrate   bool   `mapstructure:"DB_MIGRATE"`
	Lock        string `mapstructure:"CFLP_LOCK"` // none, local or redis

	WebhookURL         string `mapstructure:"WEBHOOK_URL"`
	WebhookSecret      string `mapstructure:"WEBHOOK_SECRET"`
	WebhookMaxAttempts int    `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`

	Port        string  `mapstructure:"PORT"`
	RateRPS     float64 `mapstructure:"RATE_RPS"`
	RateBurst   int     `mapstructure:"RATE_BURST"`
	LogLevel    string  `mapstructure:"LOG_LEVEL"`
	Environment string  `mapstructure:"ENVIRONMENT"`

	// Overrides holds per-scenario solver settings read from ScenariosFile.
	Overrides Overrides `mapstructure:"-"`
}

var defaults = map[string]any{
	"CFLP_FIX_COST":          0.001,
	"CFLP_MIP_TIME_LIMIT":    "1h",
	"CFLP_MIP_GAP_LIMIT":     0.01,
	"CFLP_FACILITY_CAPACITY": 5,
	"CFLP_DEMAND_QUANTITY":   1,
	"CFLP_MAX_EXACT_PAIRS":   0,
	"CFLP_CITY":              "Berlin, Germany",
	"CFLP_DATA_DIR":          "data",
	"CFLP_SCENARIOS_FILE":    "",
	"CFLP_STORE":             "file",
	"DATABASE_URL":           "",
	"REDIS_URL":              "",
	"DB_MIGRATE":             true,
	"CFLP_LOCK":              "local",
	"WEBHOOK_URL":            "",
	"WEBHOOK_SECRET":         "",
	"WEBHOOK_MAX_ATTEMPTS":   10,
	"PORT":                   "8080",
	"RATE_RPS":               2.0,
	"RATE_BURST":             4,
	"LOG_LEVEL":              "info",
	"ENVIRONMENT":            "",
}

// Default returns the built-in configuration. It panics if the defaults table does not
// decode into Config.
func Default() Config {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		panic(fmt.Sprintf("config: decode defaults: %v", err))
	}
	return c
}

// LoadConfig reads app.env from path when present, then the environment, then the
// scenarios file named by CFLP_SCENARIOS_FILE.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	config.Store = strings.ToLower(strings.TrimSpace(config.Store))
	config.Lock = strings.ToLower(strings.TrimSpace(config.Lock))

	if err = config.Validate(); err != nil {
		return config, err
	}
	if config.ScenariosFile != "" {
		config.Overrides, err = LoadOverrides(config.ScenariosFile)
		if err != nil {
			return config, err
		}
	}
	return config, nil
}

// Validate checks for invalid configuration values.
func (c Config) Validate() error {
	if c.FixCost < 0 || math.IsNaN(c.FixCost) || math.IsInf(c.FixCost, 0) {
		return fmt.Errorf("CFLP_FIX_COST must be >= 0, got %v", c.FixCost)
	}
	d, err := ParseTimeLimit(c.MIPTimeLimit)
	if err != nil {
		return fmt.Errorf("CFLP_MIP_TIME_LIMIT: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("CFLP_MIP_TIME_LIMIT must be positive, got %s", c.MIPTimeLimit)
	}
	if c.MIPGapLimit < 0 || c.MIPGapLimit >= 1 || math.IsNaN(c.MIPGapLimit) {
		return fmt.Errorf("CFLP_MIP_GAP_LIMIT must be in [0,1), got %v", c.MIPGapLimit)
	}
	if c.FacilityCapacity <= 0 {
		return fmt.Errorf("CFLP_FACILITY_CAPACITY must be positive, got %d", c.FacilityCapacity)
	}
	if c.DemandQuantity <= 0 {
		return fmt.Errorf("CFLP_DEMAND_QUANTITY must be positive, got %d", c.DemandQuantity)
	}
	switch c.Store {
	case "file", "memory", "postgres", "redis":
	default:
		return fmt.Errorf("CFLP_STORE must be one of file, memory, postgres, redis; got %q", c.Store)
	}
	switch c.Lock {
	case "none", "local", "redis":
	default:
		return fmt.Errorf("CFLP_LOCK must be one of none, local, redis; got %q", c.Lock)
	}
	if c.Store == "postgres" && c.DatabaseURL == "" {
		return errors.New("CFLP_STORE=postgres requires DATABASE_URL")
	}
	if (c.Store == "redis" || c.Lock == "redis") && c.RedisURL == "" {
		return errors.New("redis store or lock requires REDIS_URL")
	}
	if c.WebhookMaxAttempts <= 0 {
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be positive, got %d", c.WebhookMaxAttempts)
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return fmt.Errorf("RATE_RPS and RATE_BURST must be >= 0")
	}
	return nil
}

// ParseTimeLimit accepts a Go duration ("90s", "1h") or a plain number of seconds.
func ParseTimeLimit(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid time limit %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid time limit %q", s)
	}
	return d, nil
}

// Development reports whether human-readable console logs are wanted.
func (c Config) Development() bool { return c.Environment == "development" }

// Solver is the resolved set of solver options for one scenario.
type Solver struct {
	FixCost          float64       `json:"fixCost" yaml:"fixCost"`
	TimeLimit        time.Duration `json:"timeLimit" yaml:"timeLimit"`
	GapLimit         float64       `json:"gapLimit" yaml:"gapLimit"`
	FacilityCapacity int           `json:"facilityCapacity" yaml:"facilityCapacity"`
	DemandQuantity   int           `json:"demandQuantity" yaml:"demandQuantity"`
}

// Solver returns the global solver options. The config is assumed validated.
func (c Config) Solver() Solver {
	d, _ := ParseTimeLimit(c.MIPTimeLimit)
	return Solver{
		FixCost:          c.FixCost,
		TimeLimit:        d,
		GapLimit:         c.MIPGapLimit,
		FacilityCapacity: c.FacilityCapacity,
		DemandQuantity:   c.DemandQuantity,
	}
}

// SolverFor returns the global solver options with the scenario's overrides applied.
func (c Config) SolverFor(scenario string) Solver {
	s := c.Solver()
	if o, ok := c.Overrides[scenario]; ok {
		s = o.Apply(s)
	}
	return s
}
