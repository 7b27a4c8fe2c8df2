// Package config loads the runtime configuration of the robot: a YAML file layered
// over built-in profiles, then PETBOT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/dewwy/petbot/internal/domain"
	"github.com/dewwy/petbot/internal/engine"
	"github.com/dewwy/petbot/internal/sim"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`

	// Interaction writes are buffered and flushed by a small worker pool.
	InteractionBuffer int `yaml:"interaction_buffer"`
	Workers           int `yaml:"workers"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"` // empty disables the cache
	TTL       time.Duration `yaml:"ttl"`
}

type BusConfig struct {
	NatsURL string `yaml:"nats_url"` // empty disables the bridge
	Prefix  string `yaml:"prefix"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	EventPollInterval time.Duration `yaml:"event_poll_interval"`
}

// HardwareConfig selects the body. With Simulated set the sim world drives the
// sensor and motors; Device additionally mirrors motor commands to a serial line.
type HardwareConfig struct {
	Simulated bool   `yaml:"simulated"`
	Device    string `yaml:"device"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the complete runtime configuration.
type Config struct {
	Engine   engine.Config  `yaml:"engine"`
	Storage  StorageConfig  `yaml:"storage"`
	Cache    CacheConfig    `yaml:"cache"`
	Bus      BusConfig      `yaml:"bus"`
	Server   ServerConfig   `yaml:"server"`
	Hardware HardwareConfig `yaml:"hardware"`
	Sim      sim.Config     `yaml:"sim"`
	Log      LogConfig      `yaml:"log"`
}

// DefaultConfig returns sensible defaults for the robot itself.
func DefaultConfig() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		Engine: engine.DefaultConfig(),
		Storage: StorageConfig{
			Driver:            DriverSQLite,
			Path:              "memory/petbot.db",
			InteractionBuffer: 256,
			Workers:           min(numCPU, 4),
		},
		Cache: CacheConfig{TTL: 15 * time.Minute},
		Bus:   BusConfig{Prefix: "petbot"},
		Server: ServerConfig{
			Addr:              ":8080",
			EventPollInterval: 100 * time.Millisecond,
		},
		Hardware: HardwareConfig{Simulated: true},
		Sim:      sim.DefaultConfig(),
		Log:      LogConfig{Level: "info"},
	}
}

// SimulationConfig is the desktop profile: a simulated body and console logs.
func SimulationConfig() *Config {
	cfg := DefaultConfig()
	cfg.Hardware = HardwareConfig{Simulated: true}
	cfg.Log = LogConfig{Level: "debug", Development: true}
	return cfg
}

// LowResourceConfig returns minimal settings for a single-board computer.
func LowResourceConfig() *Config {
	cfg := DefaultConfig()
	cfg.Engine.TickRate = 200 * time.Millisecond
	cfg.Engine.OverrideBuffer = 8
	cfg.Storage.InteractionBuffer = 32
	cfg.Storage.Workers = 1
	cfg.Server.EventPollInterval = 250 * time.Millisecond
	return cfg
}

// Profile returns a built-in profile by name.
func Profile(name string) (*Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "sim", "simulation":
		return SimulationConfig(), nil
	case "low", "low-resource":
		return LowResourceConfig(), nil
	}
	return nil, fmt.Errorf("%w: unknown profile %q", domain.ErrInvalidArgument, name)
}

// Load reads path (optional) over the named profile, applies the environment and
// validates the result.
func Load(profile, path string) (*Config, error) {
	cfg, err := Profile(profile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PETBOT_* variables. DATABASE_URL is honored as
// well and switches the driver to postgres.
func (c *Config) ApplyEnv() error {
	var errs []error
	c.Log.Level = getEnv("PETBOT_LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvBool("PETBOT_LOG_DEV", c.Log.Development, &errs)
	c.Server.Addr = getEnv("PETBOT_ADDR", c.Server.Addr)
	c.Storage.Driver = getEnv("PETBOT_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("PETBOT_DB_PATH", c.Storage.Path)
	if url := getEnv("DATABASE_URL", ""); url != "" {
		c.Storage.DatabaseURL = url
		c.Storage.Driver = DriverPostgres
	}
	c.Storage.Workers = getEnvInt("PETBOT_STORAGE_WORKERS", c.Storage.Workers, &errs)
	c.Cache.RedisAddr = getEnv("PETBOT_REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.TTL = getEnvDuration("PETBOT_CACHE_TTL", c.Cache.TTL, &errs)
	c.Bus.NatsURL = getEnv("PETBOT_NATS_URL", c.Bus.NatsURL)
	c.Bus.Prefix = getEnv("PETBOT_NATS_PREFIX", c.Bus.Prefix)
	c.Hardware.Simulated = getEnvBool("PETBOT_SIMULATED", c.Hardware.Simulated, &errs)
	c.Hardware.Device = getEnv("PETBOT_DEVICE", c.Hardware.Device)
	c.Engine.TickRate = getEnvDuration("PETBOT_TICK_RATE", c.Engine.TickRate, &errs)
	c.Engine.Behavior.MinObstacleDistance = getEnvFloat("PETBOT_MIN_OBSTACLE_DISTANCE", c.Engine.Behavior.MinObstacleDistance, &errs)
	c.Sim.Seed = int64(getEnvInt("PETBOT_SIM_SEED", int(c.Sim.Seed), &errs))
	return errors.Join(errs...)
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{domain.ErrInvalidArgument}, args...)...))
	}

	if c.Engine.TickRate <= 0 {
		invalid("engine.tick_rate must be positive")
	}
	if c.Engine.Behavior.MinObstacleDistance <= 0 {
		invalid("engine.behavior.min_obstacle_distance must be positive")
	}
	if t := c.Engine.Personality.Traits; t != nil {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			invalid("storage.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			invalid("storage.database_url is required for postgres")
		}
	default:
		invalid("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Workers <= 0 {
		invalid("storage.workers must be positive")
	}
	if c.Server.Addr == "" {
		invalid("server.addr is required")
	}
	if !c.Hardware.Simulated && c.Hardware.Device == "" {
		invalid("hardware.device is required without the simulator")
	}
	if c.Hardware.Simulated && (c.Sim.Width <= 0 || c.Sim.Height <= 0) {
		invalid("sim arena must have a positive size")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		invalid("unknown log level %q", c.Log.Level)
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, errs *[]error) float64 {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
