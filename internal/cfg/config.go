package cfg

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/peter-kozarec/simutrade/pkg/common"
	"github.com/peter-kozarec/simutrade/pkg/utility/fixed"
)

const EnvPrefix = "SIMUTRADE_"

const (
	FeedSynthetic  = "synthetic"
	FeedHistorical = "historical"
	FeedDuckDB     = "duckdb"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Listen    string          `yaml:"listen"`
	Mode      string          `yaml:"mode"`
	Log       LogConfig       `yaml:"log"`
	Feed      FeedConfig      `yaml:"feed"`
	Session   SessionConfig   `yaml:"session"`
	Websocket WebsocketConfig `yaml:"websocket"`
	Monitor   []string        `yaml:"monitor"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"`
	MaxSize     int    `yaml:"max-size"`
	MaxBackups  int    `yaml:"max-backups"`
	MaxAge      int    `yaml:"max-age"`
	Compress    bool   `yaml:"compress"`
	Console     bool   `yaml:"console"`
}

type FeedConfig struct {
	Kind          string           `yaml:"kind"`
	CacheCapacity int              `yaml:"cache-capacity"`
	ResampleFrom  string           `yaml:"resample-from"`
	Synthetic     SyntheticConfig  `yaml:"synthetic"`
	Historical    HistoricalConfig `yaml:"historical"`
	DuckDB        DuckDBConfig     `yaml:"duckdb"`
}

type SyntheticConfig struct {
	Seed         int64  `yaml:"seed"`
	StartPrice   string `yaml:"start-price"`
	Drift        string `yaml:"drift"`
	Volatility   string `yaml:"volatility"`
	WeekdaysOnly bool   `yaml:"weekdays-only"`
	MaxBars      int    `yaml:"max-bars"`
}

type HistoricalConfig struct {
	Dir string `yaml:"dir"`
}

type DuckDBConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type SessionConfig struct {
	MaxSessions       int    `yaml:"max-sessions"`
	QueueCapacity     int    `yaml:"queue-capacity"`
	CommissionPerUnit string `yaml:"commission-per-unit"`
	AllowShort        bool   `yaml:"allow-short"`
	PrivacyMode       bool   `yaml:"privacy-mode"`
	ManualClock       bool   `yaml:"manual-clock"`
}

type WebsocketConfig struct {
	ReadLimit      int64         `yaml:"read-limit"`
	WriteQueue     int           `yaml:"write-queue"`
	WriteTimeout   time.Duration `yaml:"write-timeout"`
	PongWait       time.Duration `yaml:"pong-wait"`
	PingInterval   time.Duration `yaml:"ping-interval"`
	AllowedOrigins []string      `yaml:"allowed-origins"`
}

type ArchiveConfig struct {
	File     string         `yaml:"file"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Db       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Limit    int64  `yaml:"limit"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DbName   string `yaml:"dbname"`
}

func Default() Config {
	return Config{
		Listen: ":8080",
		Mode:   "release",
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Console:    true,
		},
		Feed: FeedConfig{
			Kind:          FeedSynthetic,
			CacheCapacity: 16,
			Synthetic: SyntheticConfig{
				Seed:         1,
				StartPrice:   "100",
				Drift:        "0.05",
				Volatility:   "0.2",
				WeekdaysOnly: true,
				MaxBars:      500_000,
			},
			DuckDB: DuckDBConfig{Table: "bars"},
		},
		Session: SessionConfig{
			MaxSessions:       64,
			QueueCapacity:     1024,
			CommissionPerUnit: "0",
			AllowShort:        true,
		},
		Websocket: WebsocketConfig{
			ReadLimit:    64 << 10,
			WriteQueue:   1024,
			WriteTimeout: 10 * time.Second,
			PongWait:     60 * time.Second,
			PingInterval: 50 * time.Second,
		},
		Monitor: []string{"sessions", "errors"},
	}
}

// Load reads path on top of Default and applies SIMUTRADE_* overrides. An
// empty path loads the defaults only.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file error: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return Config{}, fmt.Errorf("unmarshal config yaml error: %w", err)
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

type override struct {
	name  string
	apply func(c *Config, value string) error
}

var overrides = []override{
	{"LISTEN", func(c *Config, v string) error { c.Listen = v; return nil }},
	{"MODE", func(c *Config, v string) error { c.Mode = v; return nil }},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FILE", func(c *Config, v string) error { c.Log.File = v; return nil }},
	{"LOG_DEVELOPMENT", func(c *Config, v string) (err error) { c.Log.Development, err = cast.ToBoolE(v); return }},
	{"FEED", func(c *Config, v string) error { c.Feed.Kind = v; return nil }},
	{"FEED_CACHE_CAPACITY", func(c *Config, v string) (err error) { c.Feed.CacheCapacity, err = cast.ToIntE(v); return }},
	{"SYNTHETIC_SEED", func(c *Config, v string) (err error) { c.Feed.Synthetic.Seed, err = cast.ToInt64E(v); return }},
	{"FEED_RESAMPLE_FROM", func(c *Config, v string) error { c.Feed.ResampleFrom = v; return nil }},
	{"HISTORICAL_DIR", func(c *Config, v string) error { c.Feed.Historical.Dir = v; return nil }},
	{"DUCKDB_DSN", func(c *Config, v string) error { c.Feed.DuckDB.DSN = v; return nil }},
	{"MAX_SESSIONS", func(c *Config, v string) (err error) { c.Session.MaxSessions, err = cast.ToIntE(v); return }},
	{"QUEUE_CAPACITY", func(c *Config, v string) (err error) { c.Session.QueueCapacity, err = cast.ToIntE(v); return }},
	{"COMMISSION_PER_UNIT", func(c *Config, v string) error { c.Session.CommissionPerUnit = v; return nil }},
	{"ALLOW_SHORT", func(c *Config, v string) (err error) { c.Session.AllowShort, err = cast.ToBoolE(v); return }},
	{"PRIVACY_MODE", func(c *Config, v string) (err error) { c.Session.PrivacyMode, err = cast.ToBoolE(v); return }},
	{"WRITE_TIMEOUT", func(c *Config, v string) (err error) { c.Websocket.WriteTimeout, err = cast.ToDurationE(v); return }},
	{"MONITOR", func(c *Config, v string) error { c.Monitor = splitList(v); return nil }},
	{"ARCHIVE_FILE", func(c *Config, v string) error { c.Archive.File = v; return nil }},
	{"REDIS_ADDRESS", func(c *Config, v string) error { c.Archive.Redis.Address = v; return nil }},
	{"REDIS_PASSWORD", func(c *Config, v string) error { c.Archive.Redis.Password = v; return nil }},
	{"POSTGRES_HOST", func(c *Config, v string) error { c.Archive.Postgres.Host = v; return nil }},
	{"POSTGRES_PASSWORD", func(c *Config, v string) error { c.Archive.Postgres.Password = v; return nil }},
}

// ApplyEnv overrides fields from SIMUTRADE_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, o := range overrides {
		value, ok := lookup(EnvPrefix + o.name)
		if !ok {
			continue
		}
		if err := o.apply(c, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, o.name, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalidConfig)
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	switch c.Feed.Kind {
	case FeedSynthetic:
		for name, value := range map[string]string{
			"start-price": c.Feed.Synthetic.StartPrice,
			"drift":       c.Feed.Synthetic.Drift,
			"volatility":  c.Feed.Synthetic.Volatility,
		} {
			if _, err := fixed.Parse(value); err != nil {
				return fmt.Errorf("%w: synthetic %s %q", ErrInvalidConfig, name, value)
			}
		}
	case FeedHistorical:
		if c.Feed.Historical.Dir == "" {
			return fmt.Errorf("%w: historical feed needs a directory", ErrInvalidConfig)
		}
	case FeedDuckDB:
		if c.Feed.DuckDB.Table == "" {
			return fmt.Errorf("%w: duckdb feed needs a table", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown feed %q", ErrInvalidConfig, c.Feed.Kind)
	}
	if c.Feed.ResampleFrom != "" && !common.Timeframe(c.Feed.ResampleFrom).Valid() {
		return fmt.Errorf("%w: resample-from %q is not a timeframe", ErrInvalidConfig, c.Feed.ResampleFrom)
	}
	if c.Session.MaxSessions < 0 {
		return fmt.Errorf("%w: max-sessions must not be negative", ErrInvalidConfig)
	}
	if c.Session.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue-capacity must be positive", ErrInvalidConfig)
	}
	commission, err := fixed.Parse(c.Session.CommissionPerUnit)
	if err != nil || commission.IsNeg() {
		return fmt.Errorf("%w: commission-per-unit %q", ErrInvalidConfig, c.Session.CommissionPerUnit)
	}
	if c.Websocket.WriteQueue <= 0 || c.Websocket.ReadLimit <= 0 {
		return fmt.Errorf("%w: websocket queue and read limit must be positive", ErrInvalidConfig)
	}
	if c.Websocket.PingInterval <= 0 || c.Websocket.PingInterval >= c.Websocket.PongWait {
		return fmt.Errorf("%w: ping-interval must be positive and shorter than pong-wait", ErrInvalidConfig)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
