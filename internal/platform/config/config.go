package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 对应 configs/config.yaml
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Tax      TaxConfig      `mapstructure:"tax"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug | release
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | sqlite
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type LedgerConfig struct {
	// ReversalDating 冲销分录的日期策略: void_date | original_date
	ReversalDating string `mapstructure:"reversal_dating"`
}

type TaxConfig struct {
	// LinePolicy 税额分录策略: per_authority | aggregate
	LinePolicy string `mapstructure:"line_policy"`
	// ReferenceFile 启动时加载的税务参考数据 (可选)
	ReferenceFile string `mapstructure:"reference_file"`
}

type CacheConfig struct {
	Driver   string `mapstructure:"driver"` // memory | redis
	RedisURL string `mapstructure:"redis_url"`
	TTL      string `mapstructure:"ttl"`
}

// SetDefaults 注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.log_sql", false)
	v.SetDefault("ledger.reversal_dating", "void_date")
	v.SetDefault("tax.line_policy", "per_authority")
	v.SetDefault("tax.reference_file", "")
	// AutomaticEnv 只覆盖已知 key，所以空值也要注册
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "10m")
}

// Load 读取配置文件，环境变量 GL_* 覆盖文件值 (例如 GL_DATABASE_DSN)
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("GL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验枚举类配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	switch c.Ledger.ReversalDating {
	case "void_date", "original_date":
	default:
		return fmt.Errorf("config: unsupported ledger.reversal_dating %q", c.Ledger.ReversalDating)
	}
	switch c.Tax.LinePolicy {
	case "per_authority", "aggregate":
	default:
		return fmt.Errorf("config: unsupported tax.line_policy %q", c.Tax.LinePolicy)
	}
	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unsupported cache.driver %q", c.Cache.Driver)
	}
	return nil
}
