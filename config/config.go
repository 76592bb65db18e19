package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 计票模式
const (
	TallyModeAtomic  = "atomic"  // 写入投票后在数据库端原子递增计数
	TallyModeDerived = "derived" // 不维护计数列，读取时按投票记录统计
)

// Config 应用全部配置，与 config.yaml 结构一一对应
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tally     TallyConfig     `mapstructure:"tally"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	Mode            string        `mapstructure:"mode"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// DatabaseConfig 数据库配置，driver 取值 sqlite / mysql / postgres
type DatabaseConfig struct {
	Driver        string        `mapstructure:"driver"`
	DSN           string        `mapstructure:"dsn"`
	LogLevel      string        `mapstructure:"logLevel"`
	SlowThreshold time.Duration `mapstructure:"slowThreshold"`
	Seed          bool          `mapstructure:"seed"`
}

// RedisConfig Redis配置，关闭或连接失败时各组件退回进程内实现
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig 会话令牌配置
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwtSecret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"tokenTTL"`
}

// TallyConfig 计票相关配置
type TallyConfig struct {
	Mode              string        `mapstructure:"mode"`
	ReconcileInterval time.Duration `mapstructure:"reconcileInterval"`
	TimeZone          string        `mapstructure:"timeZone"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Rate    int  `mapstructure:"rate"`
	Burst   int  `mapstructure:"burst"`
}

// Location 解析配置的时区，选举开始时间按该时区拼接
func (t TallyConfig) Location() *time.Location {
	if t.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		log.Printf("无法加载时区 %s，使用本地时区: %v", t.TimeZone, err)
		return time.Local
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8090")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "chainvote.db")
	v.SetDefault("database.logLevel", "warn")
	v.SetDefault("database.slowThreshold", time.Second)
	v.SetDefault("database.seed", false)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwtSecret", "change-me")
	v.SetDefault("auth.issuer", "chainvote")
	v.SetDefault("auth.tokenTTL", 24*time.Hour)

	v.SetDefault("tally.mode", TallyModeAtomic)
	v.SetDefault("tally.reconcileInterval", 5*time.Minute)
	v.SetDefault("tally.timeZone", "")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.rate", 50)
	v.SetDefault("ratelimit.burst", 100)
}

// Load 依次读取 .env、config.yaml 与 CHAINVOTE_ 前缀的环境变量
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("读取 .env 失败: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// 例如 CHAINVOTE_DATABASE_DRIVER=postgres
	v.SetEnvPrefix("CHAINVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		log.Println("未找到配置文件，使用默认配置和环境变量")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	switch c.Tally.Mode {
	case TallyModeAtomic, TallyModeDerived:
	default:
		return fmt.Errorf("不支持的计票模式: %q", c.Tally.Mode)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret 不能为空")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.tokenTTL 必须大于0")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0) {
		return errors.New("限流速率和突发值必须大于0")
	}
	return nil
}
