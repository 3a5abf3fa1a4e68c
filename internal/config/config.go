package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/khanghh/kguard/internal/lockout"
	"github.com/khanghh/kguard/internal/mail"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr        = ":3000"
	DefaultSiteName          = "kguard"
	DefaultDatabaseDriver    = "sqlite"
	DefaultSQLiteDSN         = "kguard.db"
	DefaultMailBackend       = "log"
	DefaultResetTokenBackend = "database"
)

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql or sqlite
	Dsn             string        `mapstructure:"dsn"`
	Replicas        []string      `mapstructure:"replicas"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime time.Duration `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type MailConfig struct {
	Backend string          `mapstructure:"backend"` // smtp or log
	From    string          `mapstructure:"from"`
	SMTP    mail.SMTPConfig `mapstructure:"smtp"`
}

type LockoutConfig struct {
	Primary      lockout.Policy `mapstructure:"primary"`
	SecondFactor lockout.Policy `mapstructure:"secondFactor"`
}

type SecurityConfig struct {
	PasswordMinLength int                   `mapstructure:"passwordMinLength"`
	Lockout           LockoutConfig         `mapstructure:"lockout"`
	TicketLifetime    time.Duration         `mapstructure:"ticketLifetime"`
	ResetTokenTTL     time.Duration         `mapstructure:"resetTokenTTL"`
	ResetTokenBackend string                `mapstructure:"resetTokenBackend"` // database, redis or memory
	Argon2            password.Argon2Config `mapstructure:"argon2"`
}

type Config struct {
	Debug        bool           `mapstructure:"debug"`
	SiteName     string         `mapstructure:"siteName"`
	BaseURL      string         `mapstructure:"baseURL"`
	MasterKey    string         `mapstructure:"masterKey"`
	ListenAddr   string         `mapstructure:"listenAddr"`
	ProxyHeader  string         `mapstructure:"proxyHeader"`
	TemplateDir  string         `mapstructure:"templateDir"`
	AllowOrigins []string       `mapstructure:"allowOrigins"`
	Database     DatabaseConfig `mapstructure:"database"`
	Redis        RedisConfig    `mapstructure:"redis"`
	Mail         MailConfig     `mapstructure:"mail"`
	Security     SecurityConfig `mapstructure:"security"`
}

func (c *Config) sanitizeSecurity() error {
	sec := &c.Security
	if sec.PasswordMinLength < params.PasswordMinLength {
		sec.PasswordMinLength = params.PasswordMinLength
	}
	if sec.Lockout.Primary.Threshold == 0 {
		sec.Lockout.Primary.Threshold = params.PrimaryLockThreshold
	}
	if sec.Lockout.Primary.Duration <= 0 {
		sec.Lockout.Primary.Duration = params.PrimaryLockDuration
	}
	if sec.Lockout.SecondFactor.Threshold == 0 {
		sec.Lockout.SecondFactor.Threshold = params.TwoFactorLockThreshold
	}
	if sec.Lockout.SecondFactor.Duration <= 0 {
		sec.Lockout.SecondFactor.Duration = params.TwoFactorLockDuration
	}
	if sec.TicketLifetime <= 0 {
		sec.TicketLifetime = params.TwoFactorTicketLifetime
	}
	if sec.ResetTokenTTL <= 0 {
		sec.ResetTokenTTL = params.ResetTokenExpiration
	}
	switch sec.ResetTokenBackend {
	case "":
		sec.ResetTokenBackend = DefaultResetTokenBackend
	case "database", "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("security.resetTokenBackend is redis but redis.url is empty")
		}
	default:
		return fmt.Errorf("unsupported reset token backend %q", sec.ResetTokenBackend)
	}

	defaults := password.DefaultArgon2Config()
	if sec.Argon2.Memory == 0 {
		sec.Argon2.Memory = defaults.Memory
	}
	if sec.Argon2.Time == 0 {
		sec.Argon2.Time = defaults.Time
	}
	if sec.Argon2.Parallelism == 0 {
		sec.Argon2.Parallelism = defaults.Parallelism
	}
	if sec.Argon2.SaltLength == 0 {
		sec.Argon2.SaltLength = defaults.SaltLength
	}
	if sec.Argon2.KeyLength == 0 {
		sec.Argon2.KeyLength = defaults.KeyLength
	}
	return nil
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.SiteName == "" {
		c.SiteName = DefaultSiteName
	}
	if c.MasterKey == "" {
		return errors.New("masterKey is required")
	}

	switch c.Database.Driver {
	case "":
		c.Database.Driver = DefaultDatabaseDriver
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Dsn == "" {
		if c.Database.Driver != "sqlite" {
			return errors.New("database.dsn is required")
		}
		c.Database.Dsn = DefaultSQLiteDSN
	}

	switch c.Mail.Backend {
	case "":
		c.Mail.Backend = DefaultMailBackend
	case "log", "smtp":
	default:
		return fmt.Errorf("unsupported mail backend %q", c.Mail.Backend)
	}
	return c.sanitizeSecurity()
}

func LoadConfig(filename string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
