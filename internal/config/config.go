package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		Postgres struct {
			DSN          string `yaml:"dsn"`
			MaxOpenConns int    `yaml:"max_open_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string `yaml:"issuer"`
		Audience   string `yaml:"audience"`
		Secret     string `yaml:"secret"` // override por AUTHCORE_JWT_SECRET
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Session struct {
		TTL string `yaml:"ttl"`
		// BindOrigin exige que IP y User-Agent coincidan al validar la sesión.
		BindOrigin *bool `yaml:"bind_origin"`
	} `yaml:"session"`

	// Lockout por clave (IP y cuenta). Separado para login y MFA.
	Lockout struct {
		Login struct {
			Threshold int    `yaml:"threshold"`
			Duration  string `yaml:"duration"`
		} `yaml:"login"`
		MFA struct {
			Threshold int    `yaml:"threshold"`
			Duration  string `yaml:"duration"`
		} `yaml:"mfa"`
	} `yaml:"lockout"`

	MFA struct {
		ChallengeTTL string `yaml:"challenge_ttl"`
		// MaxAttempts: códigos fallidos tolerados por challenge antes de
		// dejar de aceptar códigos (el challenge no se destruye).
		MaxAttempts int `yaml:"max_attempts"`
		// TOTPWindow: pasos de drift aceptados hacia cada lado (0..3).
		TOTPWindow *int `yaml:"totp_window"`
		// CodeTTL: vigencia propia de los códigos SMS/email.
		CodeTTL string `yaml:"code_ttl"`
		Backup  struct {
			SetSize      int `yaml:"set_size"`
			LowThreshold int `yaml:"low_threshold"`
		} `yaml:"backup"`
		// TrustedDeviceSkip saltea el challenge cuando (IP, User-Agent) ya
		// está registrado como dispositivo confiable. Apagado por defecto.
		TrustedDeviceSkip bool `yaml:"trusted_device_skip"`
	} `yaml:"mfa"`

	Password struct {
		// Argon2id
		Memory      uint32 `yaml:"memory_kib"`
		Time        uint32 `yaml:"time"`
		Parallelism uint8  `yaml:"parallelism"`
		Policy      struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"policy"`
	} `yaml:"password"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		TLS      string `yaml:"tls"` // auto | starttls | ssl | none
	} `yaml:"smtp"`

	SMS struct {
		// log | webhook
		Driver     string `yaml:"driver"`
		WebhookURL string `yaml:"webhook_url"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"sms"`
}

// Load lee el YAML (si path no está vacío), aplica overrides de ENV y defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AUTHCORE_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("AUTHCORE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AUTHCORE_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("AUTHCORE_PG_DSN"); v != "" {
		c.Storage.Driver = "postgres"
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("AUTHCORE_REDIS_ADDR"); v != "" {
		c.Cache.Kind = "redis"
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("AUTHCORE_SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("AUTHCORE_TOTP_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 3 {
			c.MFA.TOTPWindow = &n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "10m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "ac:"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "authcore"
	}
	if c.JWT.Audience == "" {
		c.JWT.Audience = "authcore-client"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "1h"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "168h" // 7d
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "24h"
	}
	if c.Session.BindOrigin == nil {
		t := true
		c.Session.BindOrigin = &t
	}
	if c.Lockout.Login.Threshold == 0 {
		c.Lockout.Login.Threshold = 5
	}
	if c.Lockout.Login.Duration == "" {
		c.Lockout.Login.Duration = "15m"
	}
	if c.Lockout.MFA.Threshold == 0 {
		c.Lockout.MFA.Threshold = 3
	}
	if c.Lockout.MFA.Duration == "" {
		c.Lockout.MFA.Duration = "5m"
	}
	if c.MFA.ChallengeTTL == "" {
		c.MFA.ChallengeTTL = "5m"
	}
	if c.MFA.MaxAttempts == 0 {
		c.MFA.MaxAttempts = 3
	}
	if c.MFA.TOTPWindow == nil {
		n := 2
		c.MFA.TOTPWindow = &n
	}
	if c.MFA.CodeTTL == "" {
		c.MFA.CodeTTL = "10m"
	}
	if c.MFA.Backup.SetSize == 0 {
		c.MFA.Backup.SetSize = 10
	}
	if c.MFA.Backup.LowThreshold == 0 {
		c.MFA.Backup.LowThreshold = 2
	}
	if c.Password.Memory == 0 {
		c.Password.Memory = 64 * 1024
	}
	if c.Password.Time == 0 {
		c.Password.Time = 3
	}
	if c.Password.Parallelism == 0 {
		c.Password.Parallelism = 1
	}
	if c.Password.Policy.MinLength == 0 {
		c.Password.Policy.MinLength = 8
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.SMS.Driver == "" {
		c.SMS.Driver = "log"
	}
	if c.SMS.Timeout == "" {
		c.SMS.Timeout = "5s"
	}
}

func (c *Config) validate() error {
	if strings.ToLower(c.App.Env) == "prod" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt.secret must be at least 32 bytes in prod")
	}
	for _, d := range []struct {
		name, val string
	}{
		{"jwt.access_ttl", c.JWT.AccessTTL},
		{"jwt.refresh_ttl", c.JWT.RefreshTTL},
		{"session.ttl", c.Session.TTL},
		{"lockout.login.duration", c.Lockout.Login.Duration},
		{"lockout.mfa.duration", c.Lockout.MFA.Duration},
		{"mfa.challenge_ttl", c.MFA.ChallengeTTL},
		{"mfa.code_ttl", c.MFA.CodeTTL},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// MustDuration parsea una duración ya validada por Load.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: bad duration %q", s))
	}
	return d
}
