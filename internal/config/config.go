package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix = "SALESDECK_"
	// PathEnv names the optional YAML file loaded before the environment.
	PathEnv = "SALESDECK_CONFIG"
)

// Config is the full process configuration.
type Config struct {
	Env      string         `koanf:"env"`
	Log      LogConfig      `koanf:"log"`
	HTTP     HTTPConfig     `koanf:"http"`
	GRPC     GRPCConfig     `koanf:"grpc"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Redis    RedisConfig    `koanf:"redis"`
	Voice    VoiceConfig    `koanf:"voice"`
	LLM      LLMConfig      `koanf:"llm"`
	Archive  ArchiveConfig  `koanf:"archive"`
	Invites  InviteConfig   `koanf:"invites"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type HTTPConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	// TrustedProxies lists peer addresses (IPs or CIDRs) whose
	// X-Forwarded-For header is believed.
	TrustedProxies    []string      `koanf:"trusted_proxies"`
	RateLimitRPS      float64       `koanf:"rate_limit_rps"`
	RateLimitBurst    int           `koanf:"rate_limit_burst"`
}

type GRPCConfig struct {
	Addr string `koanf:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type AuthConfig struct {
	Secret     string        `koanf:"secret"`
	Algorithm  string        `koanf:"algorithm"`
	Issuer     string        `koanf:"issuer"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	BcryptCost int           `koanf:"bcrypt_cost"`
}

type RedisConfig struct {
	URL       string        `koanf:"url"`
	DedupeTTL time.Duration `koanf:"dedupe_ttl"`
}

type VoiceConfig struct {
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	WebhookSecret string        `koanf:"webhook_secret"`
	WebhookURL    string        `koanf:"webhook_url"`
	VoiceID       string        `koanf:"voice_id"`
	Language      string        `koanf:"language"`
	Timeout       time.Duration `koanf:"timeout"`
}

type LLMConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

type ArchiveConfig struct {
	Bucket          string `koanf:"bucket"`
	Prefix          string `koanf:"prefix"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	UsePathStyle    bool   `koanf:"use_path_style"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
}

type InviteConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepSchedule string        `koanf:"sweep_schedule"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Env: "local",
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxBodyBytes:      1 << 20,
			RateLimitRPS:      5,
			RateLimitBurst:    10,
		},
		GRPC: GRPCConfig{Addr: ":9090"},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			Algorithm:  "HS256",
			Issuer:     "salesdeck",
			AccessTTL:  24 * time.Hour,
			BcryptCost: 12,
		},
		Redis: RedisConfig{DedupeTTL: 24 * time.Hour},
		Voice: VoiceConfig{
			BaseURL:  "https://api.retellai.com",
			VoiceID:  "11labs-Adrian",
			Language: "en-US",
			Timeout:  15 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Archive: ArchiveConfig{Prefix: "transcripts/"},
		Invites: InviteConfig{
			TTL:           7 * 24 * time.Hour,
			SweepSchedule: "@every 1h",
		},
	}
}

// Load layers defaults, the optional YAML file at path (or $SALESDECK_CONFIG
// when path is empty) and SALESDECK_* environment variables. Nested keys use
// a double underscore: SALESDECK_AUTH__SECRET sets auth.secret.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = strings.TrimSpace(os.Getenv(PathEnv))
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	if s == strings.TrimPrefix(PathEnv, envPrefix) {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.Auth.AccessTTL <= 0 {
		errs = append(errs, errors.New("auth.access_ttl must be positive"))
	}
	if c.Invites.TTL <= 0 {
		errs = append(errs, errors.New("invites.ttl must be positive"))
	}
	if c.Redis.DedupeTTL <= 0 {
		errs = append(errs, errors.New("redis.dedupe_ttl must be positive"))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		errs = append(errs, errors.New("http rate limit must not be negative"))
	}
	if _, err := c.HTTP.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (h HTTPConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(h.TrustedProxies))
	for _, raw := range h.TrustedProxies {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("http.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("http.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
