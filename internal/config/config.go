// Package config reads process configuration from KEYSTILE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr     = ":8080"
	defaultGRPCAddr = ":9090"

	// EncryptionKeySize is the required length of KEYSTILE_ENCRYPTION_KEY.
	EncryptionKeySize = 32
)

// Config is the fully validated runtime configuration.
type Config struct {
	Addr     string
	GRPCAddr string
	Env      string

	SessionSecret []byte
	TokenSecret   []byte
	EncryptionKey []byte

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TrustProxy makes client address detection honour X-Forwarded-For.
	TrustProxy bool
	// RateLimitRPS and RateLimitBurst tune the general per-IP limiter; 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	ShutdownTimeout time.Duration
}

// Production reports whether cookies must be marked Secure.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup. Missing secrets and an
// encryption key of the wrong length are reported together.
func LoadFrom(lookup func(string) (string, bool)) (Config, error) {
	getenv := func(key string) string {
		v, _ := lookup(key)
		return v
	}
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := Config{
		Addr:            orDefault(get("KEYSTILE_ADDR"), defaultAddr),
		GRPCAddr:        defaultGRPCAddr,
		Env:             orDefault(get("KEYSTILE_ENV"), "development"),
		PostgresDSN:     get("KEYSTILE_PG_DSN"),
		RedisAddr:       get("KEYSTILE_REDIS_ADDR"),
		RedisPassword:   getenv("KEYSTILE_REDIS_PASSWORD"),
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		ShutdownTimeout: 10 * time.Second,
	}
	// пустое значение отключает gRPC
	if v, ok := lookup("KEYSTILE_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}

	var errs []error
	if v := getenv("KEYSTILE_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = []byte(v)
	} else {
		errs = append(errs, errors.New("KEYSTILE_SESSION_SECRET is required"))
	}
	if v := getenv("KEYSTILE_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = []byte(v)
	} else {
		errs = append(errs, errors.New("KEYSTILE_TOKEN_SECRET is required"))
	}
	switch key := getenv("KEYSTILE_ENCRYPTION_KEY"); {
	case key == "":
		errs = append(errs, errors.New("KEYSTILE_ENCRYPTION_KEY is required"))
	case len(key) != EncryptionKeySize:
		errs = append(errs, fmt.Errorf("KEYSTILE_ENCRYPTION_KEY must be exactly %d bytes, got %d", EncryptionKeySize, len(key)))
	default:
		cfg.EncryptionKey = []byte(key)
	}

	if v := get("KEYSTILE_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("KEYSTILE_REDIS_DB: invalid value %q", v))
		}
		cfg.RedisDB = n
	}
	if v := get("KEYSTILE_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("KEYSTILE_TRUST_PROXY: invalid value %q", v))
		}
		cfg.TrustProxy = b
	}
	if v := get("KEYSTILE_RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("KEYSTILE_RATE_LIMIT_RPS: invalid value %q", v))
		}
		cfg.RateLimitRPS = f
	}
	if v := get("KEYSTILE_RATE_LIMIT_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("KEYSTILE_RATE_LIMIT_BURST: invalid value %q", v))
		}
		cfg.RateLimitBurst = n
	}
	if v := get("KEYSTILE_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("KEYSTILE_SHUTDOWN_TIMEOUT: invalid value %q", v))
		}
		cfg.ShutdownTimeout = d
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
