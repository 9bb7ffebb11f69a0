// Package config holds the runtime settings of the opweb server: defaults,
// an OPWEB_* environment overlay and validation. Command-line flags are
// layered on top by the server command.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted in Config.Backend.
const (
	BackendFile     = "file"
	BackendBbolt    = "bbolt"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds runtime settings for the opweb server.
//
// The default secrets match the historic development values so existing
// data files stay readable; they must be overridden in production.
type Config struct {
	TokenSecret     string
	DataSecret      string
	TokenTTL        time.Duration
	ChallengeTTL    time.Duration
	ChallengeSweep  time.Duration
	CacheTTL        time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
	DataFile        string
	Backend         string
	DatabaseURL     string
	AllowPlaintext  bool
	Port            int
	TrustedProxies  []netip.Prefix
	AdminLogin      string
	AdminPassword   string
}

// Defaults returns the development configuration.
func Defaults() Config {
	return Config{
		TokenSecret:     "opweb-secret-key",
		DataSecret:      "opweb-data-key",
		TokenTTL:        7 * 24 * time.Hour,
		ChallengeTTL:    5 * time.Minute,
		ChallengeSweep:  10 * time.Second,
		CacheTTL:        60 * time.Second,
		RateLimitWindow: 60 * time.Second,
		RateLimitMax:    120,
		DataFile:        "./data/database.json",
		Backend:         BackendFile,
		AllowPlaintext:  true,
		Port:            4000,
		AdminLogin:      "tegmore",
	}
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv returns Defaults overlaid with any OPWEB_* variables found by
// lookup. Malformed values are reported together in one error.
func FromEnv(lookup LookupFunc) (Config, error) {
	cfg := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("OPWEB_JWT_SECRET", &cfg.TokenSecret)
	str("OPWEB_DATA_SECRET", &cfg.DataSecret)
	dur("OPWEB_TOKEN_TTL", &cfg.TokenTTL)
	dur("OPWEB_CHALLENGE_TTL", &cfg.ChallengeTTL)
	dur("OPWEB_CHALLENGE_SWEEP", &cfg.ChallengeSweep)
	dur("OPWEB_CACHE_TTL", &cfg.CacheTTL)
	dur("OPWEB_RATE_LIMIT_WINDOW", &cfg.RateLimitWindow)
	num("OPWEB_RATE_LIMIT_MAX", &cfg.RateLimitMax)
	str("OPWEB_DATA_FILE", &cfg.DataFile)
	str("OPWEB_BACKEND", &cfg.Backend)
	str("OPWEB_DATABASE_URL", &cfg.DatabaseURL)
	flag("OPWEB_ALLOW_PLAINTEXT", &cfg.AllowPlaintext)
	num("OPWEB_PORT", &cfg.Port)
	str("OPWEB_ADMIN_LOGIN", &cfg.AdminLogin)
	str("OPWEB_ADMIN_PASSWORD", &cfg.AdminPassword)

	if v, ok := lookup("OPWEB_TRUSTED_PROXIES"); ok {
		prefixes, err := ParseTrustedProxies(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("OPWEB_TRUSTED_PROXIES: %w", err))
		} else {
			cfg.TrustedProxies = prefixes
		}
	}

	return cfg, errors.Join(errs...)
}

// ParseTrustedProxies parses a comma-separated list of CIDRs or bare
// addresses. A bare address is treated as a single-host prefix.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", part, err)
		}
		out = append(out, prefix.Masked())
	}
	return out, nil
}

// Addr returns the listen address for Port.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Validate reports every setting that would prevent the server from
// starting.
func (c Config) Validate() error {
	var errs []error
	if c.TokenSecret == "" {
		errs = append(errs, errors.New("token secret must not be empty"))
	}
	if c.DataSecret == "" {
		errs = append(errs, errors.New("data secret must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"token ttl":         c.TokenTTL,
		"challenge ttl":     c.ChallengeTTL,
		"challenge sweep":   c.ChallengeSweep,
		"cache ttl":         c.CacheTTL,
		"rate limit window": c.RateLimitWindow,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, fmt.Errorf("rate limit max must be positive, got %d", c.RateLimitMax))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	switch c.Backend {
	case BackendFile, BackendBbolt:
		if c.DataFile == "" {
			errs = append(errs, fmt.Errorf("%s backend requires a data file", c.Backend))
		}
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres backend requires a database url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	return errors.Join(errs...)
}
