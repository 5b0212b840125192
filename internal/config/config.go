// Package config manages the PUF-ACS daemon configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete pufacsd/pufacs-supplicant configuration.
type Config struct {
	Role       string           `koanf:"role"`
	Interface  string           `koanf:"interface"`
	SwitchMAC  string           `koanf:"switch_mac"`
	Network    NetworkConfig    `koanf:"network"`
	Credential CredentialConfig `koanf:"credential"`
	Health     HealthConfig     `koanf:"health"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
	PUF        PUFConfig        `koanf:"puf"`
}

// NetworkConfig holds the raw-Ethernet transport configuration.
type NetworkConfig struct {
	// Timeout bounds a single Network.Receive call (PUF-ACS design
	// document Section 5: "up to a 3,000 ms deadline").
	Timeout time.Duration `koanf:"timeout"`

	// Attempts is the handshake retry budget passed to Connect.
	Attempts int `koanf:"attempts"`
}

// CredentialConfig holds the Authenticator's credential-store persistence
// settings.
type CredentialConfig struct {
	// Path is the CSV file the store is fetched from at startup and
	// synced to on mutation (PUF-ACS design document Section 4.4).
	Path string `koanf:"path"`
}

// HealthConfig holds the gRPC health-check listener configuration.
type HealthConfig struct {
	// Addr is the HTTP/2 (h2c) listen address for the grpchealth service.
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// PUFConfig holds the simulated-PUF provider's seed. Production deployments
// targeting real PUF hardware do not use this section; it exists for the
// software-simulated provider used in development and testing (PUF-ACS
// design document Section 9, Open Questions).
type PUFConfig struct {
	// Seed keys the deterministic HMAC-based simulated PUF. Must never be
	// reused across distinct simulated devices.
	Seed string `koanf:"seed"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// Role string values accepted by Config.Role.
const (
	RoleAuthenticator = "authenticator"
	RoleSupplicant    = "supplicant"
)

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Role:      RoleAuthenticator,
		Interface: "eth0",
		Network: NetworkConfig{
			Timeout:  3 * time.Second,
			Attempts: 3,
		},
		Credential: CredentialConfig{
			Path: "Supplicant.csv",
		},
		Health: HealthConfig{
			Addr: ":50051",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for PUF-ACS configuration.
// Variables are named PUFACS_<section>_<key>, e.g., PUFACS_NETWORK_TIMEOUT.
const envPrefix = "PUFACS_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (PUFACS_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	PUFACS_ROLE              -> role
//	PUFACS_INTERFACE         -> interface
//	PUFACS_SWITCH_MAC        -> switch_mac
//	PUFACS_NETWORK_TIMEOUT   -> network.timeout
//	PUFACS_CREDENTIAL_PATH   -> credential.path
//	PUFACS_HEALTH_ADDR       -> health.addr
//	PUFACS_METRICS_ADDR      -> metrics.addr
//	PUFACS_METRICS_PATH      -> metrics.path
//	PUFACS_LOG_LEVEL         -> log.level
//	PUFACS_LOG_FORMAT        -> log.format
//	PUFACS_PUF_SEED          -> puf.seed
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms PUFACS_NETWORK_TIMEOUT -> network.timeout.
// Strips the PUFACS_ prefix, lowercases, and replaces the first _ with a
// dot (koanf then treats the remainder within each section as a literal
// key). The top-level multi-word key switch_mac is passed through as is.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	if s == "switch_mac" {
		return s
	}
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"role":               defaults.Role,
		"interface":          defaults.Interface,
		"switch_mac":         defaults.SwitchMAC,
		"network.timeout":    defaults.Network.Timeout.String(),
		"network.attempts":   defaults.Network.Attempts,
		"credential.path":    defaults.Credential.Path,
		"health.addr":        defaults.Health.Addr,
		"metrics.addr":       defaults.Metrics.Addr,
		"metrics.path":       defaults.Metrics.Path,
		"log.level":          defaults.Log.Level,
		"log.format":         defaults.Log.Format,
		"puf.seed":           defaults.PUF.Seed,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidRole indicates Role is neither "authenticator" nor
	// "supplicant".
	ErrInvalidRole = errors.New("role must be authenticator or supplicant")

	// ErrEmptyInterface indicates the network interface name is empty.
	ErrEmptyInterface = errors.New("interface must not be empty")

	// ErrInvalidTimeout indicates the network timeout is non-positive.
	ErrInvalidTimeout = errors.New("network.timeout must be > 0")

	// ErrInvalidAttempts indicates the handshake attempt budget is
	// non-positive.
	ErrInvalidAttempts = errors.New("network.attempts must be >= 1")

	// ErrEmptyCredentialPath indicates the Authenticator's credential
	// store path is empty.
	ErrEmptyCredentialPath = errors.New("credential.path must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Role != RoleAuthenticator && cfg.Role != RoleSupplicant {
		return fmt.Errorf("role %q: %w", cfg.Role, ErrInvalidRole)
	}

	if cfg.Interface == "" {
		return ErrEmptyInterface
	}

	if cfg.Network.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if cfg.Network.Attempts < 1 {
		return ErrInvalidAttempts
	}

	if cfg.Role == RoleAuthenticator && cfg.Credential.Path == "" {
		return ErrEmptyCredentialPath
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
