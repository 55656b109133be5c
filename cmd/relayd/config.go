// config.go - Configuration management for the relay daemon
package main

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"shadowwire/internal/rangeproof"
	"shadowwire/internal/snark"
)

// EnvPrefix marks environment overrides. Nested keys use a double
// underscore, e.g. SHADOWWIRE_RELAY__BIT_WIDTH=64.
const EnvPrefix = "SHADOWWIRE_"

// Config represents the relay configuration
type Config struct {
	HTTP  HTTPConfig        `koanf:"http" json:"http"`
	Relay RelayConfig       `koanf:"relay" json:"relay"`
	Rate  RateConfig        `koanf:"rate" json:"rate"`
	Log   LogConfig         `koanf:"log" json:"log"`
	Node  NodeConfig        `koanf:"node" json:"node"`
	Peers map[string]string `koanf:"peers" json:"peers"`
}

// HTTPConfig holds the client-facing listener settings
type HTTPConfig struct {
	Listen string     `koanf:"listen" json:"listen"`
	CORS   CORSConfig `koanf:"cors" json:"cors"`
}

// CORSConfig holds the cross-origin policy
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins" json:"allowed_origins"`
	MaxAge         int      `koanf:"max_age" json:"max_age"`
}

// RelayConfig holds proving settings
type RelayConfig struct {
	BitWidth       int           `koanf:"bit_width" json:"bit_width"`
	MaxBitWidth    int           `koanf:"max_bit_width" json:"max_bit_width"`
	Backend        string        `koanf:"backend" json:"backend"`
	MaxConcurrency int           `koanf:"max_concurrency" json:"max_concurrency"`
	QueueSize      int           `koanf:"queue_size" json:"queue_size"`
	Timeout        time.Duration `koanf:"timeout" json:"timeout"`
	KeysDir        string        `koanf:"keys_dir" json:"keys_dir"`
}

// RateConfig holds per-sender rate limiting settings
type RateConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" json:"requests_per_second"`
	Burst             int     `koanf:"burst" json:"burst"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level     string `koanf:"level" json:"level"`
	Format    string `koanf:"format" json:"format"`
	File      string `koanf:"file" json:"file"`
	AuditPath string `koanf:"audit_path" json:"audit_path"`
}

// NodeConfig identifies this relay to its peers
type NodeConfig struct {
	ID string `koanf:"id" json:"id"`
	// Listen serves the peer endpoint on its own address. Empty mounts it
	// on the client listener.
	Listen string `koanf:"listen" json:"listen"`
}

// defaults is the lowest configuration layer.
var defaults = map[string]interface{}{
	"http.listen":               "0.0.0.0:8080",
	"http.cors.allowed_origins": []string{"http://localhost:5173"},
	"http.cors.max_age":         3600,
	"relay.bit_width":           32,
	"relay.max_bit_width":       64,
	"relay.backend":             rangeproof.BackendName,
	"relay.max_concurrency":     4,
	"relay.queue_size":          64,
	"relay.timeout":             "30s",
	"relay.keys_dir":            "keys",
	"rate.requests_per_second":  5.0,
	"rate.burst":                10,
	"log.level":                 "info",
	"log.format":                "console",
	"log.file":                  "",
	"log.audit_path":            "",
	"node.id":                   "relay",
	"node.listen":               "",
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	cfg, err := LoadConfig("", nil)
	if err != nil {
		// The defaults are static; failing here is a programming error.
		panic(err)
	}
	return cfg
}

// RegisterFlags adds the command-line overrides to fs. Flag names match
// configuration keys.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML or JSON config file")
	fs.String("http.listen", "0.0.0.0:8080", "address for the client API")
	fs.Int("relay.bit_width", 32, "range proof bit-width (8, 16, 32 or 64)")
	fs.String("relay.backend", rangeproof.BackendName, "proof backend (bulletproofs or groth16)")
	fs.Int("relay.max_concurrency", 4, "concurrent proof constructions")
	fs.Int("relay.queue_size", 64, "requests allowed to wait for a worker")
	fs.Duration("relay.timeout", 30*time.Second, "per-request proving timeout")
	fs.String("relay.keys_dir", "keys", "Groth16 key directory")
	fs.String("log.level", "info", "log level")
	fs.String("log.format", "console", "log format (console or json)")
	fs.String("node.id", "relay", "peer node identifier")
	fs.String("node.listen", "", "separate address for the peer endpoint")
}

// LoadConfig layers defaults, the optional file at path, SHADOWWIRE_
// environment variables and changed flags, in that order.
func LoadConfig(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	if path != "" {
		var parser koanf.Parser = json.Parser()
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, errors.Wrap(err, "failed to load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.HTTP.Listen == "" {
		return errors.New("http.listen must not be empty")
	}
	if c.HTTP.CORS.MaxAge < 0 {
		return errors.New("http.cors.max_age must not be negative")
	}
	if !validBitWidth(c.Relay.MaxBitWidth) {
		return errors.Errorf("relay.max_bit_width %d is not one of 8, 16, 32, 64", c.Relay.MaxBitWidth)
	}
	if !validBitWidth(c.Relay.BitWidth) {
		return errors.Errorf("relay.bit_width %d is not one of 8, 16, 32, 64", c.Relay.BitWidth)
	}
	if c.Relay.BitWidth > c.Relay.MaxBitWidth {
		return errors.Errorf("relay.bit_width %d exceeds relay.max_bit_width %d", c.Relay.BitWidth, c.Relay.MaxBitWidth)
	}
	switch c.Relay.Backend {
	case rangeproof.BackendName, snark.BackendName:
	default:
		return errors.Errorf("unknown relay.backend %q", c.Relay.Backend)
	}
	if c.Relay.MaxConcurrency <= 0 {
		return errors.New("relay.max_concurrency must be positive")
	}
	if c.Relay.QueueSize < 0 {
		return errors.New("relay.queue_size must not be negative")
	}
	if c.Relay.Timeout <= 0 {
		return errors.New("relay.timeout must be positive")
	}
	if c.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be positive")
	}
	if c.Rate.Burst <= 0 {
		return errors.New("rate.burst must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(err, "invalid log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Errorf("invalid log.format %q", c.Log.Format)
	}
	if c.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	return nil
}

func validBitWidth(n int) bool {
	switch n {
	case 8, 16, 32, 64:
		return true
	}
	return false
}
