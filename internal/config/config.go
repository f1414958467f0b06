package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/developingchet/ip-location-exporter/internal/provider"
)

// Config holds all runtime configuration.
type Config struct {
	// Prometheus
	PrometheusURL string        `koanf:"prometheus_url"`
	QueryTimeout  time.Duration `koanf:"query_timeout"`

	// HTTP server
	Port int `koanf:"port"`

	// Pushgateway; "" = disabled
	PushgatewayURL string `koanf:"pushgateway_url"`
	PushJob        string `koanf:"push_job"`
	PushInstance   string `koanf:"push_instance"`

	// Providers
	ProviderTimeout time.Duration    `koanf:"provider_timeout"`
	IPInfoToken     string           `koanf:"ipinfo_token"`
	IPLocateAPIKey  string           `koanf:"iplocate_api_key"`
	Providers       []ProviderConfig `koanf:"providers"` // empty = built-in chain

	// Operational
	Debug     bool   `koanf:"debug"`
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// ProviderConfig is one entry of the "providers" list in the YAML file.
// Fields maps canonical names (ip, country_code, city, latitude, longitude or
// loc) to the provider's response keys.
type ProviderConfig struct {
	Name      string            `koanf:"name"`
	URL       string            `koanf:"url"`
	AuthParam string            `koanf:"auth_param"`
	AuthValue string            `koanf:"auth_value"`
	Fields    map[string]string `koanf:"fields"`
}

// defaults is the lowest-priority layer.
var defaults = map[string]any{
	"prometheus_url":   "http://prometheus:9090",
	"query_timeout":    30 * time.Second,
	"port":             9012,
	"pushgateway_url":  "",
	"push_job":         "ip_location_exporter",
	"push_instance":    "",
	"provider_timeout": 10 * time.Second,
	"ipinfo_token":     "",
	"iplocate_api_key": "",
	"debug":            false,
	"log_level":        "info",
	"log_format":       "json",
}

// Flags registers the command-line flags Load understands on fs.
func Flags(fs *pflag.FlagSet) {
	fs.StringP("prometheus-url", "u", "http://prometheus:9090", "URL of Prometheus server")
	fs.IntP("port", "p", 9012, "Port to run the exporter on")
	fs.String("pushgateway-url", "", "Pushgateway URL; pushing is disabled when empty")
	fs.BoolP("debug", "d", false, "Enable debug logging")
}

// Load reads configuration from (lowest → highest priority):
//  1. Built-in defaults
//  2. YAML file at CONFIG_FILE env var path (if set)
//  3. Environment variables
//  4. Command-line flags explicitly set in fs (fs may be nil)
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	// Layer 2: optional YAML file.
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", cfgFile, err)
		}
	}

	// Layer 3: environment variables.
	// Transform: "PROMETHEUS_URL" → "prometheus_url". Only known keys are
	// taken so unrelated variables (PATH, HOME) stay out of the tree.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := defaults[key]; !ok {
			return ""
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	// Layer 4: flags. Unchanged flags do not override lower layers.
	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Normalise string fields.
	cfg.LogLevel = strings.TrimSpace(strings.ToLower(cfg.LogLevel))
	cfg.LogFormat = strings.TrimSpace(strings.ToLower(cfg.LogFormat))
	cfg.PrometheusURL = strings.TrimRight(strings.TrimSpace(cfg.PrometheusURL), "/")
	cfg.PushgatewayURL = strings.TrimSpace(cfg.PushgatewayURL)

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if cfg.PushInstance == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			cfg.PushInstance = host
		} else {
			cfg.PushInstance = "ip-location-exporter"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []string

	if c.PrometheusURL == "" {
		errs = append(errs, "PROMETHEUS_URL is required (e.g., http://prometheus:9090)")
	} else if u, err := url.Parse(c.PrometheusURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("PROMETHEUS_URL %q is not an absolute URL", c.PrometheusURL))
	}
	if c.PushgatewayURL != "" {
		if u, err := url.Parse(c.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("PUSHGATEWAY_URL %q is not an absolute URL", c.PushgatewayURL))
		}
		if strings.TrimSpace(c.PushJob) == "" {
			errs = append(errs, "PUSH_JOB must not be empty when PUSHGATEWAY_URL is set")
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "PORT must be between 1 and 65535")
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, "PROVIDER_TIMEOUT must be positive")
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, "QUERY_TIMEOUT must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, `LOG_FORMAT must be "json" or "text"`)
	}

	if _, err := c.Registry(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d configuration error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}

// ListenAddr returns the HTTP listen address for Port on all interfaces.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Registry builds the provider chain: the configured providers list when
// present, otherwise the built-in defaults with configured tokens.
func (c *Config) Registry() (*provider.Registry, error) {
	if len(c.Providers) == 0 {
		return provider.NewRegistry(provider.Defaults(provider.Tokens{
			IPInfo:   c.IPInfoToken,
			IPLocate: c.IPLocateAPIKey,
		})...)
	}

	descs := make([]provider.Descriptor, 0, len(c.Providers))
	for i, pc := range c.Providers {
		d, err := provider.FromFields(pc.Name, pc.URL,
			provider.AuthParam{Name: pc.AuthParam, Value: pc.AuthValue}, pc.Fields)
		if err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		descs = append(descs, d)
	}
	return provider.NewRegistry(descs...)
}
