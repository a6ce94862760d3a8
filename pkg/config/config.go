package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configFilePerm = 0600

	defaultHost         = "0.0.0.0"
	defaultPort         = 8080
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 300 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultRequestTimeout = 30 * time.Second
	defaultRateLimitRPS   = 10

	defaultClientTimeout    = 30 * time.Second
	defaultMaxIdleConns     = 100
	defaultMaxIdlePerHost   = 10
	defaultMaxConnsPerHost  = 50
	defaultRetryCount       = 3
	defaultRetryWaitTime    = time.Second
	defaultRetryMaxWaitTime = 5 * time.Second

	maxPort = 65535

	// DefaultQuotaURL is the upstream quota endpoint.
	DefaultQuotaURL = "https://api.monica.im/api/usagev2/get_quotas"
	// DefaultPath is where the console reads and writes its configuration.
	DefaultPath = "config.yaml"
)

// Config is the full proxy configuration edited through the console screens.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Monica     MonicaConfig     `yaml:"monica"`
	Security   SecurityConfig   `yaml:"security"`
	Logging    LoggingConfig    `yaml:"logging"`
	HTTPClient HTTPClientConfig `yaml:"http_client"`
}

// ServerConfig is the proxy listener configuration.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// ProxyConfig holds the outbound proxy settings.
type ProxyConfig struct {
	HTTPProxy  string `yaml:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy"`
	NoProxy    string `yaml:"no_proxy"`
}

// MonicaConfig holds the upstream account settings.
type MonicaConfig struct {
	Cookie              string `yaml:"cookie"`
	BotUID              string `yaml:"bot_uid"`
	EnableCustomBotMode bool   `yaml:"enable_custom_bot_mode"`
	QuotaURL            string `yaml:"quota_url"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	BearerToken      string        `yaml:"bearer_token"`
	TLSSkipVerify    bool          `yaml:"tls_skip_verify"`
	RateLimitEnabled bool          `yaml:"rate_limit_enabled"`
	RateLimitRPS     int           `yaml:"rate_limit_rps"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// LoggingConfig holds the logging screen settings.
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableRequestLog bool   `yaml:"enable_request_log"`
	MaskSensitive    bool   `yaml:"mask_sensitive"`
}

// HTTPClientConfig tunes outbound HTTP clients.
type HTTPClientConfig struct {
	Timeout             time.Duration `yaml:"timeout"`
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	RetryCount          int           `yaml:"retry_count"`
	RetryWaitTime       time.Duration `yaml:"retry_wait_time"`
	RetryMaxWaitTime    time.Duration `yaml:"retry_max_wait_time"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         defaultHost,
			Port:         defaultPort,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
			IdleTimeout:  defaultIdleTimeout,
		},
		Monica: MonicaConfig{
			QuotaURL: DefaultQuotaURL,
		},
		Security: SecurityConfig{
			RateLimitRPS:   defaultRateLimitRPS,
			RequestTimeout: defaultRequestTimeout,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "console",
			Output:        "stderr",
			MaskSensitive: true,
		},
		HTTPClient: HTTPClientConfig{
			Timeout:             defaultClientTimeout,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdlePerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			RetryCount:          defaultRetryCount,
			RetryWaitTime:       defaultRetryWaitTime,
			RetryMaxWaitTime:    defaultRetryMaxWaitTime,
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Parse decodes a YAML (or JSON) document on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Address is the proxy listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// BaseURL is the address clients use to reach the proxy.
// A wildcard listen host is reached through localhost.
func (c *Config) BaseURL() string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Server.Port))
}

// OutboundProxy returns the configured proxy URL, preferring the HTTP one.
func (c *Config) OutboundProxy() string {
	if c.Proxy.HTTPProxy != "" {
		return c.Proxy.HTTPProxy
	}
	return c.Proxy.HTTPSProxy
}

// Validate checks the settings that must be filled in before the proxy can
// be exercised.
func (c *Config) Validate() error {
	var errs []error

	if c.Monica.Cookie == "" {
		errs = append(errs, ErrMissingCookie)
	}
	if c.Security.BearerToken == "" {
		errs = append(errs, ErrMissingBearerToken)
	}
	if c.Monica.EnableCustomBotMode && c.Monica.BotUID == "" {
		errs = append(errs, ErrMissingBotUID)
	}
	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		errs = append(errs, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port))
	}

	return errors.Join(errs...)
}

// AsMap renders the configuration as the untyped document the console
// state exposes. Keys follow the YAML names.
func (c *Config) AsMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return out, nil
}

// Section returns one top-level section of AsMap, or nil when absent.
func (c *Config) Section(name string) (map[string]any, error) {
	doc, err := c.AsMap()
	if err != nil {
		return nil, err
	}
	section, _ := doc[name].(map[string]any)
	return section, nil
}
