package config

import (
	"encoding/json"
	stderrors "errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/pomelo/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "pomelo.json"

	// DefaultHost is the default server host.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the default connector port of a Pomelo server.
	DefaultPort = 3010

	// DefaultTransport is the default transport.
	DefaultTransport = "ws"

	// DefaultTimeout bounds how long the CLI waits for ready and for responses.
	DefaultTimeout = "10s"

	// DefaultMaxAttempts is the default reconnect budget.
	DefaultMaxAttempts = 10

	// DefaultBaseDelay is the first reconnect delay.
	DefaultBaseDelay = "5s"

	// DefaultClientType is announced in the handshake sys block.
	DefaultClientType = "go-websocket"

	// DefaultClientVersion is announced in the handshake sys block.
	DefaultClientVersion = "0.0.1"
)

// Transports accepted by Validate.
var validTransports = map[string]bool{"ws": true, "wss": true, "tcp": true}

// Config represents the complete pomelo.json configuration.
type Config struct {
	// Host is the server host name or address.
	Host string `json:"host,omitempty"`

	// Port is the connector port. 0 omits the port from the URL.
	Port int `json:"port,omitempty"`

	// Transport is "ws", "wss" or "tcp".
	Transport string `json:"transport,omitempty"`

	// Path is appended to WebSocket URLs (e.g., "/ws").
	Path string `json:"path,omitempty"`

	// Timeout bounds connect and request waits in the CLI (e.g., "10s").
	Timeout string `json:"timeout,omitempty"`

	// Reconnect contains the reconnect policy.
	Reconnect ReconnectConfig `json:"reconnect"`

	// Client contains the handshake identity.
	Client ClientConfig `json:"client"`

	// Heartbeat contains heartbeat tuning.
	Heartbeat HeartbeatConfig `json:"heartbeat,omitempty"`

	// RateLimit caps outbound requests per second. 0 disables the limiter.
	RateLimit float64 `json:"rateLimit,omitempty"`

	// Metrics contains the CLI metrics endpoint configuration.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ReconnectConfig contains reconnect policy settings.
type ReconnectConfig struct {
	// Enabled turns automatic reconnection on.
	Enabled bool `json:"enabled"`

	// MaxAttempts is the number of reconnects tried before giving up.
	MaxAttempts int `json:"maxAttempts,omitempty"`

	// BaseDelay is the first reconnect delay; it doubles after each attempt.
	BaseDelay string `json:"baseDelay,omitempty"`

	// MaxDelay caps the delay. Empty means uncapped.
	MaxDelay string `json:"maxDelay,omitempty"`
}

// ClientConfig contains what the client announces in the handshake.
type ClientConfig struct {
	Type    string          `json:"type,omitempty"`
	Version string          `json:"version,omitempty"`
	User    json.RawMessage `json:"user,omitempty"`
}

// HeartbeatConfig contains heartbeat tuning.
type HeartbeatConfig struct {
	// GapThreshold is the tolerance before a heartbeat timeout fires (e.g., "100ms").
	GapThreshold string `json:"gapThreshold,omitempty"`
}

// MetricsConfig contains the metrics endpoint settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics and /healthz. Empty disables it.
	Addr string `json:"addr,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Host:      DefaultHost,
		Port:      DefaultPort,
		Transport: DefaultTransport,
		Timeout:   DefaultTimeout,
		Reconnect: ReconnectConfig{
			MaxAttempts: DefaultMaxAttempts,
			BaseDelay:   DefaultBaseDelay,
		},
		Client: ClientConfig{
			Type:    DefaultClientType,
			Version: DefaultClientVersion,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for pomelo.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeMissingConfig).
				WithDetail("No " + ConfigFileName + " found at " + path).
				WithSuggestion("Run 'pomelo init' to write a default " + ConfigFileName + " or pass the connection flags directly")
		}
		return nil, errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		perr := errors.New(errors.CodeInvalidConfig).
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that " + filepath.Base(path) + " is valid JSON").
			Wrap(err)

		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntaxErr):
			perr.WithOffset(path, data, syntaxErr.Offset)
		case stderrors.As(err, &typeErr):
			perr.WithOffset(path, data, typeErr.Offset)
		}
		return nil, perr
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeInvalidConfig).Wrap(err)
	}

	c.configPath = path
	return nil
}

// File returns the path where the config was loaded from.
func (c *Config) File() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	c.Transport = strings.ToLower(c.Transport)
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout
	}

	// Reconnect
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if c.Reconnect.BaseDelay == "" {
		c.Reconnect.BaseDelay = DefaultBaseDelay
	}

	// Client identity
	if c.Client.Type == "" {
		c.Client.Type = DefaultClientType
	}
	if c.Client.Version == "" {
		c.Client.Version = DefaultClientVersion
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New(errors.CodeMissingConfig).
			WithDetail("host must be set")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.New(errors.CodeInvalidPort).
			WithDetail("Port must be between 0 and 65535, got " + strconv.Itoa(c.Port))
	}
	if !validTransports[c.Transport] {
		return errors.New(errors.CodeInvalidTransport).
			WithDetail(`Transport must be "ws", "wss" or "tcp", got "` + c.Transport + `"`)
	}
	if c.Reconnect.MaxAttempts < 0 {
		return errors.New(errors.CodeInvalidReconnect).
			WithDetail("reconnect.maxAttempts must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("rateLimit must not be negative")
	}
	if len(c.Client.User) > 0 && !json.Valid(c.Client.User) {
		return errors.New(errors.CodeInvalidConfig).
			WithDetail("client.user must be a JSON value")
	}

	durations := []struct {
		field string
		value string
	}{
		{"timeout", c.Timeout},
		{"reconnect.baseDelay", c.Reconnect.BaseDelay},
		{"reconnect.maxDelay", c.Reconnect.MaxDelay},
		{"heartbeat.gapThreshold", c.Heartbeat.GapThreshold},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.value); err != nil {
			return errors.New(errors.CodeInvalidReconnect).
				WithDetail(d.field + ` must be a non-negative duration such as "5s", got "` + d.value + `"`).
				Wrap(err)
		}
	}
	return nil
}

// parseDuration parses a duration string; an empty string is zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, stderrors.New("negative duration")
	}
	return d, nil
}

// Address returns host:port, or just host when the port is 0.
func (c *Config) Address() string {
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// URL returns the endpoint the configured transport dials.
func (c *Config) URL() string {
	if c.Transport == "tcp" {
		return "tcp://" + c.Address()
	}
	path := c.Path
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.Transport + "://" + c.Address() + path
}

// TimeoutDuration returns Timeout parsed, or the default when unparsable.
func (c *Config) TimeoutDuration() time.Duration {
	if d, err := parseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(DefaultTimeout)
	return d
}

// BaseDelay returns the reconnect base delay.
func (c *Config) BaseDelay() time.Duration {
	d, _ := parseDuration(c.Reconnect.BaseDelay)
	return d
}

// MaxDelay returns the reconnect delay ceiling; 0 means uncapped.
func (c *Config) MaxDelay() time.Duration {
	d, _ := parseDuration(c.Reconnect.MaxDelay)
	return d
}

// GapThreshold returns the heartbeat gap threshold; 0 means the client default.
func (c *Config) GapThreshold() time.Duration {
	d, _ := parseDuration(c.Heartbeat.GapThreshold)
	return d
}

// User decodes the handshake user payload, or nil when none is set.
func (c *Config) User() (any, error) {
	if len(c.Client.User) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(c.Client.User, &v); err != nil {
		return nil, errors.New(errors.CodeInvalidConfig).Wrap(err)
	}
	return v, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindConfigDir walks up directories from startDir to the first one holding
// pomelo.json.
func FindConfigDir(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeMissingConfig).
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'pomelo init' to write one")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory
// or its nearest parent holding pomelo.json.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindConfigDir(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}
