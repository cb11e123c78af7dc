package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultServerURL  = "ws://localhost:8080/ws"
	DefaultSTUN       = "stun:stun.l.google.com:19302"
	DefaultCurve      = "curve25519"
	DefaultEcho       = EchoImmediate
	DefaultWire       = WireLegacy
	DefaultWorkFactor = 15
	DefaultEmail      = "anonymous@warpchat.local"
)

// Echo policies
const (
	EchoImmediate = "immediate"
	EchoConfirmed = "confirmed"
)

// Wire formats
const (
	WireLegacy = "legacy"
	WireTagged = "tagged"
)

// MaxWorkFactor bounds the scrypt cost accepted from configuration.
const MaxWorkFactor = 22

var ErrInvalidValue = errors.New("invalid config value")

// Config holds application configuration
type Config struct {
	// ServerURL is the websocket endpoint of the signaling relay
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Key material settings. An empty Passphrase means a random one is
	// generated for every keypair.
	Curve      string
	Passphrase string
	WorkFactor int
	Email      string

	// Protocol policies
	Echo string
	Wire string
}

// Options for loading config with CLI flag overrides
type Options struct {
	ConfigFile string

	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	Curve      string
	Passphrase string
	WorkFactor int
	Email      string

	Echo string
	Wire string
}

// fileConfig mirrors the YAML config file layout.
type fileConfig struct {
	Server     string `yaml:"server"`
	STUN       string `yaml:"stun"`
	TURN       string `yaml:"turn"`
	TURNUser   string `yaml:"turn_user"`
	TURNPass   string `yaml:"turn_pass"`
	ForceRelay bool   `yaml:"relay_only"`
	Curve      string `yaml:"curve"`
	Passphrase string `yaml:"passphrase"`
	WorkFactor int    `yaml:"work_factor"`
	Email      string `yaml:"email"`
	Echo       string `yaml:"echo"`
	Wire       string `yaml:"wire"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Config file
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	file, err := readFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	workFactor := opts.WorkFactor
	if workFactor == 0 {
		if v := os.Getenv("WARPCHAT_WORK_FACTOR"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%w: WARPCHAT_WORK_FACTOR=%q", ErrInvalidValue, v)
			}
			workFactor = n
		}
	}
	if workFactor == 0 {
		workFactor = file.WorkFactor
	}
	if workFactor == 0 {
		workFactor = DefaultWorkFactor
	}

	cfg := &Config{
		ServerURL:  pick(opts.ServerURL, "WARPCHAT_SERVER", file.Server, DefaultServerURL),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", file.STUN, DefaultSTUN),
		TURNServer: pick(opts.TURNServer, "TURN_SERVER", file.TURN, ""),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", file.TURNUser, ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", file.TURNPass, ""),
		ForceRelay: opts.ForceRelay || os.Getenv("WARPCHAT_RELAY_ONLY") == "1" || file.ForceRelay,
		Curve:      pick(opts.Curve, "WARPCHAT_CURVE", file.Curve, DefaultCurve),
		Passphrase: pick(opts.Passphrase, "WARPCHAT_PASSPHRASE", file.Passphrase, ""),
		WorkFactor: workFactor,
		Email:      pick(opts.Email, "WARPCHAT_EMAIL", file.Email, DefaultEmail),
		Echo:       pick(opts.Echo, "WARPCHAT_ECHO", file.Echo, DefaultEcho),
		Wire:       pick(opts.Wire, "WARPCHAT_WIRE", file.Wire, DefaultWire),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum-like settings.
func (c *Config) Validate() error {
	switch c.Echo {
	case EchoImmediate, EchoConfirmed:
	default:
		return fmt.Errorf("%w: echo %q (want %s or %s)", ErrInvalidValue, c.Echo, EchoImmediate, EchoConfirmed)
	}

	switch c.Wire {
	case WireLegacy, WireTagged:
	default:
		return fmt.Errorf("%w: wire %q (want %s or %s)", ErrInvalidValue, c.Wire, WireLegacy, WireTagged)
	}

	if c.WorkFactor < 1 || c.WorkFactor > MaxWorkFactor {
		return fmt.Errorf("%w: work factor %d (want 1-%d)", ErrInvalidValue, c.WorkFactor, MaxWorkFactor)
	}

	if c.ForceRelay && c.GetTURNServers() == nil {
		return fmt.Errorf("%w: cannot force relay mode without TURN server configured", ErrInvalidValue)
	}
	return nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", stripScheme(c.TURNServer)),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// DefaultConfigFile returns the per-user config file location.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "warpchat", "config.yaml")
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig

	explicit := path != ""
	if !explicit {
		path = os.Getenv("WARPCHAT_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultConfigFile()
	}
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return fc, nil
		}
		return fc, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// pick resolves flag > env > file > default.
func pick(flag, env, file, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	if file != "" {
		return file
	}
	return def
}

func stripScheme(server string) string {
	for _, prefix := range []string{"turns:", "turn:"} {
		if len(server) > len(prefix) && server[:len(prefix)] == prefix {
			return server[len(prefix):]
		}
	}
	return server
}
