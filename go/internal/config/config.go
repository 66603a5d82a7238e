package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parthhay/deskroguelikeproto/go/internal/client"
	"github.com/parthhay/deskroguelikeproto/go/internal/feed"
	"github.com/parthhay/deskroguelikeproto/go/internal/gateway"
	"github.com/parthhay/deskroguelikeproto/go/internal/poller"
	"github.com/parthhay/deskroguelikeproto/go/internal/protocol"
	"github.com/parthhay/deskroguelikeproto/go/internal/reconcile"
)

const defaultPath = "deskclient.yaml"

// Config is the full desk client configuration.
type Config struct {
	ServerURL      string        `yaml:"server_url"`
	PushPort       int           `yaml:"push_port"`
	ClientID       string        `yaml:"client_id"`
	PlayerName     string        `yaml:"player_name"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	RequireVersion bool          `yaml:"require_version"`
	TargetedCards  []string      `yaml:"targeted_cards"`
	LogLevel       string        `yaml:"log_level"`

	Poll    PollConfig    `yaml:"poll"`
	Gateway GatewayConfig `yaml:"gateway"`
	NATS    NATSConfig    `yaml:"nats"`
}

type PollConfig struct {
	Boot            time.Duration `yaml:"boot"`
	Fast            time.Duration `yaml:"fast"`
	Slow            time.Duration `yaml:"slow"`
	IdleStep        time.Duration `yaml:"idle_step"`
	IdleMax         time.Duration `yaml:"idle_max"`
	UnversionedFast time.Duration `yaml:"unversioned_fast"`
	UnversionedSlow time.Duration `yaml:"unversioned_slow"`
	Error           time.Duration `yaml:"error"`
}

type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// NATSConfig enables the view feed when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	timing := reconcile.DefaultTiming()
	polls := poller.DefaultConfig()

	return Config{
		ServerURL:      "http://localhost:8080",
		PushPort:       8081,
		ReconnectDelay: 2 * time.Second,
		RequireVersion: true,
		TargetedCards:  append([]string(nil), protocol.DefaultTargetedCards...),
		LogLevel:       "info",
		Poll: PollConfig{
			Boot:            polls.BootDelay,
			Fast:            timing.Fast,
			Slow:            timing.Slow,
			IdleStep:        timing.IdleStep,
			IdleMax:         timing.IdleMax,
			UnversionedFast: timing.UnversionedFast,
			UnversionedSlow: timing.UnversionedSlow,
			Error:           polls.ErrorDelay,
		},
		Gateway: GatewayConfig{Addr: gateway.DefaultConfig().Addr},
		NATS:    NATSConfig{SubjectPrefix: feed.DefaultConfig().SubjectPrefix},
	}
}

// Load reads the YAML file named by DESKCLIENT_CONFIG (deskclient.yaml when
// unset) over the defaults, then applies environment overrides. A missing
// file is not an error.
func Load() (Config, error) {
	cfg := Default()

	path := getEnv("DESKCLIENT_CONFIG", defaultPath)
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerURL = getEnv("DESKCLIENT_SERVER_URL", cfg.ServerURL)
	cfg.PushPort = getEnvAsInt("DESKCLIENT_PUSH_PORT", cfg.PushPort)
	cfg.ClientID = getEnv("DESKCLIENT_CLIENT_ID", cfg.ClientID)
	cfg.PlayerName = getEnv("DESKCLIENT_NAME", cfg.PlayerName)
	cfg.RequestTimeout = getEnvAsDuration("DESKCLIENT_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ReconnectDelay = getEnvAsDuration("DESKCLIENT_RECONNECT_DELAY", cfg.ReconnectDelay)
	cfg.RequireVersion = getEnvAsBool("DESKCLIENT_REQUIRE_VERSION", cfg.RequireVersion)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if cards := getEnv("DESKCLIENT_TARGETED_CARDS", ""); cards != "" {
		cfg.TargetedCards = splitList(cards)
	}

	cfg.Poll.Boot = getEnvAsDuration("DESKCLIENT_POLL_BOOT", cfg.Poll.Boot)
	cfg.Poll.Fast = getEnvAsDuration("DESKCLIENT_POLL_FAST", cfg.Poll.Fast)
	cfg.Poll.Slow = getEnvAsDuration("DESKCLIENT_POLL_SLOW", cfg.Poll.Slow)
	cfg.Poll.IdleStep = getEnvAsDuration("DESKCLIENT_POLL_IDLE_STEP", cfg.Poll.IdleStep)
	cfg.Poll.IdleMax = getEnvAsDuration("DESKCLIENT_POLL_IDLE_MAX", cfg.Poll.IdleMax)
	cfg.Poll.Error = getEnvAsDuration("DESKCLIENT_POLL_ERROR", cfg.Poll.Error)

	cfg.Gateway.Addr = getEnv("DESKCLIENT_GATEWAY_ADDR", cfg.Gateway.Addr)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)
}

// Validate reports the first configuration error.
func (c Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid server_url %q", c.ServerURL)
	}
	if c.PushPort <= 0 || c.PushPort > 65535 {
		return fmt.Errorf("invalid push_port %d", c.PushPort)
	}
	if c.Poll.Fast <= 0 || c.Poll.Slow <= 0 || c.Poll.Boot <= 0 || c.Poll.Error <= 0 {
		return errors.New("poll delays must be positive")
	}
	if c.Poll.Fast > c.Poll.Slow {
		return fmt.Errorf("poll.fast %s exceeds poll.slow %s", c.Poll.Fast, c.Poll.Slow)
	}
	if c.Poll.UnversionedFast > c.Poll.UnversionedSlow {
		return fmt.Errorf("poll.unversioned_fast %s exceeds poll.unversioned_slow %s", c.Poll.UnversionedFast, c.Poll.UnversionedSlow)
	}
	if c.Poll.IdleMax < c.Poll.Slow {
		return fmt.Errorf("poll.idle_max %s is below poll.slow %s", c.Poll.IdleMax, c.Poll.Slow)
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("reconnect_delay must be positive")
	}
	if c.Gateway.Addr == "" {
		return errors.New("gateway.addr is required")
	}
	return nil
}

// PushURL is the push channel endpoint: the server's host on PushPort,
// ws or wss following the server's scheme.
func (c Config) PushURL() (string, error) {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server_url: %w", err)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(u.Hostname(), strconv.Itoa(c.PushPort))), nil
}

// ClientConfig converts to the client service configuration.
func (c Config) ClientConfig() (client.Config, error) {
	pushURL, err := c.PushURL()
	if err != nil {
		return client.Config{}, err
	}

	cc := client.DefaultConfig(c.ServerURL, pushURL)
	cc.ClientID = c.ClientID
	cc.RequestTimeout = c.RequestTimeout
	cc.ReconnectDelay = c.ReconnectDelay
	cc.TargetedCards = c.TargetedCards
	cc.Poller = poller.Config{
		BootDelay:  c.Poll.Boot,
		ErrorDelay: c.Poll.Error,
	}
	cc.Reconcile = reconcile.Config{
		Timing: reconcile.Timing{
			Fast:            c.Poll.Fast,
			Slow:            c.Poll.Slow,
			IdleStep:        c.Poll.IdleStep,
			IdleMax:         c.Poll.IdleMax,
			UnversionedFast: c.Poll.UnversionedFast,
			UnversionedSlow: c.Poll.UnversionedSlow,
		},
		RequireVersion: c.RequireVersion,
	}
	return cc, nil
}

func (c Config) GatewayConfig() gateway.Config {
	gc := gateway.DefaultConfig()
	gc.Addr = c.Gateway.Addr
	return gc
}

// FeedConfig returns the view feed configuration, and false when no NATS URL
// is configured.
func (c Config) FeedConfig(clientID string) (feed.Config, bool) {
	if c.NATS.URL == "" {
		return feed.Config{}, false
	}
	fc := feed.DefaultConfig()
	fc.URL = c.NATS.URL
	fc.SubjectPrefix = c.NATS.SubjectPrefix
	fc.ClientID = clientID
	return fc, true
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("350ms") or bare milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
