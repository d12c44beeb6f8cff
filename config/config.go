package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvAPIBaseURL = "DEVCONNECT_API_BASE_URL"
	EnvWSURL      = "DEVCONNECT_WS_URL"
)

// DefaultTokenKeys are the local storage keys holding the bearer
// credential, in priority order: the backend key, the app key, then the
// generic fallback.
var DefaultTokenKeys = []string{"accessToken", "devconnect_token", "token"}

// Config holds every tunable of the messaging core.
type Config struct {
	// APIBaseURL is the REST root; message endpoints live under /messages.
	APIBaseURL string `yaml:"api_base_url"`
	// WSURL is the raw websocket endpoint of the STOMP broker.
	WSURL string `yaml:"ws_url"`

	TokenKeys []string `yaml:"token_keys"`

	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	HeartbeatIncoming time.Duration `yaml:"heartbeat_incoming"`
	HeartbeatOutgoing time.Duration `yaml:"heartbeat_outgoing"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`

	// TypingStopDebounce is how long the composer waits after the last
	// keystroke before it reports "typing stopped".
	TypingStopDebounce time.Duration `yaml:"typing_stop_debounce"`
	// TypingIndicatorTTL bounds how long a peer's typing flag stays on
	// after a "typing started" event.
	TypingIndicatorTTL time.Duration `yaml:"typing_indicator_ttl"`

	ChatListRefresh time.Duration `yaml:"chat_list_refresh"`

	// DefaultProjectID tags sends that carry no project context.
	DefaultProjectID int64 `yaml:"default_project_id"`
	// RestFallback lets sends go through REST while the realtime session
	// is down.
	RestFallback bool `yaml:"rest_fallback"`
}

// Default returns the configuration matching a local backend.
func Default() *Config {
	return &Config{
		APIBaseURL:         "http://localhost:8081/api",
		WSURL:              "ws://localhost:8081/ws/websocket",
		TokenKeys:          append([]string(nil), DefaultTokenKeys...),
		ReconnectDelay:     5 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		HeartbeatIncoming:  4 * time.Second,
		HeartbeatOutgoing:  4 * time.Second,
		RequestTimeout:     10 * time.Second,
		TypingStopDebounce: 1000 * time.Millisecond,
		TypingIndicatorTTL: 3 * time.Second,
		ChatListRefresh:    30 * time.Second,
		DefaultProjectID:   1,
		RestFallback:       true,
	}
}

// Load reads a YAML file over the defaults. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %v", path, err)
	}
	return c, nil
}

// ApplyEnv overrides the endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIBaseURL)); v != "" {
		c.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWSURL)); v != "" {
		c.WSURL = v
	}
}

func (c *Config) Validate() error {
	var errs []string
	if c.APIBaseURL == "" {
		errs = append(errs, "api_base_url is required")
	}
	if c.WSURL == "" {
		errs = append(errs, "ws_url is required")
	}
	if len(c.TokenKeys) == 0 {
		errs = append(errs, "token_keys must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"reconnect_delay":      c.ReconnectDelay,
		"handshake_timeout":    c.HandshakeTimeout,
		"request_timeout":      c.RequestTimeout,
		"typing_stop_debounce": c.TypingStopDebounce,
		"typing_indicator_ttl": c.TypingIndicatorTTL,
		"chat_list_refresh":    c.ChatListRefresh,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive", name))
		}
	}
	if c.HeartbeatIncoming < 0 || c.HeartbeatOutgoing < 0 {
		errs = append(errs, "heartbeats must not be negative")
	}
	if len(errs) > 0 {
		return errors.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}
