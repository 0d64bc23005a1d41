package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/stompctl/internal/client"
	"github.com/danmuck/stompctl/internal/protocol/session"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

var ErrInvalid = errors.New("config: invalid")

// ClientConfig is the resolved stompctl configuration.
type ClientConfig struct {
	Host          string
	Port          int
	Transport     string
	WebSocketPath string
	Session       session.Config
	Subscriptions []string
	Admin         AdminConfig
}

type AdminConfig struct {
	Addr        string
	CorsOrigins []string
}

func Default() ClientConfig {
	d := client.DefaultConfig()
	return ClientConfig{
		Host:          d.Host,
		Port:          d.Port,
		Transport:     TransportTCP,
		WebSocketPath: "/stomp",
		Session:       d.Session,
		Admin:         AdminConfig{Addr: "127.0.0.1:9400"},
	}
}

// fileConfig is the on-disk shape. Durations are Go duration strings.
type fileConfig struct {
	Host              string    `toml:"host"`
	Port              int       `toml:"port"`
	Transport         string    `toml:"transport"`
	WebSocketPath     string    `toml:"websocket_path"`
	AckMode           string    `toml:"ack_mode"`
	AcceptVersion     string    `toml:"accept_version"`
	ConnectTimeout    string    `toml:"connect_timeout"`
	HandshakeTimeout  string    `toml:"handshake_timeout"`
	WriteTimeout      string    `toml:"write_timeout"`
	HeartbeatInterval string    `toml:"heartbeat_interval"`
	ReconnectDelay    string    `toml:"reconnect_delay"`
	MaxHeaderBytes    int       `toml:"max_header_bytes"`
	MaxBodyBytes      int       `toml:"max_body_bytes"`
	Subscriptions     []string  `toml:"subscriptions"`
	Admin             fileAdmin `toml:"admin"`
}

type fileAdmin struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

// Load reads path over Default; keys absent from the file keep defaults.
func Load(path string) (ClientConfig, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ClientConfig{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("websocket_path") {
		cfg.WebSocketPath = strings.TrimSpace(raw.WebSocketPath)
	}
	if meta.IsDefined("ack_mode") {
		mode, err := session.ParseAckMode(raw.AckMode)
		if err != nil {
			return ClientConfig{}, err
		}
		cfg.Session.AckMode = mode
	}
	if meta.IsDefined("accept_version") {
		cfg.Session.AcceptVersion = strings.TrimSpace(raw.AcceptVersion)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Session.HeartbeatInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := parseDuration(d.key, d.raw)
		if err != nil {
			return ClientConfig{}, err
		}
		*d.dst = v
	}
	if meta.IsDefined("reconnect_delay") {
		v, err := parseDuration("reconnect_delay", raw.ReconnectDelay)
		if err != nil {
			return ClientConfig{}, err
		}
		cfg.Session.Backoff = session.BackoffConfig{InitialDelay: v, Multiplier: 1, MaxDelay: v}
	}

	if meta.IsDefined("max_header_bytes") {
		cfg.Session.Limits.MaxHeaderBytes = raw.MaxHeaderBytes
	}
	if meta.IsDefined("max_body_bytes") {
		cfg.Session.Limits.MaxBodyBytes = raw.MaxBodyBytes
	}
	if meta.IsDefined("subscriptions") {
		cfg.Subscriptions = normalizeList(raw.Subscriptions)
	}
	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}

	if err := Validate(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalid, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalid, key)
	}
	return d, nil
}

func Validate(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalid)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, cfg.Port)
	}
	switch cfg.Transport {
	case TransportTCP:
	case TransportWebSocket:
		if !strings.HasPrefix(cfg.WebSocketPath, "/") {
			return fmt.Errorf("%w: websocket_path must start with /", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: transport %q", ErrInvalid, cfg.Transport)
	}
	for _, topic := range cfg.Subscriptions {
		if topic == "" {
			return fmt.Errorf("%w: empty subscription", ErrInvalid)
		}
	}
	if err := cfg.Session.Validate(); err != nil {
		return err
	}
	return nil
}

// Client builds the client configuration with the selected transport.
func (c ClientConfig) Client() client.Config {
	cfg := client.DefaultConfig()
	cfg.Host = c.Host
	cfg.Port = c.Port
	cfg.Session = c.Session
	switch c.Transport {
	case TransportWebSocket:
		cfg.Transport = &client.WebSocketTransport{Path: c.WebSocketPath}
	default:
		tcp := &client.TCPTransport{}
		tcp.Dialer.KeepAlive = 30 * time.Second
		cfg.Transport = tcp
	}
	return cfg
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
