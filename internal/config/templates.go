package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders Default as TOML, with example subscription and CORS
// entries filled in.
func Template() (string, error) {
	d := Default()
	file := fileConfig{
		Host:              d.Host,
		Port:              d.Port,
		Transport:         d.Transport,
		WebSocketPath:     d.WebSocketPath,
		AckMode:           d.Session.AckMode.String(),
		AcceptVersion:     d.Session.AcceptVersion,
		ConnectTimeout:    d.Session.ConnectTimeout.String(),
		HandshakeTimeout:  d.Session.HandshakeTimeout.String(),
		WriteTimeout:      d.Session.WriteTimeout.String(),
		HeartbeatInterval: d.Session.HeartbeatInterval.String(),
		ReconnectDelay:    d.Session.Backoff.InitialDelay.String(),
		MaxHeaderBytes:    d.Session.Limits.MaxHeaderBytes,
		MaxBodyBytes:      d.Session.Limits.MaxBodyBytes,
		Subscriptions:     []string{"/topic/events"},
		Admin: fileAdmin{
			Addr:        d.Admin.Addr,
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
	b, err := toml.Marshal(file)
	if err != nil {
		return "", fmt.Errorf("config template: %w", err)
	}
	return string(b), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
