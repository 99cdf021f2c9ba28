package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	EventSub EventSubConfig `yaml:"eventsub"`
	Helix    HelixConfig    `yaml:"helix"`
	Overlay  OverlayConfig  `yaml:"overlay"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

type EventSubConfig struct {
	URL               string        `yaml:"url"`
	BroadcasterUserID string        `yaml:"broadcaster_user_id"`
	ResetDelay        time.Duration `yaml:"reset_delay"`
}

type HelixConfig struct {
	BaseURL        string        `yaml:"base_url"`
	ClientID       string        `yaml:"client_id"`
	Timeout        time.Duration `yaml:"timeout"`
	RequestsPerSec int           `yaml:"requests_per_sec"`
}

type OverlayConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	StaticDir        string        `yaml:"static_dir"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		EventSub: EventSubConfig{
			URL:        "wss://eventsub.wss.twitch.tv/ws",
			ResetDelay: 30 * time.Second,
		},
		Helix: HelixConfig{
			BaseURL:        "https://api.twitch.tv/helix",
			Timeout:        30 * time.Second,
			RequestsPerSec: 5,
		},
		Overlay: OverlayConfig{
			SnapshotInterval: 5 * time.Second,
		},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields a live (non-mock) run cannot do without.
func (c *Config) Validate() error {
	if c.EventSub.BroadcasterUserID == "" {
		return fmt.Errorf("eventsub.broadcaster_user_id is required")
	}
	if c.Helix.ClientID == "" {
		return fmt.Errorf("helix.client_id is required")
	}
	return nil
}
