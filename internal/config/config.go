package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30m" parse.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the on-disk server configuration. Every field has a
// working default so a missing file yields a usable localhost setup.
type Config struct {
	Addr       string `yaml:"addr"`
	SocketPath string `yaml:"socket_path"`
	DBPath     string `yaml:"db_path"`
	KeysFile   string `yaml:"keys_file"`
	LogLevel   string `yaml:"log_level"`

	AllowLocalhostWithoutAuth bool `yaml:"allow_localhost_without_auth"`

	Bus   BusConfig   `yaml:"bus"`
	Queue QueueConfig `yaml:"queue"`
}

type BusConfig struct {
	MaxPerSession int      `yaml:"max_per_session"`
	MaxTotal      int      `yaml:"max_total"`
	DefaultTTL    Duration `yaml:"default_ttl"`
	MaxTTL        Duration `yaml:"max_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

type QueueConfig struct {
	Retention     Duration `yaml:"retention"`
	PurgeInterval Duration `yaml:"purge_interval"`
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Addr:                      "127.0.0.1:7600",
		DBPath:                    filepath.Join(home, ".vigil", "data.db"),
		KeysFile:                  "vigil.keys.yaml",
		LogLevel:                  "info",
		AllowLocalhostWithoutAuth: true,
		Bus: BusConfig{
			MaxPerSession: 10,
			MaxTotal:      200,
			DefaultTTL:    Duration(30 * time.Minute),
			MaxTTL:        Duration(24 * time.Hour),
			SweepInterval: Duration(time.Minute),
		},
		Queue: QueueConfig{
			Retention:     Duration(24 * time.Hour),
			PurgeInterval: Duration(time.Hour),
		},
	}
}

// Load reads path over the defaults. A missing file is not an error;
// the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
