package cli

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type keysFile struct {
	DefaultPolicy struct {
		AllowLocalhostWithoutAuth *bool `yaml:"allow_localhost_without_auth"`
	} `yaml:"default_policy"`
	Teams map[string]teamKeys `yaml:"teams"`
}

type teamKeys struct {
	Keys []string `yaml:"keys"`
}

// InitKeysFile appends a freshly generated API key for team to the
// keys file at path, creating the file if needed. Returns the key.
func InitKeysFile(path, team string) (string, error) {
	path = strings.TrimSpace(path)
	team = strings.TrimSpace(team)
	if path == "" {
		return "", fmt.Errorf("keys file path required")
	}
	if team == "" {
		return "", fmt.Errorf("team required")
	}

	cfg, err := loadKeysFile(path)
	if err != nil {
		return "", err
	}
	if cfg.Teams == nil {
		cfg.Teams = make(map[string]teamKeys)
	}
	key, err := generateKey()
	if err != nil {
		return "", err
	}
	tk := cfg.Teams[team]
	tk.Keys = append(tk.Keys, key)
	cfg.Teams[team] = tk
	if cfg.DefaultPolicy.AllowLocalhostWithoutAuth == nil {
		val := true
		cfg.DefaultPolicy.AllowLocalhostWithoutAuth = &val
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return "", fmt.Errorf("marshal keys file: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write keys file: %w", err)
	}
	return key, nil
}

func loadKeysFile(path string) (keysFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return keysFile{}, nil
		}
		return keysFile{}, fmt.Errorf("read keys file: %w", err)
	}
	var cfg keysFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return keysFile{}, fmt.Errorf("parse keys file: %w", err)
	}
	return cfg, nil
}

func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
