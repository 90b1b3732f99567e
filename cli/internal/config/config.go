package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultEndpoint = "http://localhost:18040"
	dirName         = ".leadctl"
	fileName        = "config.yaml"
)

// Config is the on-disk leadctl configuration.
type Config struct {
	Endpoint  string `yaml:"endpoint"`
	Token     string `yaml:"token,omitempty"`
	Output    string `yaml:"output,omitempty"`
	JWTSecret string `yaml:"jwt_secret,omitempty"`
}

// Overrides are values given on the command line. Empty means unset.
type Overrides struct {
	Endpoint string
	Token    string
	Output   string
}

func Default() Config {
	return Config{Endpoint: DefaultEndpoint, Output: "text"}
}

// Path returns ~/.leadctl/config.yaml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName, fileName), nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return cfg, nil
}

func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Resolve layers environment variables and then flags over the file config.
func Resolve(cfg Config, flags Overrides, getenv func(string) string) Config {
	pick := func(current, env, flag string) string {
		if v := strings.TrimSpace(flag); v != "" {
			return v
		}
		if v := strings.TrimSpace(getenv(env)); v != "" {
			return v
		}
		return current
	}
	cfg.Endpoint = strings.TrimRight(pick(cfg.Endpoint, "LEADCTL_ENDPOINT", flags.Endpoint), "/")
	cfg.Token = pick(cfg.Token, "LEADCTL_TOKEN", flags.Token)
	cfg.Output = pick(cfg.Output, "LEADCTL_OUTPUT", flags.Output)
	cfg.JWTSecret = pick(cfg.JWTSecret, "LEADCTL_JWT_SECRET", "")
	if cfg.Output == "" {
		cfg.Output = "text"
	}
	return cfg
}
