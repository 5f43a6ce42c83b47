// Package config loads the kiosk/operator CLI configuration: built-in
// defaults, then an optional TOML file, then command-line overrides applied
// by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Server describes the PhotoDrop backend.
type Server struct {
	URL            string `toml:"url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Camera selects and tunes the capture device.
type Camera struct {
	// Device is a V4L2 path such as /dev/video0; empty picks the first
	// environment-facing device.
	Device string `toml:"device"`
	// Facing is the preferred orientation: environment or user.
	Facing string `toml:"facing"`
	// ImagePath serves a still image instead of a live camera.
	ImagePath string `toml:"image_path"`
	LockDir   string `toml:"lock_dir"`
	WatchUdev bool   `toml:"watch_udev"`
}

// Draft holds the text-generation service settings.
type Draft struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Journal is the kiosk-local log of accepted submissions.
type Journal struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all client configuration.
type Config struct {
	Server  Server  `toml:"server"`
	Camera  Camera  `toml:"camera"`
	Draft   Draft   `toml:"draft"`
	Journal Journal `toml:"journal"`
}

const defaultConfigPath = "~/.config/photodrop/config.toml"

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: Server{
			URL:            "http://127.0.0.1:8080",
			TimeoutSeconds: 30,
		},
		Camera: Camera{
			Facing:    "environment",
			LockDir:   filepath.Join(os.TempDir(), "photodrop"),
			WatchUdev: true,
		},
		Draft: Draft{
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:          "gemini-2.5-flash",
			TimeoutSeconds: 60,
		},
		Journal: Journal{
			Enabled: true,
			Path:    "~/.local/share/photodrop/journal.db",
		},
	}
}

// DefaultConfigPath returns the absolute path of the default config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads path (or the default location when empty) over the defaults.
// A missing file is not an error; exists reports whether one was read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Normalize trims values, expands paths and fills the draft API key from
// the environment when the file leaves it empty.
func (c *Config) Normalize() error {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	c.Draft.BaseURL = strings.TrimRight(strings.TrimSpace(c.Draft.BaseURL), "/")
	c.Draft.Model = strings.TrimSpace(c.Draft.Model)
	c.Camera.Facing = strings.ToLower(strings.TrimSpace(c.Camera.Facing))

	if strings.TrimSpace(c.Draft.APIKey) == "" {
		for _, env := range []string{"PHOTODROP_DRAFT_API_KEY", "GEMINI_API_KEY"} {
			if v, ok := os.LookupEnv(env); ok && strings.TrimSpace(v) != "" {
				c.Draft.APIKey = strings.TrimSpace(v)
				break
			}
		}
	}

	var err error
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	if c.Camera.LockDir, err = expandPath(c.Camera.LockDir); err != nil {
		return fmt.Errorf("camera.lock_dir: %w", err)
	}
	if c.Camera.ImagePath, err = expandPath(c.Camera.ImagePath); err != nil {
		return fmt.Errorf("camera.image_path: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("server.url: %q is not an http(s) URL", c.Server.URL)
	}
	if c.Server.TimeoutSeconds <= 0 {
		return errors.New("server.timeout_seconds must be positive")
	}
	switch c.Camera.Facing {
	case "", "environment", "user":
	default:
		return fmt.Errorf("camera.facing: unknown value %q", c.Camera.Facing)
	}
	if c.Draft.TimeoutSeconds <= 0 {
		return errors.New("draft.timeout_seconds must be positive")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return errors.New("journal.path is required when the journal is enabled")
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %q is a directory", expanded)
	}
	return expanded, true, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes the defaults as TOML to path.
func CreateSample(path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("encode sample config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
