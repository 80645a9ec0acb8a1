// Package config loads drive profiles from the configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

//go:embed dumpfloppy.toml
var defaultConfigData []byte

// Selected drive profile and the file it was loaded from.
var (
	Path  string
	Drive Profile
)

// Config represents the entire TOML configuration structure
type Config struct {
	Default string    `toml:"default"`
	Drive   []Profile `toml:"drive"`
}

// Profile describes a floppy drive and the adapter it is attached to.
type Profile struct {
	Name        string `toml:"name"`
	Adapter     string `toml:"adapter"`
	Unit        int    `toml:"unit"`
	Port        string `toml:"port"`
	Firmware    string `toml:"firmware"`
	Tracks      int    `toml:"tracks"` // 0 means ask the drive
	Retries     int    `toml:"retries"`
	AlwaysProbe bool   `toml:"always_probe"`
}

// configPath determines the config file path based on the operating system
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "dumpfloppy")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".dumpfloppy"), nil
}

// Initialize loads the configuration file and selects its default profile.
// If the file doesn't exist, it is created from the embedded default.
func Initialize() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	return Load(path)
}

// Load reads the configuration from the given file, creating it from
// the embedded default if missing, and selects its default profile.
func Load(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0644); err != nil {
			return fmt.Errorf("failed to create default config file at %s: %w", path, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	profile, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	Path = path
	Drive = profile
	return nil
}

// Parse decodes a configuration and returns its default profile.
func Parse(data []byte) (Profile, error) {
	var conf Config
	if _, err := toml.Decode(string(data), &conf); err != nil {
		return Profile{}, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	if conf.Default == "" {
		return Profile{}, errors.New("`default` key is missing or empty in config")
	}
	var found *Profile
	for i := range conf.Drive {
		if conf.Drive[i].Name == conf.Default {
			found = &conf.Drive[i]
			break
		}
	}
	if found == nil {
		return Profile{}, fmt.Errorf("default drive %q not found in drive array", conf.Default)
	}

	if found.Adapter == "" {
		return Profile{}, fmt.Errorf("drive %q has no adapter", found.Name)
	}
	if found.Unit < 0 || found.Unit > 3 {
		return Profile{}, fmt.Errorf("drive %q has invalid unit: %d (must be 0 to 3)", found.Name, found.Unit)
	}
	if found.Tracks < 0 || found.Tracks > 256 {
		return Profile{}, fmt.Errorf("drive %q has invalid tracks: %d (must be 0 to 256)", found.Name, found.Tracks)
	}
	if found.Retries < 0 {
		return Profile{}, fmt.Errorf("drive %q has invalid retries: %d (must not be negative)", found.Name, found.Retries)
	}
	return *found, nil
}
