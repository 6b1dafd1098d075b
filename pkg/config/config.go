// Package config loads a clipbridge device's configuration from a YAML
// file on disk, applying defaults and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	envDataDir    = "CLIPBRIDGE_DATA_DIR"
	envCacheDir   = "CLIPBRIDGE_CACHE_DIR"
	envDeviceName = "CLIPBRIDGE_DEVICE_NAME"
	envAccountUID = "CLIPBRIDGE_ACCOUNT_UID"
	envAccountTag = "CLIPBRIDGE_ACCOUNT_TAG"
	envListenAddr = "CLIPBRIDGE_LISTEN_ADDR"

	defaultMaxHistoryItems = 500
	defaultMaxCASBytes     = 4 << 30 // 4 GiB
)

// Load reads path (if it exists), applies defaults for anything unset,
// then applies environment variable overrides, and returns the
// resulting types.Config. A missing file is not an error: a fresh
// device starts from pure defaults and env overrides.
func Load(path string) (types.Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return types.Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return types.Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	fillDerived(&cfg)

	if cfg.AccountUID == "" {
		return types.Config{}, fmt.Errorf("config: account_uid is required (set it in %s or via %s)", path, envAccountUID)
	}

	return cfg, nil
}

func defaults() types.Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".clipbridge")

	return types.Config{
		DeviceID:   uuid.NewString(),
		DeviceName: defaultDeviceName(),
		DataDir:    base,
		SizeLimits: types.DefaultSizeLimits(),
		GC: types.GCLimits{
			MaxHistoryItems: defaultMaxHistoryItems,
			MaxCASBytes:     defaultMaxCASBytes,
		},
		GlobalPolicy: types.PolicyAllowAll,
		ListenAddr:   "0.0.0.0:0",
	}
}

func defaultDeviceName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "clipbridge-device"
}

func applyEnvOverrides(cfg *types.Config) {
	if v := os.Getenv(envDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(envCacheDir); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv(envDeviceName); v != "" {
		cfg.DeviceName = v
	}
	if v := os.Getenv(envAccountUID); v != "" {
		cfg.AccountUID = v
	}
	if v := os.Getenv(envAccountTag); v != "" {
		cfg.AccountTag = v
	}
	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
}

// fillDerived sets CacheDir, ControlSocketPath and EventsSocketPath from
// DataDir when they are unset. It runs after the file and env overrides,
// so the derived paths follow the final DataDir.
func fillDerived(cfg *types.Config) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataDir, "cache")
	}
	if cfg.ControlSocketPath == "" {
		cfg.ControlSocketPath = filepath.Join(cfg.DataDir, "control.sock")
	}
	if cfg.EventsSocketPath == "" {
		cfg.EventsSocketPath = filepath.Join(cfg.DataDir, "events.sock")
	}
}
