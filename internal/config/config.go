// Package config loads the gaswatch configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/rubiojr/gaswatch/pkg/api"
)

const (
	DefaultConfigPath = "~/.config/gaswatch/config.toml"
	DefaultDBPath     = "~/.local/share/gaswatch/gaswatch.db"
	DefaultNominatim  = "https://nominatim.openstreetmap.org/"

	defaultPageSize   = 10
	defaultRadius     = 5.0
	defaultCatalogTTL = 12 * time.Hour
)

// Config holds every setting the client needs. RateLimit is in requests
// per second; zero disables client throttling.
type Config struct {
	APIURL     string
	Token      string
	Timeout    time.Duration
	DBPath     string
	Nominatim  string
	PageSize   int
	Radius     float64
	Sort       api.SortOrder
	Product    string
	CatalogTTL time.Duration
	RateLimit  float64
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIURL:     api.DefaultBaseURL,
		Timeout:    api.DefaultTimeout,
		DBPath:     mustExpand(DefaultDBPath),
		Nominatim:  DefaultNominatim,
		PageSize:   defaultPageSize,
		Radius:     defaultRadius,
		Sort:       api.SortByDistance,
		CatalogTTL: defaultCatalogTTL,
	}
}

type fileConfig struct {
	APIURL     string  `toml:"api_url"`
	Token      string  `toml:"token"`
	Timeout    string  `toml:"timeout"`
	DBPath     string  `toml:"db_path"`
	Nominatim  string  `toml:"nominatim_server"`
	PageSize   int     `toml:"page_size"`
	Radius     float64 `toml:"radius_km"`
	Sort       string  `toml:"sort"`
	Product    string  `toml:"product"`
	CatalogTTL string  `toml:"catalog_ttl"`
	RateLimit  float64 `toml:"rate_limit"`
}

// Load reads the config file at path, or DefaultConfigPath when path is
// empty. A missing file yields the defaults; empty values in the file keep
// their defaults too.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	resolved, err := expandPath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("error reading config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	cfg.Token = strings.TrimSpace(raw.Token)
	if v := strings.TrimSpace(raw.DBPath); v != "" {
		cfg.DBPath = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.Nominatim); v != "" {
		cfg.Nominatim = v
	}
	if raw.PageSize > 0 {
		cfg.PageSize = raw.PageSize
	}
	if raw.Radius > 0 {
		cfg.Radius = raw.Radius
	}
	if v := strings.TrimSpace(raw.Sort); v != "" {
		sort := api.SortOrder(v)
		if !sort.Valid() {
			return Config{}, fmt.Errorf("invalid sort %q", v)
		}
		cfg.Sort = sort
	}
	cfg.Product = strings.TrimSpace(raw.Product)
	if raw.RateLimit < 0 {
		return Config{}, fmt.Errorf("invalid rate_limit %g", raw.RateLimit)
	}
	cfg.RateLimit = raw.RateLimit

	if cfg.Timeout, err = parseDuration(raw.Timeout, cfg.Timeout); err != nil {
		return Config{}, fmt.Errorf("invalid timeout: %w", err)
	}
	if cfg.CatalogTTL, err = parseDuration(raw.CatalogTTL, cfg.CatalogTTL); err != nil {
		return Config{}, fmt.Errorf("invalid catalog_ttl: %w", err)
	}

	return cfg, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error resolving home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
