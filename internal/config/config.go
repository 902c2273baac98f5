// Package config centralizes all application configuration into typed
// structs. Defaults cover local development; the handful of deployment
// settings (port, Mongo, Redis) are overridable from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server ServerConfig
	Map    MapConfig
	Auth   AuthConfig
	Mongo  MongoConfig
	Redis  RedisConfig
	Prefs  PrefsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MapConfig controls viewport behavior: the fallback camera, how long a
// device location fix stays fresh, how long camera changes must quiesce
// before a re-query, and the radius used before the widget reports bounds.
type MapConfig struct {
	DefaultCenterLat    float64
	DefaultCenterLng    float64
	DefaultZoom         int
	LocationFixMaxAge   time.Duration
	DebounceWindow      time.Duration
	DefaultRadiusMeters float64
}

// AuthConfig controls phone verification.
type AuthConfig struct {
	ChallengeTTL time.Duration
}

// MongoConfig selects the remote record store. An empty URI keeps the
// in-memory store.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig selects the remote challenge store. An empty address keeps
// the in-memory store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PrefsConfig locates the persisted preference file. Empty means the
// default path under the user config directory.
type PrefsConfig struct {
	Path string
}

// NewDefaultConfig returns a Config populated with sensible defaults. The
// fallback center is downtown Sharjah, where the service launched.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Map: MapConfig{
			DefaultCenterLat:    25.3132839,
			DefaultCenterLng:    55.3719379,
			DefaultZoom:         15,
			LocationFixMaxAge:   4 * time.Hour,
			DebounceWindow:      500 * time.Millisecond,
			DefaultRadiusMeters: 5000,
		},
		Auth: AuthConfig{
			ChallengeTTL: 5 * time.Minute,
		},
		Mongo: MongoConfig{
			Database: "aidmap",
		},
	}
}

// FromEnv layers environment overrides onto the defaults.
func FromEnv() *Config {
	cfg := NewDefaultConfig()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = ":" + port
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if db := os.Getenv("MONGO_DB"); db != "" {
		cfg.Mongo.Database = db
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = n
		}
	}
	if path := os.Getenv("PREFS_PATH"); path != "" {
		cfg.Prefs.Path = path
	}
	return cfg
}
