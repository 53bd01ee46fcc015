// Package config loads bridge settings from a HuJSON file (JSON with
// comments and trailing commas), with environment fallbacks for deployment
// overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

type Config struct {
	Codec            string    `json:"codec"` // "json" or "cbor"
	HeartbeatSeconds int       `json:"heartbeat_seconds"`
	Log              LogConfig `json:"log"`
	WS               WSConfig  `json:"ws"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or console
}

// WSConfig configures the websocket hop for hybrid hosts whose UI process
// can only dial websockets.
type WSConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
	Path       string `json:"path"`
}

func Default() Config {
	return Config{
		Codec:            "cbor",
		HeartbeatSeconds: 30,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		WS: WSConfig{
			Enabled:    false,
			ListenAddr: envOr("PROCBRIDGE_WS_ADDR", "127.0.0.1:0"),
			Path:       "/bridge",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config failed: %w", err)
	}

	std, err := hujson.Standardize(content)
	if err != nil {
		return Config{}, fmt.Errorf("parse config failed: %w", err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config failed: %w", err)
	}

	if cfg.Codec != "json" && cfg.Codec != "cbor" {
		return Config{}, fmt.Errorf("unknown codec %q", cfg.Codec)
	}
	if cfg.HeartbeatSeconds < 0 {
		cfg.HeartbeatSeconds = 0
	}
	if cfg.WS.Path == "" {
		cfg.WS.Path = "/bridge"
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
