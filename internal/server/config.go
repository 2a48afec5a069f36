package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds all dashboard configuration.
type Config struct {
	mu sync.RWMutex

	// Adapter link
	Adapter AdapterConfig `yaml:"adapter" json:"adapter"`

	// Trip logging
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

// AdapterConfig describes the link to the diagnostic adapter. The
// strategy order and PIN list live here; the link state machine only
// sees the bounded candidate list built from them.
type AdapterConfig struct {
	Strategy string   `yaml:"strategy" json:"strategy"`  // "auto", "bridge", "serial" or "sim"
	PortPath string   `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate int      `yaml:"baud_rate" json:"baudRate"` // 38400 for most clones
	PeerAddr string   `yaml:"peer_addr" json:"peerAddr"` // adapter MAC for the bridge strategy
	PINs     []string `yaml:"pins" json:"pins"`          // pairing PINs, tried in order

	PollIntervalMs   int `yaml:"poll_interval_ms" json:"pollIntervalMs"`
	CommandTimeoutMs int `yaml:"command_timeout_ms" json:"commandTimeoutMs"`
	FailureThreshold int `yaml:"failure_threshold" json:"failureThreshold"`
	BackoffMs        int `yaml:"backoff_ms" json:"backoffMs"`
}

type LoggingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between log entries
}

type ServerConfig struct {
	ListenAddr     string `yaml:"listen_addr" json:"listenAddr"`
	PushIntervalMs int    `yaml:"push_interval_ms" json:"pushIntervalMs"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Adapter: AdapterConfig{
			Strategy:         "auto",
			PortPath:         "/dev/ttyUSB0",
			BaudRate:         38400,
			PeerAddr:         "00:1D:A5:68:98:8B",
			PINs:             []string{"1234", "0000"},
			PollIntervalMs:   500,
			CommandTimeoutMs: 2000,
			FailureThreshold: 3,
			BackoffMs:        5000,
		},
		Logging: LoggingConfig{
			Enabled:  false,
			Path:     "/var/log/obdeck",
			Interval: 1000,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			PushIntervalMs: 500,
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Strip surrounding quotes
		val = strings.Trim(val, `"'`)
		// Only set if not already set in real env (real env takes precedence)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: OBD_STRATEGY, OBD_PORT, OBD_BAUD, OBD_PEER, OBD_PINS,
// LISTEN_ADDR, LOG_ENABLED, LOG_PATH, LOG_INTERVAL_MS
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OBD_STRATEGY"); v != "" {
		c.Adapter.Strategy = v
	}
	if v := os.Getenv("OBD_PORT"); v != "" {
		c.Adapter.PortPath = v
	}
	if v := os.Getenv("OBD_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Adapter.BaudRate = n
		}
	}
	if v := os.Getenv("OBD_PEER"); v != "" {
		c.Adapter.PeerAddr = v
	}
	if v := os.Getenv("OBD_PINS"); v != "" {
		var pins []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				pins = append(pins, p)
			}
		}
		if len(pins) > 0 {
			c.Adapter.PINs = pins
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	// Logging
	if v := os.Getenv("LOG_ENABLED"); v != "" {
		c.Logging.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
	if v := os.Getenv("LOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Logging.Interval = n
		}
	}
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/obdeck/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port path, PIN list, logging).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Marshal current config to a generic map
	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	// Unmarshal incoming partial update to a map
	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	// Deep merge patch into base
	deepMerge(base, patch)

	// Marshal merged result and unmarshal back into the config struct
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
