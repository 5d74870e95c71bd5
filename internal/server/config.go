package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/psudash/internal/psu"
)

// Config holds all dashboard configuration.
type Config struct {
	mu sync.RWMutex

	// Supply link
	PSU PSUConfig `yaml:"psu" json:"psu"`

	// CSV recording of samples
	Datalog DatalogConfig `yaml:"datalog" json:"datalog"`

	// Application log
	Log LogConfig `yaml:"log" json:"log"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	// Sample fan-out
	Redis RedisConfig `yaml:"redis" json:"redis"`
	MQTT  MQTTConfig  `yaml:"mqtt" json:"mqtt"`

	path string // file path for save/load
}

type PSUConfig struct {
	Type     string  `yaml:"type" json:"type"`          // "serial" or "demo"
	Model    string  `yaml:"model" json:"model"`        // "auto", "BK1685B", "BK1687B", "BK1688B"
	PortPath string  `yaml:"port_path" json:"portPath"` // e.g. /dev/ttyUSB0
	BaudRate int     `yaml:"baud_rate" json:"baudRate"`
	PollHz   int     `yaml:"poll_hz" json:"pollHz"`
	SettleMs int     `yaml:"settle_ms" json:"settleMs"` // pause between command and response read
	LoadOhms float64 `yaml:"load_ohms" json:"loadOhms"` // demo only
}

// Variant resolves the configured model. "auto" (or empty) yields nil,
// meaning the model is detected from the supply.
func (p PSUConfig) Variant() (*psu.Variant, error) {
	if p.Model == "" || strings.EqualFold(p.Model, "auto") {
		return nil, nil
	}
	v, ok := psu.LookupVariant(p.Model)
	if !ok {
		return nil, fmt.Errorf("config: unknown psu model %q", p.Model)
	}
	return v, nil
}

// Settle is the configured write-to-read delay.
func (p PSUConfig) Settle() time.Duration {
	if p.SettleMs <= 0 {
		return psu.WAIT
	}
	return time.Duration(p.SettleMs) * time.Millisecond
}

type DatalogConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval_ms" json:"intervalMs"` // ms between rows
}

type LogConfig struct {
	Level    string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format   string `yaml:"format" json:"format"` // text or json
	Output   string `yaml:"output" json:"output"` // stdout or file
	FilePath string `yaml:"file_path" json:"filePath"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"poolSize"`
	Channel  string `yaml:"channel" json:"channel"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Broker   string `yaml:"broker" json:"broker"` // e.g. tcp://localhost:1883
	ClientID string `yaml:"client_id" json:"clientId"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Topic    string `yaml:"topic" json:"topic"`
	QoS      byte   `yaml:"qos" json:"qos"`
	Retain   bool   `yaml:"retain" json:"retain"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PSU: PSUConfig{
			Type:     "demo",
			Model:    "auto",
			PortPath: "/dev/ttyUSB0",
			BaudRate: psu.BAUD,
			PollHz:   2,
			SettleMs: int(psu.WAIT / time.Millisecond),
			LoadOhms: 10,
		},
		Datalog: DatalogConfig{
			Enabled:  false,
			Path:     "/var/log/psudash",
			Interval: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			Channel:  "psu:samples",
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost:1883",
			ClientID: "psudash",
			Topic:    "psudash",
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
		log.Warnf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// .env next to the config first, then CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

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
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env wins
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func envBool(v string) bool {
	return v == "1" || v == "true" || v == "yes"
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: PSU_TYPE, PSU_MODEL, PSU_PORT, PSU_BAUD, PSU_POLL_HZ,
// PSU_SETTLE_MS, LISTEN_ADDR, LOG_LEVEL, DATALOG_ENABLED, DATALOG_PATH,
// DATALOG_INTERVAL_MS, REDIS_ADDR, MQTT_BROKER
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PSU_TYPE"); v != "" {
		c.PSU.Type = v
	}
	if v := os.Getenv("PSU_MODEL"); v != "" {
		c.PSU.Model = v
	}
	if v := os.Getenv("PSU_PORT"); v != "" {
		c.PSU.PortPath = v
	}
	if v := os.Getenv("PSU_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PSU.BaudRate = n
		}
	}
	if v := os.Getenv("PSU_POLL_HZ"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PSU.PollHz = n
		}
	}
	if v := os.Getenv("PSU_SETTLE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PSU.SettleMs = n
		}
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	// CSV datalog
	if v := os.Getenv("DATALOG_ENABLED"); v != "" {
		c.Datalog.Enabled = envBool(v)
	}
	if v := os.Getenv("DATALOG_PATH"); v != "" {
		c.Datalog.Path = v
	}
	if v := os.Getenv("DATALOG_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Datalog.Interval = n
		}
	}
	// Setting an address turns the publisher on
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
		c.MQTT.Enabled = true
	}
}

// Path is where Save writes.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		c.path = "/etc/psudash/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// Snapshot returns a copy of the PSU and datalog sections for readers that
// must not hold the lock.
func (c *Config) Snapshot() (PSUConfig, DatalogConfig) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.PSU, c.Datalog
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved (e.g. port paths, baud rates, passwords).
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

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
