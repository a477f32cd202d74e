package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

const (
	envDataDir = "LSMKV_DATA_DIR"
	envPort    = "LSMKV_PORT"
)

// Config - корневая структура конфигурации приложения
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Server ServerConfig `yaml:"http-server"`
	Engine EngineConfig `yaml:"engine"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig is fixed for the lifetime of a store.
type EngineConfig struct {
	// DataDir holds the sst_<N>.txt files; created if absent.
	DataDir string `yaml:"data_dir"`
	// MemtableMaxSize is the number of distinct keys that triggers a flush.
	// Values <= 0 are treated as 1.
	MemtableMaxSize int `yaml:"memtable_max_size"`
	// CompactionThreshold is the number of live SSTables that triggers a
	// compaction. 0 disables compaction.
	CompactionThreshold int `yaml:"compaction_threshold"`
	// BackgroundCompaction runs compaction checks on a worker goroutine
	// instead of inline with the flush that triggered them.
	BackgroundCompaction bool `yaml:"background_compaction"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              5000,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Engine: EngineConfig{
			DataDir:             "data",
			MemtableMaxSize:     4,
			CompactionThreshold: 4,
		},
	}
}

// Load reads a YAML file on top of Default. A missing file is not an error:
// the defaults are returned. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Info("config file not found, using default config", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if dir := os.Getenv(envDataDir); dir != "" {
		c.Engine.DataDir = dir
	}
	if raw := os.Getenv(envPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s %q", envPort, raw)
		}
		c.Server.Port = port
	}

	return nil
}

// Addr is the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
