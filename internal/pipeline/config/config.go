package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/anthanhphan/gosdk/conflux"
	"github.com/anthanhphan/gosdk/logger"
)

// Config holds pipeline service configuration
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	App        AppConfig        `json:"app" yaml:"app"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Metadata   MetadataConfig   `json:"metadata" yaml:"metadata"`
	Screener   ScreenerConfig   `json:"screener" yaml:"screener"`
	Encryption EncryptionConfig `json:"encryption" yaml:"encryption"`
	Logger     logger.Config    `json:"logger" yaml:"logger"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type AppConfig struct {
	MaxFileSize      int64 `json:"max_file_size" yaml:"max_file_size"`
	RetentionMinutes int   `json:"retention_minutes" yaml:"retention_minutes"`
	ChunkSize        int   `json:"chunk_size" yaml:"chunk_size"`
	SweepIntervalSec int   `json:"sweep_interval_sec" yaml:"sweep_interval_sec"`
	SweepWorkers     int   `json:"sweep_workers" yaml:"sweep_workers"`
}

type StorageConfig struct {
	Root       string `json:"root" yaml:"root"`
	StagingDir string `json:"staging_dir" yaml:"staging_dir"`
	WipePasses int    `json:"wipe_passes" yaml:"wipe_passes"`
}

type MetadataConfig struct {
	// Backend selects the record store: "memory", "redis", or "bolt".
	Backend  string      `json:"backend" yaml:"backend"`
	BoltPath string      `json:"bolt_path" yaml:"bolt_path"`
	Redis    RedisConfig `json:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type ScreenerConfig struct {
	// Backend selects the scanner: "heuristic" or "clamav".
	Backend string       `json:"backend" yaml:"backend"`
	ClamAV  ClamAVConfig `json:"clamav" yaml:"clamav"`
}

type ClamAVConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type EncryptionConfig struct {
	// MasterKeyHex is the hex-encoded 32-byte master key. The per-file
	// encryption keys are derived from it.
	MasterKeyHex string `json:"master_key_hex" yaml:"master_key_hex"`
}

// MasterKey decodes and validates the configured master key.
func (c *EncryptionConfig) MasterKey() ([]byte, error) {
	key, err := hex.DecodeString(c.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("config: master key is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("config: master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		App: AppConfig{
			MaxFileSize:      10 * 1024 * 1024, // 10MB
			RetentionMinutes: 30,
			ChunkSize:        64 * 1024, // 64KB
			SweepIntervalSec: 60,
			SweepWorkers:     4,
		},
		Storage: StorageConfig{
			Root:       "data/blobs",
			WipePasses: 3,
		},
		Metadata: MetadataConfig{
			Backend:  "memory",
			BoltPath: "data/meta/records.db",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Screener: ScreenerConfig{
			Backend: "heuristic",
			ClamAV: ClamAVConfig{
				Addr:      "localhost:3310",
				TimeoutMS: 30000,
			},
		},
		Logger: logger.Config{
			LogLevel:    logger.LevelInfo,
			LogEncoding: logger.EncodingJSON,
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	configPath := path
	if configPath == "" {
		env := os.Getenv("ENV")
		if env == "" {
			env = "local"
		}
		configPath = filepath.Join("internal", "pipeline", "config", env+".yaml")
	}

	cfg := DefaultConfig()

	parsedCfg, err := conflux.ParseConfig(configPath, cfg)
	if err != nil {
		log.Printf("Config file not found or failed to parse, using defaults if file not specified. Path: %s, Error: %v", configPath, err)
		if path != "" {
			return nil, err
		}
		return cfg, nil
	}

	return parsedCfg, nil
}

// MustLoad loads configuration or exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
