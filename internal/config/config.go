// Package config loads server settings from the environment, optionally
// seeded from a dotenv file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every tunable the server binaries need.
type Config struct {
	ListenAddr string
	AdminAddr  string

	StorageDriver string
	SQLitePath    string
	PostgresDSN   string

	BlobDriver     string
	BlobFSRoot     string
	S3Region       string
	S3Bucket       string
	S3Endpoint     string
	S3AccessKeyID  string
	S3SecretKey    string
	S3SessionToken string
	S3UsePathStyle bool

	SweepInterval time.Duration
	ReadTimeout   time.Duration
	IdleTimeout   time.Duration
	MaxFrameBytes int

	SeedDemo bool
	TraceLog string
}

// Load reads configuration from the environment. When envFile names an
// existing dotenv file it is loaded first; variables already set in the
// environment win over file values.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	cfg := Config{
		ListenAddr:     getenv("PHARMACORE_LISTEN_ADDR", ":7430"),
		AdminAddr:      getenv("PHARMACORE_ADMIN_ADDR", ":7431"),
		StorageDriver:  getenv("PHARMACORE_STORAGE_DRIVER", "sqlite"),
		SQLitePath:     getenv("PHARMACORE_SQLITE_PATH", "pharmacore.db"),
		PostgresDSN:    os.Getenv("PHARMACORE_POSTGRES_DSN"),
		BlobDriver:     getenv("PHARMACORE_BLOB_DRIVER", "fs"),
		BlobFSRoot:     getenv("PHARMACORE_BLOB_FS_ROOT", "./prescription-images"),
		S3Region:       os.Getenv("PHARMACORE_S3_REGION"),
		S3Bucket:       os.Getenv("PHARMACORE_S3_BUCKET"),
		S3Endpoint:     os.Getenv("PHARMACORE_S3_ENDPOINT"),
		S3AccessKeyID:  os.Getenv("PHARMACORE_S3_ACCESS_KEY_ID"),
		S3SecretKey:    os.Getenv("PHARMACORE_S3_SECRET_ACCESS_KEY"),
		S3SessionToken: os.Getenv("PHARMACORE_S3_SESSION_TOKEN"),
		TraceLog:       os.Getenv("PHARMACORE_TRACE_LOG"),
	}

	var err error
	if cfg.S3UsePathStyle, err = getbool("PHARMACORE_S3_PATH_STYLE", false); err != nil {
		return Config{}, err
	}
	if cfg.SeedDemo, err = getbool("PHARMACORE_SEED_DEMO", false); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = getduration("PHARMACORE_SWEEP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ReadTimeout, err = getduration("PHARMACORE_READ_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = getduration("PHARMACORE_IDLE_TIMEOUT", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.MaxFrameBytes, err = getint("PHARMACORE_MAX_FRAME_BYTES", 8<<20); err != nil {
		return Config{}, err
	}
	if cfg.MaxFrameBytes <= 0 {
		return Config{}, fmt.Errorf("PHARMACORE_MAX_FRAME_BYTES must be positive")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
