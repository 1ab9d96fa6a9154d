// Package config resolves passvault settings from defaults, the
// config.yaml file in the data directory, the .env file next to it,
// PASSVAULT_* environment variables and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/passvault/pkg/crypto"
)

// FileName is the config file looked up inside the data directory.
const FileName = "config.yaml"

// EnvFileName is the dotenv file looked up inside the data directory.
const EnvFileName = ".env"

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "PASSVAULT_"

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Session key stores.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

var (
	ErrInvalid         = errors.New("config: invalid configuration")
	ErrInsecureFile    = errors.New("config: config file has insecure permissions")
	ErrSymlink         = errors.New("config: config file is a symlink")
	ErrNotRegular      = errors.New("config: config file is not a regular file")
	ErrNotOwnedByUser  = errors.New("config: config file not owned by current user")
	ErrUnsupportedFile = errors.New("config: unsupported config file version")
)

// Config holds resolved settings.
type Config struct {
	Version       int    `yaml:"version"`
	DataDir       string `yaml:"-" env:"DATA_DIR"`
	Backend       string `yaml:"backend" env:"BACKEND"`
	SessionStore  string `yaml:"session_store" env:"SESSION_STORE"`
	RedisURL      string `yaml:"redis_url" env:"REDIS_URL"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`
	Audit         bool   `yaml:"audit" env:"AUDIT"`
	KDFIterations int    `yaml:"kdf_iterations" env:"KDF_ITERATIONS"`
}

// Default returns the built-in settings for dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Version:       1,
		DataDir:       dataDir,
		Backend:       BackendSQLite,
		SessionStore:  SessionMemory,
		LogLevel:      "warn",
		Audit:         true,
		KDFIterations: crypto.DefaultIterations,
	}
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// DataDir overrides the data directory (normally from --data-dir).
	DataDir string
	// EnvFile is the dotenv file to read; empty means <data_dir>/.env. A
	// missing file is not an error. It is held to the same ownership and
	// permission rules as config.yaml.
	EnvFile string
}

// Load resolves configuration. Flags are applied by the caller afterwards,
// followed by Validate.
func Load(opts LoadOptions) (*Config, error) {
	dataDir, err := resolveDataDir(opts.DataDir)
	if err != nil {
		return nil, err
	}
	cfg := Default(dataDir)

	if err := cfg.readFile(filepath.Join(dataDir, FileName)); err != nil {
		return nil, err
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = filepath.Join(dataDir, EnvFileName)
	}
	environ, err := loadEnvironment(envFile)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	// The data directory chosen on the command line wins over the environment.
	cfg.DataDir = dataDir
	return cfg, nil
}

// loadEnvironment returns the process environment merged with the dotenv
// file at path. Process variables win over the file.
func loadEnvironment(path string) (map[string]string, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}

	f, err := openSecureFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return environ, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer f.Close()

	vars, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	for k, v := range vars {
		if _, ok := environ[k]; !ok {
			environ[k] = v
		}
	}
	return environ, nil
}

// openSecureFile opens path for reading after rejecting symlinks,
// non-regular files and files readable by others.
func openSecureFile(path string) (*os.File, error) {
	f, err := openConfigFile(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotRegular
	}
	if err := checkFileSecurity(info); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func resolveDataDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if dir := os.Getenv(EnvPrefix + "DATA_DIR"); dir != "" {
		return filepath.Abs(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".passvault"), nil
}

// readFile merges the YAML file at path into c. A missing file is fine;
// an existing one must be a regular 0600 file owned by the current user.
func (c *Config) readFile(path string) error {
	f, err := openSecureFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("config: failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
	}
	if c.Version != 1 {
		return fmt.Errorf("%w: %d", ErrUnsupportedFile, c.Version)
	}
	return nil
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend)
	}
	switch c.SessionStore {
	case SessionMemory:
	case SessionRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: session_store redis requires redis_url", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown session_store %q", ErrInvalid, c.SessionStore)
	}
	if c.KDFIterations < crypto.MinIterations {
		return fmt.Errorf("%w: kdf_iterations must be at least %d", ErrInvalid, crypto.MinIterations)
	}
	return nil
}

// Save writes c to <data_dir>/config.yaml with mode 0600.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("config: failed to create data directory: %w", err)
	}
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: failed to encode: %w", err)
	}
	path := filepath.Join(c.DataDir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("config: failed to write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("config: failed to write: %w", err)
	}
	return nil
}
