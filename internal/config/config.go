package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for counseld.
type Config struct {
	InstanceID string           `toml:"instance_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Database   DatabaseConfig   `toml:"database"`
	Backup     BackupConfig     `toml:"backup"`
	Vault      VaultConfig      `toml:"vault"`
	Encryption EncryptionConfig `toml:"encryption"`
	List       ListConfig       `toml:"list"`
}

// DatabaseConfig selects the storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" (default) or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// BackupConfig holds the scheduler settings. Durations are in seconds so
// the TOML stays plain integers.
type BackupConfig struct {
	Dir             string `toml:"dir"`
	Prefix          string `toml:"prefix"`
	QuietPeriodSecs int    `toml:"quiet_period_secs"`
	TickSecs        int    `toml:"tick_secs"`
	GraceSecs       int    `toml:"grace_secs"`
	RetentionDays   int    `toml:"retention_days"`
	MaxArtifacts    int    `toml:"max_artifacts"`
}

func (b BackupConfig) QuietPeriod() time.Duration { return time.Duration(b.QuietPeriodSecs) * time.Second }
func (b BackupConfig) Tick() time.Duration        { return time.Duration(b.TickSecs) * time.Second }
func (b BackupConfig) Grace() time.Duration       { return time.Duration(b.GraceSecs) * time.Second }

// VaultConfig represents configuration for an off-host artifact store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
// An empty Type disables the vault; snapshots then stay local only.
type VaultConfig struct {
	Type string `toml:"type"` // "", "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt vault
// artifacts. An empty Type disables encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "" (none) or "age"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// ListConfig holds presentation defaults for the request list.
type ListConfig struct {
	PerPage int `toml:"per_page"`
}

// NewConfig creates a Config with the provided values and default paths.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "consulting.db"),
		},
		Backup: BackupConfig{
			Dir:             filepath.Join(baseDir, "backups"),
			Prefix:          "consulting",
			QuietPeriodSecs: 300,
			TickSecs:        60,
			GraceSecs:       30,
			RetentionDays:   7,
			MaxArtifacts:    64,
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "counseld.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "counseld.key"),
		},
		List: ListConfig{PerPage: 8},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
