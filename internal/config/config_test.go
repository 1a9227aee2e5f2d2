package config_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"counseld-go/internal/config"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := config.NewConfig("instance-1", "/data/counseld")

	if cfg.InstanceID != "instance-1" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", cfg.Database.Type)
	}
	if cfg.Database.Path != filepath.Join("/data/counseld", "consulting.db") {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Backup.QuietPeriodSecs != 300 || cfg.Backup.TickSecs != 60 || cfg.Backup.GraceSecs != 30 {
		t.Errorf("backup timings = %d/%d/%d, want 300/60/30",
			cfg.Backup.QuietPeriodSecs, cfg.Backup.TickSecs, cfg.Backup.GraceSecs)
	}
	if cfg.Backup.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Backup.RetentionDays)
	}
	if cfg.List.PerPage != 8 {
		t.Errorf("List.PerPage = %d, want 8", cfg.List.PerPage)
	}
}

func TestBackupConfigDurations(t *testing.T) {
	b := config.BackupConfig{QuietPeriodSecs: 300, TickSecs: 60, GraceSecs: 30}
	if b.QuietPeriod() != 5*time.Minute {
		t.Errorf("QuietPeriod() = %v, want 5m", b.QuietPeriod())
	}
	if b.Tick() != time.Minute {
		t.Errorf("Tick() = %v, want 1m", b.Tick())
	}
	if b.Grace() != 30*time.Second {
		t.Errorf("Grace() = %v, want 30s", b.Grace())
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := config.NewConfig("instance-1", "/data/counseld")
	cfg.Vault = config.VaultConfig{
		Type: "s3", Name: "offsite",
		S3Bucket: "my-bucket", S3Prefix: "counseld/", S3Region: "ap-northeast-2",
	}
	cfg.Encryption.Type = "age"

	m := &config.Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.InstanceID != cfg.InstanceID {
		t.Errorf("InstanceID = %q, want %q", got.InstanceID, cfg.InstanceID)
	}
	if got.Database != cfg.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, cfg.Database)
	}
	if got.Backup != cfg.Backup {
		t.Errorf("Backup = %+v, want %+v", got.Backup, cfg.Backup)
	}
	if got.Vault != cfg.Vault {
		t.Errorf("Vault = %+v, want %+v", got.Vault, cfg.Vault)
	}
	if got.Encryption != cfg.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, cfg.Encryption)
	}
}

func TestReadInvalidTOML(t *testing.T) {
	m := &config.Manager{}
	if _, err := m.Read(bytes.NewBufferString("not [valid toml")); err == nil {
		t.Error("Read() of invalid TOML should fail")
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "counseld.toml")
	cfg := config.NewConfig("instance-1", "/data/counseld")

	if err := config.Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got, err := config.ReadFromFile(path)
	if err != nil {
		t.Fatalf("ReadFromFile() error = %v", err)
	}
	if got.InstanceID != "instance-1" {
		t.Errorf("InstanceID = %q, want instance-1", got.InstanceID)
	}

	// A second init must refuse to clobber the existing file.
	if err := config.Init(path, cfg); err == nil {
		t.Error("Init() over an existing file should fail")
	}
}

func TestReadFromFileMissing(t *testing.T) {
	if _, err := config.ReadFromFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("ReadFromFile() of missing file should fail")
	}
}
