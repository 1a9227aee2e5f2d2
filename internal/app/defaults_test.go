package app_test

import (
	"path/filepath"
	"testing"

	"counseld-go/internal/app"
)

func TestGetDefaultsFromEnvironment(t *testing.T) {
	t.Setenv("COUNSELD_CONFIG_PATH", "/etc/counseld/counseld.toml")
	t.Setenv("COUNSELD_HOME", "/var/lib/counseld")

	defaults, err := app.GetDefaults()
	if err != nil {
		t.Fatalf("GetDefaults() error = %v", err)
	}

	if defaults["config_path"] != "/etc/counseld/counseld.toml" {
		t.Errorf("config_path = %q", defaults["config_path"])
	}
	if defaults["base_dir"] != "/var/lib/counseld" {
		t.Errorf("base_dir = %q", defaults["base_dir"])
	}
	if defaults["log_dir"] != filepath.Join("/var/lib/counseld", "log") {
		t.Errorf("log_dir = %q", defaults["log_dir"])
	}
}

func TestGetDefaultsFallBackToHome(t *testing.T) {
	t.Setenv("COUNSELD_CONFIG_PATH", "")
	t.Setenv("COUNSELD_HOME", "")
	t.Setenv("HOME", "/home/counselor")

	defaults, err := app.GetDefaults()
	if err != nil {
		t.Fatalf("GetDefaults() error = %v", err)
	}

	if defaults["config_path"] != "/home/counselor/.config/counseld.toml" {
		t.Errorf("config_path = %q", defaults["config_path"])
	}
	if defaults["base_dir"] != "/home/counselor/.local/share/counseld" {
		t.Errorf("base_dir = %q", defaults["base_dir"])
	}
}
