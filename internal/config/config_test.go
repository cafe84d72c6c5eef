package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.RegistryPath != "/var/lib/burrow/registry.yml" {
		t.Errorf("RegistryPath = %q, want /var/lib/burrow/registry.yml", config.RegistryPath)
	}
	if config.PortRangeStart != 8100 || config.PortRangeEnd != 8999 {
		t.Errorf("port range = %d-%d, want 8100-8999", config.PortRangeStart, config.PortRangeEnd)
	}
	if config.DefaultRoutePort != 8090 {
		t.Errorf("DefaultRoutePort = %d, want 8090", config.DefaultRoutePort)
	}
	if config.ProxyService != "proxy" {
		t.Errorf("ProxyService = %q, want proxy", config.ProxyService)
	}
	if config.Cloudflare.Enabled {
		t.Error("Cloudflare should be disabled by default")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"registry_path": "/tmp/test/registry.yml",
		"port_range_start": 9000,
		"port_range_end": 9100,
		"cloudflare": {"enabled": true, "base_domain": "example.com"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.RegistryPath != "/tmp/test/registry.yml" {
		t.Errorf("RegistryPath = %q", config.RegistryPath)
	}
	if config.PortRangeStart != 9000 || config.PortRangeEnd != 9100 {
		t.Errorf("port range = %d-%d, want 9000-9100", config.PortRangeStart, config.PortRangeEnd)
	}
	if !config.Cloudflare.Enabled || config.Cloudflare.BaseDomain != "example.com" {
		t.Errorf("Cloudflare = %+v", config.Cloudflare)
	}
	// Fields not in the file keep their defaults.
	if config.ProxyService != "proxy" {
		t.Errorf("ProxyService = %q, want proxy", config.ProxyService)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("BURROW_REGISTRY_PATH", "/custom/registry.yml")
	t.Setenv("BURROW_PORT_RANGE_START", "9500")
	t.Setenv("BURROW_PORT_RANGE_END", "9600")
	t.Setenv("BURROW_COMMAND_TIMEOUT", "120")
	t.Setenv("BURROW_CLOUDFLARE_ENABLED", "TRUE")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if config.RegistryPath != "/custom/registry.yml" {
		t.Errorf("RegistryPath = %q", config.RegistryPath)
	}
	if config.PortRangeStart != 9500 || config.PortRangeEnd != 9600 {
		t.Errorf("port range = %d-%d, want 9500-9600", config.PortRangeStart, config.PortRangeEnd)
	}
	if config.CommandTimeout != 120 {
		t.Errorf("CommandTimeout = %d, want 120", config.CommandTimeout)
	}
	if !config.Cloudflare.Enabled {
		t.Error("BURROW_CLOUDFLARE_ENABLED=TRUE should enable Cloudflare")
	}
}

func TestLoadConfigInvalidPortRange(t *testing.T) {
	t.Setenv("BURROW_PORT_RANGE_START", "9000")
	t.Setenv("BURROW_PORT_RANGE_END", "8000")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected error for inverted port range")
	}
}

func TestTimeout(t *testing.T) {
	config := Config{CommandTimeout: 30}
	if got := config.Timeout(); got != 30*time.Second {
		t.Errorf("Timeout() = %v, want 30s", got)
	}

	config.CommandTimeout = 0
	if got := config.Timeout(); got != 60*time.Second {
		t.Errorf("Timeout() = %v, want 60s fallback", got)
	}
}
