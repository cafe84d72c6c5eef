package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// CloudflareConfig holds configuration for the optional Cloudflare integration.
type CloudflareConfig struct {
	Enabled    bool   `json:"enabled"`     // Whether Cloudflare integration is enabled
	APIToken   string `json:"api_token"`   // Cloudflare API token for authentication
	ZoneID     string `json:"zone_id"`     // Cloudflare Zone ID
	BaseDomain string `json:"base_domain"` // Base domain for instance subdomains, e.g. "example.com"
}

// Config holds the application configuration.
type Config struct {
	RegistryPath     string           `json:"registry_path"`
	RoutesPath       string           `json:"routes_path"`
	ComposePath      string           `json:"compose_path"`
	DataRoot         string           `json:"data_root"`
	PortRangeStart   int              `json:"port_range_start"`
	PortRangeEnd     int              `json:"port_range_end"`
	DefaultRoutePort int              `json:"default_route_port"`
	ComposeProject   string           `json:"compose_project"`
	ProxyService     string           `json:"proxy_service"`
	BackendImage     string           `json:"backend_image"`
	CommandTimeout   int              `json:"command_timeout"` // seconds, applied to orchestrator calls
	ServerAddress    string           `json:"server_address"`
	Cloudflare       CloudflareConfig `json:"cloudflare"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RegistryPath:     "/var/lib/burrow/registry.yml",
		RoutesPath:       "/etc/nginx/nginx.conf",
		ComposePath:      "/var/lib/burrow/docker-compose.yml",
		DataRoot:         "/var/lib/burrow/data",
		PortRangeStart:   8100,
		PortRangeEnd:     8999,
		DefaultRoutePort: 8090,
		ComposeProject:   "burrow",
		ProxyService:     "proxy",
		BackendImage:     "burrow-backend",
		CommandTimeout:   60,
		ServerAddress:    "localhost",
		Cloudflare: CloudflareConfig{
			Enabled:    false,
			APIToken:   "",
			ZoneID:     "",
			BaseDomain: "",
		},
	}
}

// Timeout returns the orchestrator command timeout as a duration.
func (c Config) Timeout() time.Duration {
	if c.CommandTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.CommandTimeout) * time.Second
}

// LoadConfig loads configuration from a file or environment variables.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	// Load from file if provided
	if configPath != "" {
		if err := loadFromFile(&config, configPath); err != nil {
			return config, err
		}
	}

	// Override with environment variables
	overrideFromEnv(&config)

	if config.PortRangeStart >= config.PortRangeEnd {
		return config, fmt.Errorf("invalid port range %d-%d", config.PortRangeStart, config.PortRangeEnd)
	}

	return config, nil
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(config *Config, path string) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(bytes, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(config *Config) {
	if val := os.Getenv("BURROW_REGISTRY_PATH"); val != "" {
		config.RegistryPath = val
	}

	if val := os.Getenv("BURROW_ROUTES_PATH"); val != "" {
		config.RoutesPath = val
	}

	if val := os.Getenv("BURROW_COMPOSE_PATH"); val != "" {
		config.ComposePath = val
	}

	if val := os.Getenv("BURROW_DATA_ROOT"); val != "" {
		config.DataRoot = val
	}

	if val := os.Getenv("BURROW_PORT_RANGE_START"); val != "" {
		if port, err := parseEnvInt(val); err == nil {
			config.PortRangeStart = port
		}
	}

	if val := os.Getenv("BURROW_PORT_RANGE_END"); val != "" {
		if port, err := parseEnvInt(val); err == nil {
			config.PortRangeEnd = port
		}
	}

	if val := os.Getenv("BURROW_COMPOSE_PROJECT"); val != "" {
		config.ComposeProject = val
	}

	if val := os.Getenv("BURROW_PROXY_SERVICE"); val != "" {
		config.ProxyService = val
	}

	if val := os.Getenv("BURROW_BACKEND_IMAGE"); val != "" {
		config.BackendImage = val
	}

	if val := os.Getenv("BURROW_COMMAND_TIMEOUT"); val != "" {
		if timeout, err := parseEnvInt(val); err == nil {
			config.CommandTimeout = timeout
		}
	}

	if val := os.Getenv("BURROW_SERVER_ADDRESS"); val != "" {
		config.ServerAddress = val
	}

	// Cloudflare settings
	if val := os.Getenv("BURROW_CLOUDFLARE_ENABLED"); val != "" {
		config.Cloudflare.Enabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("BURROW_CLOUDFLARE_API_TOKEN"); val != "" {
		config.Cloudflare.APIToken = val
	}

	if val := os.Getenv("BURROW_CLOUDFLARE_ZONE_ID"); val != "" {
		config.Cloudflare.ZoneID = val
	}

	if val := os.Getenv("BURROW_CLOUDFLARE_BASE_DOMAIN"); val != "" {
		config.Cloudflare.BaseDomain = val
	}
}

// parseEnvInt parses an integer from an environment variable.
func parseEnvInt(val string) (int, error) {
	var result int
	if _, err := fmt.Sscanf(val, "%d", &result); err != nil {
		return 0, err
	}
	return result, nil
}
