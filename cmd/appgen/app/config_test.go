package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// isolate points HOME and the working directory at fresh temp dirs so no
// real .appgen.yaml or .env leaks into a test.
func isolate(t *testing.T) (home, cwd string) {
	t.Helper()
	home = t.TempDir()
	cwd = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("APPGEN_CONFIG", "")
	t.Chdir(cwd)
	return home, cwd
}

// TestLoadConfig verifies the defaults.
func TestLoadConfig(t *testing.T) {
	home, _ := isolate(t)

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Store != store.BackendBbolt {
		t.Errorf("Store = %q, want %q", config.Store, store.BackendBbolt)
	}
	if want := filepath.Join(home, ".appgen", "projects.db"); config.StorePath != want {
		t.Errorf("StorePath = %q, want %q", config.StorePath, want)
	}
	if config.ServerURL != constants.DefaultServerURL {
		t.Errorf("ServerURL = %q, want %q", config.ServerURL, constants.DefaultServerURL)
	}
	if config.Server.Port != constants.DefaultPort {
		t.Errorf("Port = %d, want %d", config.Server.Port, constants.DefaultPort)
	}
	if config.Server.PingPeriod <= 0 || config.Server.PingPeriod >= config.Server.PongWait {
		t.Errorf("ping period %s must be positive and below pong wait %s", config.Server.PingPeriod, config.Server.PongWait)
	}
	if config.LogFormat != "auto" {
		t.Errorf("LogFormat = %q, want auto", config.LogFormat)
	}
	if config.ConfigFile != "" {
		t.Errorf("ConfigFile = %q, want none", config.ConfigFile)
	}
}

// TestConfig_EnvironmentVariables verifies APPGEN_* loading.
func TestConfig_EnvironmentVariables(t *testing.T) {
	isolate(t)
	t.Setenv("APPGEN_STORE", "memory")
	t.Setenv("APPGEN_PORT", "9001")
	t.Setenv("APPGEN_CACHE_TTL", "30s")
	t.Setenv("APPGEN_API_KEY", "secret")
	t.Setenv("APPGEN_OUTPUT", "json")
	t.Setenv("APPGEN_VERBOSE", "true")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Store != store.BackendMemory {
		t.Errorf("Store = %q, want memory", config.Store)
	}
	if config.Server.Port != 9001 {
		t.Errorf("Port = %d, want 9001", config.Server.Port)
	}
	if config.Server.CacheTTL != 30*time.Second {
		t.Errorf("CacheTTL = %s, want 30s", config.Server.CacheTTL)
	}
	if config.APIKey != "secret" || config.Server.APIKey != "secret" {
		t.Errorf("API keys = %q/%q, want secret", config.APIKey, config.Server.APIKey)
	}
	if config.Output != "json" {
		t.Errorf("Output = %q, want json", config.Output)
	}
	if !config.Verbose {
		t.Error("APPGEN_VERBOSE not loaded")
	}
}

// TestConfig_File verifies an explicit config file.
func TestConfig_File(t *testing.T) {
	_, cwd := isolate(t)
	path := filepath.Join(cwd, "custom.yaml")
	content := `store: memory
port: 9300
ping_period: 5s
pong_wait: 20s
cors_origins:
  - https://a.example.com
  - https://b.example.com
pipeline_file: ~/pipeline.yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", config.ConfigFile, path)
	}
	if config.Server.Port != 9300 {
		t.Errorf("Port = %d, want 9300", config.Server.Port)
	}
	if config.Server.PingPeriod != 5*time.Second || config.Server.PongWait != 20*time.Second {
		t.Errorf("keepalive = %s/%s, want 5s/20s", config.Server.PingPeriod, config.Server.PongWait)
	}
	if len(config.Server.CORSOrigins) != 2 || config.Server.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("CORSOrigins = %v", config.Server.CORSOrigins)
	}
	if filepath.Base(config.PipelineFile) != "pipeline.yaml" || config.PipelineFile[0] == '~' {
		t.Errorf("PipelineFile = %q, want expanded path", config.PipelineFile)
	}
}

// TestConfig_DiscoveredFile verifies .appgen.yaml in the working directory.
func TestConfig_DiscoveredFile(t *testing.T) {
	_, cwd := isolate(t)
	if err := os.WriteFile(filepath.Join(cwd, ".appgen.yaml"), []byte("store: memory\nmax_concurrent_runs: 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config.Server.MaxConcurrentRuns != 3 {
		t.Errorf("MaxConcurrentRuns = %d, want 3", config.Server.MaxConcurrentRuns)
	}
	if config.ConfigFile == "" {
		t.Error("ConfigFile not recorded")
	}
}

// TestConfig_DotEnv verifies .env loading from the working directory.
func TestConfig_DotEnv(t *testing.T) {
	_, cwd := isolate(t)
	const key = "APPGEN_WORKSPACE_DIR"
	if _, set := os.LookupEnv(key); set {
		t.Skipf("%s already set", key)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if err := os.WriteFile(filepath.Join(cwd, ".env"), []byte(key+"=/tmp/appgen-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if config.WorkspaceDir != "/tmp/appgen-dotenv" {
		t.Errorf("WorkspaceDir = %q, want /tmp/appgen-dotenv", config.WorkspaceDir)
	}
}

// TestLoadConfig_Errors verifies invalid sources are rejected.
func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, cwd := isolate(t)
		if _, err := LoadConfig(filepath.Join(cwd, "nope.yaml")); err == nil {
			t.Error("expected error for a missing config file")
		}
	})

	t.Run("unknown store", func(t *testing.T) {
		isolate(t)
		t.Setenv("APPGEN_STORE", "redis")
		_, err := LoadConfig("")
		if !errors.IsValidationError(err) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("ping not below pong", func(t *testing.T) {
		isolate(t)
		t.Setenv("APPGEN_PING_PERIOD", "60s")
		t.Setenv("APPGEN_PONG_WAIT", "30s")
		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error when ping period exceeds pong wait")
		}
	})
}

// TestConfig_Validate covers the individual rules.
func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Store: store.BackendBbolt, StorePath: "/tmp/p.db"}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid bbolt", func(*Config) {}, false},
		{"valid memory without path", func(c *Config) { c.Store = store.BackendMemory; c.StorePath = "" }, false},
		{"bbolt without path", func(c *Config) { c.StorePath = "" }, true},
		{"unknown store", func(c *Config) { c.Store = "sqlite" }, true},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"ping equals pong", func(c *Config) { c.Server.PingPeriod = time.Second; c.Server.PongWait = time.Second }, true},
		{"ping below pong", func(c *Config) { c.Server.PingPeriod = time.Second; c.Server.PongWait = 2 * time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestConfig_UpdateFromFlags verifies flags take precedence.
func TestConfig_UpdateFromFlags(t *testing.T) {
	config := &Config{
		Verbose:   true,
		Output:    "table",
		LogLevel:  "info",
		ServerURL: "http://localhost:8000",
	}

	config.UpdateFromFlags(false, true, false, "json", "", "http://remote:9000", "k")

	if !config.Verbose {
		t.Error("Verbose should stay on when the flag is unset")
	}
	if !config.Quiet {
		t.Error("Quiet not set from flag")
	}
	if config.Output != "json" {
		t.Errorf("Output = %q, want json", config.Output)
	}
	if config.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info kept", config.LogLevel)
	}
	if config.ServerURL != "http://remote:9000" {
		t.Errorf("ServerURL = %q", config.ServerURL)
	}
	if config.APIKey != "k" || config.Server.APIKey != "k" {
		t.Errorf("API keys = %q/%q, want k", config.APIKey, config.Server.APIKey)
	}
}

// TestExpandPath verifies home expansion.
func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/data/p.db", filepath.Join(home, "data", "p.db")},
		{"/abs/p.db", "/abs/p.db"},
		{"rel/p.db", "rel/p.db"},
		{"~other/p.db", "~other/p.db"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := expandPath(tt.in); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
