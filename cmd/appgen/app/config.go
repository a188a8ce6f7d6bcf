package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/appgen/internal/server"
	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// EnvPrefix prefixes every environment variable appgen reads, so the key
// store_path is read from APPGEN_STORE_PATH.
const EnvPrefix = "APPGEN"

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Output  string

	// Config file
	ConfigFile string

	// Client commands
	ServerURL string
	APIKey    string

	// Orchestrator
	PipelineFile string
	Store        string
	StorePath    string
	WorkspaceDir string

	// Server is the configuration used by serve.
	Server server.Config

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables (APPGEN_*)
// 3. .env files
// 4. Config file (~/.appgen.yaml or ./.appgen.yaml)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapResource("read", "config", configFile, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".appgen")

		// A missing config file is fine, a broken one is not.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.WrapResource("read", "config", "", err)
			}
		}
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Output:  v.GetString("output"),

		ConfigFile: v.ConfigFileUsed(),

		ServerURL: v.GetString("server_url"),
		APIKey:    v.GetString("api_key"),

		PipelineFile: expandPath(v.GetString("pipeline_file")),
		Store:        strings.ToLower(v.GetString("store")),
		StorePath:    expandPath(v.GetString("store_path")),
		WorkspaceDir: expandPath(v.GetString("workspace_dir")),

		Server: server.Config{
			Host:              v.GetString("host"),
			Port:              v.GetInt("port"),
			PathPrefix:        v.GetString("prefix"),
			CORSEnabled:       v.GetBool("cors"),
			CORSOrigins:       v.GetStringSlice("cors_origins"),
			AuthEnabled:       v.GetBool("auth"),
			AuthHeader:        v.GetString("auth_header"),
			APIKey:            v.GetString("api_key"),
			RateLimit:         v.GetInt("rate_limit"),
			CacheTTL:          v.GetDuration("cache_ttl"),
			MaxConcurrentRuns: v.GetInt("max_concurrent_runs"),
			PingPeriod:        v.GetDuration("ping_period"),
			PongWait:          v.GetDuration("pong_wait"),
			ReadTimeout:       v.GetDuration("read_timeout"),
			WriteTimeout:      v.GetDuration("write_timeout"),
			IdleTimeout:       v.GetDuration("idle_timeout"),
			MetricsEnabled:    v.GetBool("metrics"),
		},

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it.
func setDefaults(v *viper.Viper) {
	def := server.DefaultConfig()

	v.SetDefault("verbose", false)
	v.SetDefault("quiet", false)
	v.SetDefault("no_color", false)
	v.SetDefault("output", "")

	v.SetDefault("server_url", constants.DefaultServerURL)
	v.SetDefault("api_key", "")

	v.SetDefault("pipeline_file", "")
	v.SetDefault("store", store.BackendBbolt)
	v.SetDefault("store_path", constants.DefaultStorePath)
	v.SetDefault("workspace_dir", constants.DefaultWorkspacePath)

	v.SetDefault("host", def.Host)
	v.SetDefault("port", def.Port)
	v.SetDefault("prefix", def.PathPrefix)
	v.SetDefault("cors", def.CORSEnabled)
	v.SetDefault("cors_origins", def.CORSOrigins)
	v.SetDefault("auth", def.AuthEnabled)
	v.SetDefault("auth_header", def.AuthHeader)
	v.SetDefault("rate_limit", def.RateLimit)
	v.SetDefault("cache_ttl", def.CacheTTL)
	v.SetDefault("max_concurrent_runs", def.MaxConcurrentRuns)
	v.SetDefault("ping_period", def.PingPeriod)
	v.SetDefault("pong_wait", def.PongWait)
	v.SetDefault("read_timeout", def.ReadTimeout)
	v.SetDefault("write_timeout", def.WriteTimeout)
	v.SetDefault("idle_timeout", def.IdleTimeout)
	v.SetDefault("metrics", def.MetricsEnabled)

	v.SetDefault("log_level", "")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")
}

// Validate rejects settings the orchestrator or server cannot start with.
func (c *Config) Validate() error {
	switch c.Store {
	case store.BackendMemory, store.BackendBbolt:
	default:
		return errors.NewConfigError("store", "must be memory or bbolt, got "+c.Store, errors.ErrInvalidInput)
	}
	if c.Store == store.BackendBbolt && c.StorePath == "" {
		return errors.NewConfigError("store_path", "required for the bbolt store", errors.ErrInvalidInput)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.NewConfigError("port", "out of range", errors.ErrInvalidInput)
	}
	if c.Server.PingPeriod > 0 && c.Server.PongWait > 0 && c.Server.PingPeriod >= c.Server.PongWait {
		return errors.NewConfigError("ping_period", "must be shorter than pong_wait", errors.ErrInvalidInput)
	}
	return nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars. Boolean flags
// can only switch a setting on.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, output, logLevel, serverURL, apiKey string) {
	c.Verbose = c.Verbose || verbose
	c.Quiet = c.Quiet || quiet
	c.NoColor = c.NoColor || noColor
	if output != "" {
		c.Output = output
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if serverURL != "" {
		c.ServerURL = serverURL
	}
	if apiKey != "" {
		c.APIKey = apiKey
		c.Server.APIKey = apiKey
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is loaded first because godotenv never overrides a variable
// that is already set.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// expandPath expands a path that may contain ~ to the user's home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return homeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

