// Package app provides the application context and dependency management
// for the appgen CLI. It centralizes configuration, logging and the lazily
// built pipeline orchestrator, and hands them to commands through the
// application.Application interface.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/pipeline"
	"github.com/agentstation/appgen/internal/server"
	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/errors"
)

// App represents the appgen application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// Orchestrator and its store (lazy-initialized, singleton)
	mu           sync.RWMutex
	orchestrator application.Orchestrator
	store        store.ProjectStore
}

// New creates a new App instance with the given version information.
// Configuration is loaded from the environment and the default config file
// locations; options may replace it.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	if app.config == nil {
		config, err := LoadConfig("")
		if err != nil {
			return nil, errors.WrapResource("load", "config", "", err)
		}
		app.config = config
	}

	if app.logger == nil {
		logger := NewLogger(app.config)
		app.logger = &logger
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Output
}

// ServerURL returns the server client commands talk to.
func (a *App) ServerURL() string {
	return a.config.ServerURL
}

// APIKey returns the key client commands send.
func (a *App) APIKey() string {
	return a.config.APIKey
}

// ServerConfig returns the configuration serve starts from.
func (a *App) ServerConfig() server.Config {
	return a.config.Server
}

// Orchestrator returns the orchestrator, creating it and opening its store
// on first use. This is thread-safe and ensures only one instance is created.
func (a *App) Orchestrator() (application.Orchestrator, error) {
	a.mu.RLock()
	if a.orchestrator != nil {
		orch := a.orchestrator
		a.mu.RUnlock()
		return orch, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.orchestrator != nil {
		return a.orchestrator, nil
	}

	def, err := pipeline.LoadDefinition(a.config.PipelineFile)
	if err != nil {
		return nil, errors.WrapResource("load", "pipeline", a.config.PipelineFile, err)
	}

	st, err := store.Open(a.config.Store, a.config.StorePath)
	if err != nil {
		return nil, err
	}

	executor := pipeline.NewCommandExecutor(a.config.WorkspaceDir, a.logger)
	a.orchestrator = pipeline.New(def, st, executor, a.logger)
	a.store = st

	a.logger.Debug().
		Str("pipeline", def.Name).
		Int("stages", len(def.Stages)).
		Str("store", st.Backend()).
		Str("workspace", a.config.WorkspaceDir).
		Msg("Orchestrator ready")

	return a.orchestrator, nil
}

// Shutdown closes the project store if the orchestrator was built.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	st := a.store
	a.store = nil
	a.mu.Unlock()

	if st == nil {
		return nil
	}
	if err := st.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close project store during shutdown")
		return errors.WrapResource("close", "store", st.Backend(), err)
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration instead of loading one.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		if config == nil {
			return errors.NewConfigError("app", "config is nil", errors.ErrInvalidInput)
		}
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithOrchestrator sets a custom orchestrator (useful for testing).
func WithOrchestrator(orch application.Orchestrator) Option {
	return func(a *App) error {
		a.orchestrator = orch
		return nil
	}
}

// Ensure App implements application.Application at compile time.
var _ application.Application = (*App)(nil)
