// Package application provides the application interface for appgen commands.
//
// The Application interface is the contract between the application layer and
// command implementations. Commands and the HTTP server accept it instead of
// the concrete App type so tests can substitute a Mock.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            orch, err := app.Orchestrator()
//	            if err != nil {
//	                return err
//	            }
//	            // ... use orch
//	            return nil
//	        },
//	    }
//	}
package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/internal/pipeline"
	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/events"
)

// Orchestrator is the pipeline engine the server fans events out for. The
// pipeline.Orchestrator satisfies it.
type Orchestrator interface {
	// RegisterHook installs the handler invoked for one lifecycle event kind.
	RegisterHook(kind events.Kind, fn events.Handler) error

	// Run executes a pipeline for the project. It blocks until the run ends.
	Run(ctx context.Context, projectID string, nodes []string) error

	// Cancel requests cancellation of the project's run. It reports
	// whether a run was found.
	Cancel(projectID string) bool

	Nodes() []pipeline.NodeInfo
	ValidateNodes(nodes []string) error

	CreateProject(ctx context.Context, name, requirements string) (*store.Project, error)
	ListProjects(ctx context.Context) ([]*store.Project, error)
	ProjectStatus(ctx context.Context, projectID string) (*store.Project, error)

	// StatusSnapshot builds the status message sent to a new subscriber.
	StatusSnapshot(ctx context.Context, projectID string) (events.Envelope, error)
}

var _ Orchestrator = (*pipeline.Orchestrator)(nil)

// Application provides the application interface that commands need.
// The App struct from cmd/appgen/app implements it.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Orchestrator returns the lazily built orchestrator backed by the
	// configured project store. The same instance is returned on every call.
	Orchestrator() (Orchestrator, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml).
	OutputFormat() string

	// ServerURL is the base URL client commands talk to.
	ServerURL() string

	// APIKey is sent by client commands when the server requires one.
	APIKey() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
