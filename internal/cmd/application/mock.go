// Package application holds test doubles for the command application interface.
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// Mock provides a mock implementation of application.Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default value.
//
// Example Usage:
//
//	mock := &application.Mock{
//	    OrchestratorFunc: func() (application.Orchestrator, error) {
//	        return fakeOrchestrator, nil
//	    },
//	}
//	cmd := projects.NewCommand(mock)
type Mock struct {
	OrchestratorFunc func() (application.Orchestrator, error)
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	ServerURLFunc    func() string
	APIKeyFunc       func() string
	VersionFunc      func() string
	CommitFunc       func() string
	DateFunc         func() string
	BuiltByFunc      func() string
}

// Orchestrator returns the mock orchestrator or an unavailable error.
func (m *Mock) Orchestrator() (application.Orchestrator, error) {
	if m.OrchestratorFunc != nil {
		return m.OrchestratorFunc()
	}
	return nil, errors.NewConfigError("orchestrator", "not configured in mock", errors.ErrUnavailable)
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// ServerURL returns the mock URL or the default server URL.
func (m *Mock) ServerURL() string {
	if m.ServerURLFunc != nil {
		return m.ServerURLFunc()
	}
	return constants.DefaultServerURL
}

// APIKey returns the mock key or an empty string.
func (m *Mock) APIKey() string {
	if m.APIKeyFunc != nil {
		return m.APIKeyFunc()
	}
	return ""
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns commit using the mock function or "unknown".
func (m *Mock) Commit() string {
	if m.CommitFunc != nil {
		return m.CommitFunc()
	}
	return "unknown"
}

// Date returns date using the mock function or "unknown".
func (m *Mock) Date() string {
	if m.DateFunc != nil {
		return m.DateFunc()
	}
	return "unknown"
}

// BuiltBy returns builtBy using the mock function or "test".
func (m *Mock) BuiltBy() string {
	if m.BuiltByFunc != nil {
		return m.BuiltByFunc()
	}
	return "test"
}

// Ensure Mock implements Application at compile time.
var _ application.Application = (*Mock)(nil)
