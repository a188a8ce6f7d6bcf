// Package cmdtest runs a real appgen server for command tests.
package cmdtest

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	mockapp "github.com/agentstation/appgen/internal/cmd/application"
	"github.com/agentstation/appgen/internal/pipeline"
	"github.com/agentstation/appgen/internal/server"
	"github.com/agentstation/appgen/internal/store"
)

// Server is a running appgen server backed by an in-memory store.
type Server struct {
	*httptest.Server
	App          *mockapp.Mock
	Orchestrator *pipeline.Orchestrator
	API          *server.Server
}

// NewServer starts a server whose stages run executor. A nil executor
// completes every stage immediately. Commands built from App talk to it in
// JSON output. The server is closed when the test ends.
func NewServer(t testing.TB, executor pipeline.Executor) *Server {
	t.Helper()

	if executor == nil {
		executor = pipeline.ExecutorFunc(func(_ context.Context, job pipeline.Job) (pipeline.Result, error) {
			return pipeline.Result{Output: job.Stage.Name + " done"}, nil
		})
	}
	orch := pipeline.New(pipeline.Default(), store.NewMemoryStore(), executor, nil)

	app := &mockapp.Mock{
		OrchestratorFunc: func() (application.Orchestrator, error) { return orch, nil },
		OutputFormatFunc: func() string { return "json" },
	}

	cfg := server.DefaultConfig()
	cfg.RateLimit = 0
	api, err := server.New(app, cfg)
	if err != nil {
		t.Fatalf("server.New() failed: %v", err)
	}

	ts := httptest.NewServer(api.Handler())
	url := ts.URL
	app.ServerURLFunc = func() string { return url }

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = api.Shutdown(ctx)
		ts.Close()
	})

	return &Server{Server: ts, App: app, Orchestrator: orch, API: api}
}

// CreateProject stores a project directly through the orchestrator.
func (s *Server) CreateProject(t testing.TB, name string) *store.Project {
	t.Helper()
	p, err := s.Orchestrator.CreateProject(context.Background(), name, "requirements for "+name)
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	return p
}

// Execute runs cmd with args and returns what it wrote to stdout.
func Execute(ctx context.Context, cmd *cobra.Command, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}
