package app

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdtest"
	"github.com/agentstation/appgen/internal/server"
	"github.com/agentstation/appgen/internal/store"
	"github.com/agentstation/appgen/pkg/errors"
)

// testConfig returns a config that keeps projects in memory.
func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Store:        store.BackendMemory,
		WorkspaceDir: t.TempDir(),
		ServerURL:    "http://127.0.0.1:1",
		Server:       server.DefaultConfig(),
		LogFormat:    "json",
		LogOutput:    "stderr",
	}
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	logger := zerolog.Nop()
	opts = append([]Option{WithConfig(testConfig(t)), WithLogger(&logger)}, opts...)
	app, err := New("1.0.0", "abc123", "2024-01-01", "test", opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

// TestApp_New verifies app initialization.
func TestApp_New(t *testing.T) {
	app := newTestApp(t)

	if app.Version() != "1.0.0" {
		t.Errorf("Version() = %s, want 1.0.0", app.Version())
	}
	if app.Commit() != "abc123" {
		t.Errorf("Commit() = %s, want abc123", app.Commit())
	}
	if app.Date() != "2024-01-01" {
		t.Errorf("Date() = %s, want 2024-01-01", app.Date())
	}
	if app.BuiltBy() != "test" {
		t.Errorf("BuiltBy() = %s, want test", app.BuiltBy())
	}
	if app.Logger() == nil {
		t.Error("Logger() returned nil")
	}
	if app.ServerURL() != "http://127.0.0.1:1" {
		t.Errorf("ServerURL() = %s", app.ServerURL())
	}
	if app.ServerConfig().Port != server.DefaultConfig().Port {
		t.Errorf("ServerConfig().Port = %d", app.ServerConfig().Port)
	}
}

// TestApp_New_LoadsConfig verifies New falls back to LoadConfig.
func TestApp_New_LoadsConfig(t *testing.T) {
	isolate(t)
	t.Setenv("APPGEN_STORE", "memory")
	t.Setenv("APPGEN_SERVER_URL", "http://example.test:9000")

	app, err := New("1.0.0", "", "", "")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if app.Config().Store != store.BackendMemory {
		t.Errorf("Store = %q, want memory", app.Config().Store)
	}
	if app.ServerURL() != "http://example.test:9000" {
		t.Errorf("ServerURL() = %q", app.ServerURL())
	}
}

// TestApp_WithConfigNil verifies a nil config is rejected.
func TestApp_WithConfigNil(t *testing.T) {
	if _, err := New("1.0.0", "", "", "", WithConfig(nil)); !errors.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// TestApp_Orchestrator_Singleton verifies that Orchestrator() returns the same instance.
func TestApp_Orchestrator_Singleton(t *testing.T) {
	app := newTestApp(t)

	o1, err := app.Orchestrator()
	if err != nil {
		t.Fatalf("Orchestrator() failed: %v", err)
	}
	o2, err := app.Orchestrator()
	if err != nil {
		t.Fatalf("Orchestrator() failed on second call: %v", err)
	}
	if o1 != o2 {
		t.Error("Orchestrator() returned different instances, expected singleton")
	}
	if len(o1.Nodes()) == 0 {
		t.Error("default pipeline has no nodes")
	}
}

// TestApp_Orchestrator_ThreadSafe verifies concurrent Orchestrator() calls are safe.
func TestApp_Orchestrator_ThreadSafe(t *testing.T) {
	app := newTestApp(t)

	const goroutines = 50
	var wg sync.WaitGroup
	results := make([]application.Orchestrator, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = app.Orchestrator()
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("goroutine %d got a different instance", i)
		}
	}
}

// TestApp_Orchestrator_Bbolt verifies projects persist across apps sharing a
// store file.
func TestApp_Orchestrator_Bbolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.db")
	open := func() *App {
		config := testConfig(t)
		config.Store = store.BackendBbolt
		config.StorePath = path
		logger := zerolog.Nop()
		app, err := New("1.0.0", "", "", "", WithConfig(config), WithLogger(&logger))
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		return app
	}

	first := open()
	orch, err := first.Orchestrator()
	if err != nil {
		t.Fatalf("Orchestrator() failed: %v", err)
	}
	created, err := orch.CreateProject(context.Background(), "persisted", "keep me")
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	if err := first.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}

	second := open()
	defer func() { _ = second.Shutdown(context.Background()) }()
	orch, err = second.Orchestrator()
	if err != nil {
		t.Fatalf("Orchestrator() failed: %v", err)
	}
	projects, err := orch.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() failed: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != created.ID {
		t.Errorf("projects after reopen = %v, want %s", projects, created.ID)
	}
}

// TestApp_Orchestrator_BadPipeline verifies a broken pipeline file surfaces.
func TestApp_Orchestrator_BadPipeline(t *testing.T) {
	config := testConfig(t)
	config.PipelineFile = filepath.Join(t.TempDir(), "missing.yaml")
	logger := zerolog.Nop()
	app, err := New("1.0.0", "", "", "", WithConfig(config), WithLogger(&logger))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := app.Orchestrator(); err == nil {
		t.Error("expected error for a missing pipeline file")
	}
}

// TestApp_WithOrchestrator verifies an injected orchestrator is used as is.
func TestApp_WithOrchestrator(t *testing.T) {
	srv := cmdtest.NewServer(t, nil)
	app := newTestApp(t, WithOrchestrator(srv.Orchestrator))

	orch, err := app.Orchestrator()
	if err != nil {
		t.Fatalf("Orchestrator() failed: %v", err)
	}
	if orch != application.Orchestrator(srv.Orchestrator) {
		t.Error("Orchestrator() did not return the injected instance")
	}
}

// TestApp_Shutdown verifies shutdown is safe before and after use.
func TestApp_Shutdown(t *testing.T) {
	app := newTestApp(t)
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() before use failed: %v", err)
	}
	if _, err := app.Orchestrator(); err != nil {
		t.Fatalf("Orchestrator() failed: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() failed: %v", err)
	}
}

func execute(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := app.createRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// TestExecute_Version verifies plain and structured version output.
func TestExecute_Version(t *testing.T) {
	out, err := execute(t, newTestApp(t), "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(out) != "appgen 1.0.0" {
		t.Errorf("version output = %q", out)
	}

	out, err = execute(t, newTestApp(t), "version", "-v")
	if err != nil {
		t.Fatalf("version -v failed: %v", err)
	}
	if !strings.Contains(out, "abc123") {
		t.Errorf("verbose version output missing commit: %q", out)
	}

	out, err = execute(t, newTestApp(t), "version", "-o", "json")
	if err != nil {
		t.Fatalf("version -o json failed: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version json: %v\n%s", err, out)
	}
	if info["version"] != "1.0.0" || info["built_by"] != "test" {
		t.Errorf("version json = %v", info)
	}
}

// TestExecute_InvalidOutput verifies the output flag is validated up front.
func TestExecute_InvalidOutput(t *testing.T) {
	_, err := execute(t, newTestApp(t), "version", "-o", "xml")
	if !errors.IsValidationError(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// TestExecute_ConfigFlag verifies --config reloads settings before a command.
func TestExecute_ConfigFlag(t *testing.T) {
	_, cwd := isolate(t)
	path := filepath.Join(cwd, "cli.yaml")
	if err := os.WriteFile(path, []byte("store: memory\noutput: json\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t)
	out, err := execute(t, app, "version", "--config", path)
	if err != nil {
		t.Fatalf("version --config failed: %v", err)
	}
	if app.Config().ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", app.Config().ConfigFile, path)
	}
	if !strings.Contains(out, `"version"`) {
		t.Errorf("expected json output from config file, got %q", out)
	}
}

// TestExecute_ClientAgainstServer drives a client command end to end.
func TestExecute_ClientAgainstServer(t *testing.T) {
	srv := cmdtest.NewServer(t, nil)
	project := srv.CreateProject(t, "cli-app")

	out, err := execute(t, newTestApp(t), "projects", "list", "-o", "json", "--server", srv.URL)
	if err != nil {
		t.Fatalf("projects list failed: %v", err)
	}

	var projects []store.Project
	if err := json.Unmarshal([]byte(out), &projects); err != nil {
		t.Fatalf("projects json: %v\n%s", err, out)
	}
	if len(projects) != 1 || projects[0].ID != project.ID {
		t.Errorf("projects = %v, want %s", projects, project.ID)
	}
}
