package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/appgen/pkg/errors"
)

func TestCommandExecutor_NoCommand(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), nil)

	res, err := exec.Execute(context.Background(), Job{
		ProjectID: "p1",
		Stage:     Stage{Name: "plan", Description: "Analyse requirements"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plan: Analyse requirements\n", res.Output)

	logged, err := os.ReadFile(filepath.Join(exec.Workspace("p1"), "plan.log"))
	require.NoError(t, err)
	assert.Equal(t, res.Output, string(logged))
}

func TestCommandExecutor_RunsCommand(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), nil)

	res, err := exec.Execute(context.Background(), Job{
		ProjectID:    "p1",
		Requirements: "build a todo app",
		Stage: Stage{
			Name:    "echo",
			Command: []string{"sh", "-c", `cat; echo " [$APPGEN_STAGE/$APPGEN_PROJECT_ID/$GREETING]"`},
			Env:     map[string]string{"GREETING": "hi"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "build a todo app [echo/p1/hi]\n", res.Output)
}

func TestCommandExecutor_Failure(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), nil)

	res, err := exec.Execute(context.Background(), Job{
		ProjectID: "p1",
		Stage:     Stage{Name: "broken", Command: []string{"sh", "-c", "echo nope; exit 3"}},
	})
	var procErr *errors.ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 3, procErr.ExitCode)
	assert.Contains(t, res.Output, "nope")
}

func TestCommandExecutor_Timeout(t *testing.T) {
	exec := NewCommandExecutor(t.TempDir(), nil)

	_, err := exec.Execute(context.Background(), Job{
		ProjectID: "p1",
		Stage:     Stage{Name: "slow", Command: []string{"sleep", "5"}, Timeout: "50ms"},
	})
	assert.True(t, errors.IsTimeout(err), "got %v", err)
}

func TestCommandExecutor_WorkspaceStaysInside(t *testing.T) {
	root := t.TempDir()
	exec := NewCommandExecutor(root, nil)

	ws := exec.Workspace("../../etc")
	assert.True(t, strings.HasPrefix(ws, root), ws)
}

func TestBoundedBuffer(t *testing.T) {
	b := &boundedBuffer{limit: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.truncated)
}
