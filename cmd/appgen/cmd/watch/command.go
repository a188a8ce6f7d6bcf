// Package watch provides the watch command, a websocket client that prints
// a project's pipeline events as they happen.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdutil"
	"github.com/agentstation/appgen/internal/cmd/output"
	"github.com/agentstation/appgen/internal/transport"
	"github.com/agentstation/appgen/pkg/errors"
	"github.com/agentstation/appgen/pkg/events"
)

// NewCommand creates the watch command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	var (
		follow       bool
		pingInterval time.Duration
	)

	cmd := &cobra.Command{
		Use:     "watch <project-id>",
		GroupID: "client",
		Short:   "Stream a project's pipeline events",
		Long: `Watch subscribes to a project over the websocket endpoint and prints
every status update, error and completion event. It prints the project's
current status first and stops after the run completes or fails, unless
--follow is set.`,
		Example: `  appgen watch 3f0c...
  appgen watch 3f0c... --follow -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			return Stream(cmd.Context(), client, printer, args[0], Options{
				Follow:       follow,
				PingInterval: pingInterval,
			})
		},
	}

	cmd.Flags().BoolVar(&follow, "follow", false, "Keep watching after the run ends")
	cmd.Flags().DurationVar(&pingInterval, "ping-interval", 0, "Interval between keepalive pings (default 54s)")

	return cmd
}

// Options tune Stream.
type Options struct {
	// Follow keeps the stream open after completion or error events.
	Follow bool
	// PingInterval overrides the keepalive interval.
	PingInterval time.Duration
	// Ready, when set, is closed once the subscription delivered its first
	// message, or the stream ended first.
	Ready chan<- struct{}
}

// Stream prints projectID's events until the run ends, ctx is cancelled or
// the connection fails. An error event makes Stream return a RunError after
// printing it.
func Stream(ctx context.Context, client *transport.Client, printer *output.Printer, projectID string, opts Options) error {
	var (
		readyOnce sync.Once
		runErr    error
	)
	markReady := func() {
		if opts.Ready != nil {
			readyOnce.Do(func() { close(opts.Ready) })
		}
	}
	defer markReady()

	err := client.Watch(ctx, projectID, transport.WatchOptions{PingInterval: opts.PingInterval}, func(env events.Envelope) bool {
		markReady()
		if perr := printer.Event(env); perr != nil {
			runErr = perr
			return false
		}
		if opts.Follow {
			return true
		}
		switch env.Type {
		case events.KindError:
			msg, _ := env.Data["error"].(string)
			node, _ := env.Data["node"].(string)
			runErr = errors.NewRunError(projectID, node, true, errors.New(msg))
			return false
		case events.KindCompletion:
			if status, _ := env.Data["status"].(string); status == "failed" {
				runErr = errors.NewRunError(projectID, "", true, errors.New("pipeline failed"))
			}
			return false
		default:
			return true
		}
	})
	if err != nil {
		return err
	}
	return runErr
}
