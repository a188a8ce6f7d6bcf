// Package run provides the run control commands of the appgen CLI: run,
// cancel, runs and nodes.
package run

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/appgen/cmd/watch"
	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdutil"
)

// subscribeTimeout bounds how long run --watch waits for its subscription
// before starting the run anyway.
const subscribeTimeout = 5 * time.Second

// NewRunCommand creates the run command with app dependencies.
func NewRunCommand(app application.Application) *cobra.Command {
	var (
		nodes  []string
		follow bool
	)

	cmd := &cobra.Command{
		Use:     "run <project-id>",
		GroupID: "client",
		Short:   "Start a project's pipeline",
		Long: `Run asks the server to execute the project's pipeline in the background.
--nodes restricts the run to the named nodes, in order. With --watch the
command subscribes to the project first, then starts the run and prints its
events until it ends.`,
		Example: `  appgen run 3f0c...
  appgen run 3f0c... --nodes code_generation,testing --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			selected := cmdutil.ParseNodes(nodes)

			if !follow {
				started, err := client.StartRun(cmd.Context(), projectID, selected)
				if err != nil {
					return err
				}
				return printer.Value(map[string]any{
					"status":     started.Status,
					"project_id": started.ProjectID,
					"run_id":     started.RunID,
				})
			}

			// Unknown projects get no initial status, so check first.
			if _, err := client.GetProject(cmd.Context(), projectID); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			ready := make(chan struct{})
			done := make(chan error, 1)
			go func() {
				done <- watch.Stream(ctx, client, printer, projectID, watch.Options{Ready: ready})
			}()

			select {
			case <-ready:
			case <-time.After(subscribeTimeout):
				app.Logger().Warn().Str("project_id", projectID).Msg("Subscription not confirmed, starting run anyway")
			}

			started, err := client.StartRun(ctx, projectID, selected)
			if err != nil {
				cancel()
				<-done
				return err
			}
			app.Logger().Debug().Str("run_id", started.RunID).Msg("Run started")

			return <-done
		},
	}

	cmd.Flags().StringSliceVar(&nodes, "nodes", nil, "Run only these nodes (comma-separated)")
	cmd.Flags().BoolVarP(&follow, "watch", "w", false, "Stream the run's events until it ends")

	return cmd
}
