package run

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdutil"
)

// NewCancelCommand creates the cancel command.
func NewCancelCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "cancel <project-id>",
		GroupID: "client",
		Short:   "Cancel a project's active run",
		Long: `Cancel asks the server to stop the project's active run. The pipeline
stops before its next node and reports a cancelled completion. Cancelling a
project with no active run fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			if err := client.CancelRun(cmd.Context(), args[0]); err != nil {
				return err
			}

			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			return printer.Value(map[string]any{"status": "cancelled", "project_id": args[0]})
		},
	}
}
