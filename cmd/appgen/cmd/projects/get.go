package projects

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdutil"
)

// NewGetCommand creates the projects get subcommand.
func NewGetCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "get <project-id>",
		Aliases: []string{"status", "show"},
		Short:   "Show a project's status",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			project, err := client.GetProject(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			return printer.Project(project)
		},
	}
}
