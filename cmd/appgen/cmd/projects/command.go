// Package projects provides the project commands of the appgen CLI.
package projects

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
)

// NewCommand creates the projects command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		GroupID: "client",
		Short:   "Create and inspect projects on an appgen server",
		Example: `  appgen projects create todo --requirements "A todo app with tags"
  appgen projects create todo --file requirements.md
  appgen projects list
  appgen projects get 3f0c...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewCreateCommand(app))
	cmd.AddCommand(NewListCommand(app))
	cmd.AddCommand(NewGetCommand(app))

	return cmd
}
