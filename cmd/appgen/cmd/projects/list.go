package projects

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdutil"
	"github.com/agentstation/appgen/internal/store"
)

// NewListCommand creates the projects list subcommand.
func NewListCommand(app application.Application) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			projects, err := client.ListProjects(cmd.Context())
			if err != nil {
				return err
			}

			if status != "" {
				filtered := projects[:0]
				for _, p := range projects {
					if string(p.Status) == status {
						filtered = append(filtered, p)
					}
				}
				projects = filtered
			}
			sortProjects(projects)

			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			return printer.Projects(projects)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show projects in this status (created, running, completed, failed, cancelled)")

	return cmd
}

// sortProjects orders projects newest first, then by ID.
func sortProjects(projects []*store.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.After(projects[j].CreatedAt)
		}
		return projects[i].ID < projects[j].ID
	})
}
