package run

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdutil"
	"github.com/agentstation/appgen/internal/pipeline"
)

// NewRunsCommand creates the runs command listing active runs.
func NewRunsCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "runs",
		GroupID: "client",
		Short:   "List active runs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			active, err := client.Runs(cmd.Context())
			if err != nil {
				return err
			}

			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			return printer.Runs(active)
		},
	}
}

// NewNodesCommand creates the nodes command listing the pipeline's nodes.
func NewNodesCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "nodes",
		GroupID: "client",
		Short:   "List the pipeline nodes a run can include",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			remote, err := client.Nodes(cmd.Context())
			if err != nil {
				return err
			}

			nodes := make([]pipeline.NodeInfo, len(remote))
			for i, n := range remote {
				nodes[i] = pipeline.NodeInfo(n)
			}

			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			return printer.Nodes(nodes)
		},
	}
}
