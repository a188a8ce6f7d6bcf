package projects

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/cmdutil"
	"github.com/agentstation/appgen/pkg/constants"
	"github.com/agentstation/appgen/pkg/errors"
)

// NewCreateCommand creates the projects create subcommand.
func NewCreateCommand(app application.Application) *cobra.Command {
	var requirements, file string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Long: `Create registers a project with its requirements. The requirements
are given inline, read from a file, or read from stdin with --file -.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqs, err := readRequirements(cmd, requirements, file)
			if err != nil {
				return err
			}

			client, err := cmdutil.Client(app)
			if err != nil {
				return err
			}
			project, err := client.CreateProject(cmd.Context(), args[0], reqs)
			if err != nil {
				return err
			}

			app.Logger().Debug().Str("project_id", project.ID).Msg("Project created")

			printer, err := cmdutil.Printer(cmd, app)
			if err != nil {
				return err
			}
			return printer.Project(project)
		},
	}

	cmd.Flags().StringVarP(&requirements, "requirements", "r", "", "Project requirements text")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read requirements from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("requirements", "file")

	return cmd
}

// readRequirements resolves the requirements text from the flags.
func readRequirements(cmd *cobra.Command, inline, file string) (string, error) {
	if file == "" {
		return inline, nil
	}

	var r io.Reader
	if file == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(file)
		if err != nil {
			return "", errors.WrapIO("open", file, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, constants.MaxRequirementsSize+1))
	if err != nil {
		return "", errors.WrapIO("read", file, err)
	}
	if len(data) > constants.MaxRequirementsSize {
		return "", errors.NewValidationError("file", file, "requirements exceed the size limit")
	}
	return strings.TrimSpace(string(data)), nil
}
