package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/appgen/cmd/projects"
	"github.com/agentstation/appgen/cmd/appgen/cmd/run"
	"github.com/agentstation/appgen/cmd/appgen/cmd/serve"
	"github.com/agentstation/appgen/cmd/appgen/cmd/watch"
	"github.com/agentstation/appgen/internal/cmd/globals"
	"github.com/agentstation/appgen/internal/cmd/output"
	"github.com/agentstation/appgen/pkg/errors"
)

// Execute runs the appgen CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "appgen",
		Short:   "Project pipeline server and client",
		Version: a.version,
		Long: `appgen runs project pipelines and streams their progress.

"appgen serve" starts the API server. It stores projects, runs their
pipelines in the background and fans every status update, error and
completion event out to the websocket and SSE subscribers of the project.

The client commands (projects, run, cancel, runs, nodes, watch) talk to a
running server, by default ` + a.config.ServerURL + `.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "server", Title: "Server Commands:"})
	rootCmd.AddGroup(&cobra.Group{ID: "client", Title: "Client Commands:"})

	globals.AddFlags(rootCmd)

	rootCmd.SetVersionTemplate("appgen {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand is called before any command runs. It reloads the config
// when --config names a file, applies the global flags and rebuilds the
// logger.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	flags, err := globals.Parse(cmd)
	if err != nil {
		return errors.WrapResource("parse", "flags", "", err)
	}

	if flags.ConfigFile != "" && flags.ConfigFile != a.config.ConfigFile {
		config, err := LoadConfig(flags.ConfigFile)
		if err != nil {
			return err
		}
		a.config = config
	}

	if _, err := output.ParseFormat(flags.Output); err != nil {
		return err
	}

	a.config.UpdateFromFlags(flags.Verbose, flags.Quiet, flags.NoColor, flags.Output, flags.LogLevel, flags.ServerURL, flags.APIKey)

	logger := NewLogger(a.config)
	a.logger = &logger

	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Server
	rootCmd.AddCommand(serve.NewCommand(a))

	// Client
	rootCmd.AddCommand(projects.NewCommand(a))
	rootCmd.AddCommand(run.NewRunCommand(a))
	rootCmd.AddCommand(run.NewCancelCommand(a))
	rootCmd.AddCommand(run.NewRunsCommand(a))
	rootCmd.AddCommand(run.NewNodesCommand(a))
	rootCmd.AddCommand(watch.NewCommand(a))

	// Utility
	rootCmd.AddCommand(a.NewVersionCommand())
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format := output.Format(a.config.Output); format == output.FormatJSON || format == output.FormatYAML {
				return output.NewFormatter(format).Format(cmd.OutOrStdout(), map[string]string{
					"version":  a.version,
					"commit":   a.commit,
					"date":     a.date,
					"built_by": a.builtBy,
				})
			}
			cmd.Printf("appgen %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
			return nil
		},
	}
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
