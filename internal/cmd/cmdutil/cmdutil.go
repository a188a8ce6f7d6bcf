// Package cmdutil provides the helpers appgen's client commands share: an
// API client built from the application settings and a printer bound to the
// command's output.
package cmdutil

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/appgen/cmd/application"
	"github.com/agentstation/appgen/internal/cmd/output"
	"github.com/agentstation/appgen/internal/transport"
)

// Client returns an API client for the configured server.
func Client(app application.Application) (*transport.Client, error) {
	var opts []transport.Option
	if key := app.APIKey(); key != "" {
		opts = append(opts, transport.WithAPIKey(key, nil))
	}
	return transport.New(app.ServerURL(), opts...)
}

// Printer returns a printer writing to the command's stdout in the
// configured output format.
func Printer(cmd *cobra.Command, app application.Application) (*output.Printer, error) {
	return output.NewPrinter(cmd.OutOrStdout(), app.OutputFormat())
}

// ParseNodes splits a --nodes value into node names, dropping blanks.
func ParseNodes(values []string) []string {
	nodes := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			nodes = append(nodes, v)
		}
	}
	if len(nodes) == 0 {
		return nil
	}
	return nodes
}
