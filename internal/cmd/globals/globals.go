// Package globals provides the persistent flags shared by every appgen
// command.
package globals

import "github.com/spf13/cobra"

// Flags holds global common flags across all commands.
type Flags struct {
	ConfigFile string
	Output     string
	LogLevel   string
	ServerURL  string
	APIKey     string
	Quiet      bool
	Verbose    bool
	NoColor    bool
}

// AddFlags adds common flags to the root command.
func AddFlags(cmd *cobra.Command) *Flags {
	flags := &Flags{}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigFile, "config", "", "config file (default is $HOME/.appgen.yaml)")
	pf.StringVarP(&flags.Output, "output", "o", "", "Output format: table, wide, json, yaml")
	// --format is a hidden alias for --output
	pf.StringVar(&flags.Output, "format", "", "")
	_ = pf.MarkHidden("format")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")
	pf.StringVar(&flags.ServerURL, "server", "", "appgen server URL for client commands")
	pf.StringVar(&flags.APIKey, "api-key", "", "API key sent to the server")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	pf.BoolVar(&flags.NoColor, "no-color", false, "disable colored output")

	return flags
}

// Parse extracts global flags from the command hierarchy.
// This is useful for subcommands that need to access global flags when
// they weren't passed the flags struct directly.
func Parse(cmd *cobra.Command) (*Flags, error) {
	root := cmd
	for root.Parent() != nil {
		root = root.Parent()
	}
	pf := root.PersistentFlags()

	flags := &Flags{}
	var err error
	if flags.ConfigFile, err = pf.GetString("config"); err != nil {
		return nil, err
	}
	if flags.Output, err = pf.GetString("output"); err != nil {
		return nil, err
	}
	if flags.LogLevel, err = pf.GetString("log-level"); err != nil {
		return nil, err
	}
	if flags.ServerURL, err = pf.GetString("server"); err != nil {
		return nil, err
	}
	if flags.APIKey, err = pf.GetString("api-key"); err != nil {
		return nil, err
	}
	if flags.Quiet, err = pf.GetBool("quiet"); err != nil {
		return nil, err
	}
	if flags.Verbose, err = pf.GetBool("verbose"); err != nil {
		return nil, err
	}
	if flags.NoColor, err = pf.GetBool("no-color"); err != nil {
		return nil, err
	}
	return flags, nil
}
