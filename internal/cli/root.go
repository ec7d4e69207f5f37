package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	UserID     string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the contentflow CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "contentflow",
		Short: "contentflow - versioned content with workflows",
		Long: `A content-management backend: event-sourced content items guarded by
role-based permissions, with workflows that run actions when content changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			setupLogging(opts)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to contentflow.yaml")
	cmd.PersistentFlags().StringVarP(&opts.UserID, "user", "u", "", "acting user id")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewContentCommand(opts))
	cmd.AddCommand(NewWorkflowCommand(opts))
	cmd.AddCommand(NewActionsCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))

	return cmd
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func requireUser(opts *RootOptions) error {
	if opts.UserID == "" {
		return NewExitError(ExitCommandError, "--user is required")
	}
	return nil
}
