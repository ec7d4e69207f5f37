package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/contentflow/internal/action"
)

// NewActionsCommand creates the actions command.
func NewActionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the registered workflow action types",
		Long: `List every workflow action type with its description, parameters
and an example configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := action.NewDefaultRegistry(action.Dependencies{})
			return newFormatter(rootOpts, cmd).Success(registry.Catalog())
		},
	}
}
