package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/contentflow/internal/service"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load roles, users and field policies from YAML",
		Long: `Load access configuration from a YAML document with top-level
roles, users and field_policies lists. Existing entries with the same id
are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := service.LoadSeedFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load seed file", err)
			}
			return withService(cmd, rootOpts, false, func(app *App, f *OutputFormatter) error {
				if err := app.Service.ApplySeed(cmd.Context(), seed); err != nil {
					return f.Fail(err)
				}
				return f.Success(fmt.Sprintf("seeded %d role(s), %d user(s), %d field policy(ies)",
					len(seed.Roles), len(seed.Users), len(seed.FieldPolicies)))
			})
		},
	}
}
