package cli

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/service"
)

// ContentOptions holds flags shared by the content subcommands.
type ContentOptions struct {
	*RootOptions
	ContentType    string
	Data           string
	Status         string
	Sensitivity    string
	Version        int64
	IdempotencyKey string
}

// NewContentCommand creates the content command group.
func NewContentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "content",
		Short: "Create, read and change content items",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an item",
		Long: `Create a content item.

Example:
  contentflow content create -u u1 --type Article --data '{"Name":"Hello"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContentCreate(opts, cmd)
		},
	}
	create.Flags().StringVar(&opts.ContentType, "type", "", "content type (required)")
	create.Flags().StringVar(&opts.Sensitivity, "sensitivity", "", "Public|Sensitive|Hidden")
	_ = create.MarkFlagRequired("type")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace the data of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContentUpdate(opts, args[0], cmd)
		},
	}
	update.Flags().Int64Var(&opts.Version, "version", 0, "expected current version (0 skips the check)")

	for _, c := range []*cobra.Command{create, update} {
		c.Flags().StringVar(&opts.Data, "data", "{}", "data as a JSON object")
		c.Flags().StringVar(&opts.Status, "status", "", "Draft|Published|Archived")
		c.Flags().StringVar(&opts.IdempotencyKey, "idempotency-key", "", "reject a repeated request with this key")
	}

	rollback := &cobra.Command{
		Use:   "rollback <id> <version>",
		Short: "Restore the data of a prior version as a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContentRollback(opts, args[0], args[1], cmd)
		},
	}
	rollback.Flags().StringVar(&opts.IdempotencyKey, "idempotency-key", "", "reject a repeated request with this key")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, rootOpts, true, func(app *App, f *OutputFormatter) error {
				err := app.Service.Delete(cmd.Context(), service.DeleteRequest{
					UserID: opts.UserID, ID: args[0], IdempotencyKey: opts.IdempotencyKey,
				})
				if err != nil {
					return f.Fail(err)
				}
				return f.Success("deleted " + args[0])
			})
		},
	}
	del.Flags().StringVar(&opts.IdempotencyKey, "idempotency-key", "", "reject a repeated request with this key")

	get := &cobra.Command{
		Use:   "get <id> [version]",
		Short: "Show an item, optionally as it was at a version",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, rootOpts, true, func(app *App, f *OutputFormatter) error {
				var (
					item *content.Content
					err  error
				)
				if len(args) == 2 {
					v, perr := strconv.ParseInt(args[1], 10, 64)
					if perr != nil {
						return WrapExitError(ExitCommandError, "version must be an integer", perr)
					}
					item, err = app.Service.GetVersion(cmd.Context(), opts.UserID, args[0], v)
				} else {
					item, err = app.Service.Get(cmd.Context(), opts.UserID, args[0])
				}
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(item)
			})
		},
	}

	history := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the event history of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, rootOpts, true, func(app *App, f *OutputFormatter) error {
				envs, err := app.Service.History(cmd.Context(), opts.UserID, args[0])
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(envs)
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <content-type>",
		Short: "List the readable items of a content type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, rootOpts, true, func(app *App, f *OutputFormatter) error {
				items, err := app.Service.List(cmd.Context(), opts.UserID, args[0])
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(items)
			})
		},
	}

	cmd.AddCommand(create, update, rollback, del, get, history, list)
	return cmd
}

// withService opens the app, runs fn and closes the app.
func withService(cmd *cobra.Command, opts *RootOptions, needUser bool, fn func(*App, *OutputFormatter) error) error {
	if needUser {
		if err := requireUser(opts); err != nil {
			return err
		}
	}
	app, err := openApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app, newFormatter(opts, cmd))
}

func parseData(raw string) (content.Data, error) {
	data := content.Data{}
	if raw == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, WrapExitError(ExitCommandError, "--data must be a JSON object", err)
	}
	return data, nil
}

func runContentCreate(opts *ContentOptions, cmd *cobra.Command) error {
	data, err := parseData(opts.Data)
	if err != nil {
		return err
	}
	return withService(cmd, opts.RootOptions, true, func(app *App, f *OutputFormatter) error {
		item, err := app.Service.Create(cmd.Context(), service.CreateRequest{
			UserID:         opts.UserID,
			ContentType:    opts.ContentType,
			Data:           data,
			Status:         content.Status(opts.Status),
			Sensitivity:    content.Sensitivity(opts.Sensitivity),
			IdempotencyKey: opts.IdempotencyKey,
		})
		if err != nil {
			return f.Fail(err)
		}
		return f.Success(item)
	})
}

func runContentUpdate(opts *ContentOptions, id string, cmd *cobra.Command) error {
	data, err := parseData(opts.Data)
	if err != nil {
		return err
	}
	return withService(cmd, opts.RootOptions, true, func(app *App, f *OutputFormatter) error {
		item, err := app.Service.Update(cmd.Context(), service.UpdateRequest{
			UserID:          opts.UserID,
			ID:              id,
			Data:            data,
			Status:          content.Status(opts.Status),
			ExpectedVersion: opts.Version,
			IdempotencyKey:  opts.IdempotencyKey,
		})
		if err != nil {
			return f.Fail(err)
		}
		return f.Success(item)
	})
}

func runContentRollback(opts *ContentOptions, id, version string, cmd *cobra.Command) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil || target < 1 {
		return NewExitError(ExitCommandError, "version must be a positive integer")
	}
	return withService(cmd, opts.RootOptions, true, func(app *App, f *OutputFormatter) error {
		item, err := app.Service.Rollback(cmd.Context(), service.RollbackRequest{
			UserID:         opts.UserID,
			ID:             id,
			TargetVersion:  target,
			IdempotencyKey: opts.IdempotencyKey,
		})
		if err != nil {
			return f.Fail(err)
		}
		return f.Success(item)
	})
}
