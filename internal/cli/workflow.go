package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/contentflow/internal/action"
	"github.com/roach88/contentflow/internal/content"
	"github.com/roach88/contentflow/internal/workflow"
)

// ValidationResult holds validation results for one definition.
type ValidationResult struct {
	WorkflowID string                     `json:"workflow_id"`
	Name       string                     `json:"name"`
	Valid      bool                       `json:"valid"`
	Errors     []workflow.ValidationError `json:"errors,omitempty"`
}

// NewWorkflowCommand creates the workflow command group.
func NewWorkflowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow definitions",
	}

	validate := &cobra.Command{
		Use:   "validate <file-or-dir>",
		Short: "Validate workflow YAML without saving it",
		Long: `Validate workflow definitions against the built-in action registry.

Checks names, triggers, action types, required parameters and Conditional
branches. No database is opened.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowValidate(rootOpts, args[0], cmd)
		},
	}

	var samplePath string
	dryRun := &cobra.Command{
		Use:   "dry-run <file>",
		Short: "Run a workflow against a sample without side effects",
		Long: `Run every definition in a workflow file against a sample item.

Actions that notify or write are reported but not executed. Without
--sample, a stored item of the trigger content type is used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowDryRun(rootOpts, args[0], samplePath, cmd)
		},
	}
	dryRun.Flags().StringVar(&samplePath, "sample", "", "JSON file holding the sample item")

	apply := &cobra.Command{
		Use:   "apply <file-or-dir>",
		Short: "Validate and save workflow definitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowApply(rootOpts, args[0], cmd)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved workflows in match order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, rootOpts, false, func(app *App, f *OutputFormatter) error {
				defs, err := app.Service.ListWorkflows(cmd.Context())
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(defs)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, rootOpts, false, func(app *App, f *OutputFormatter) error {
				if err := app.Service.DeleteWorkflow(cmd.Context(), args[0]); err != nil {
					return f.Fail(err)
				}
				return f.Success("deleted " + args[0])
			})
		},
	}

	executions := &cobra.Command{
		Use:   "executions [content-id]",
		Short: "Show recorded workflow runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var contentID string
			if len(args) == 1 {
				contentID = args[0]
			}
			return withService(cmd, rootOpts, false, func(app *App, f *OutputFormatter) error {
				execs, err := app.Service.Executions(cmd.Context(), contentID)
				if err != nil {
					return f.Fail(err)
				}
				return f.Success(execs)
			})
		},
	}

	cmd.AddCommand(validate, dryRun, apply, list, del, executions)
	return cmd
}

func runWorkflowValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	defs, err := workflow.LoadPath(path)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load workflows", err)
	}
	formatter.VerboseLog("Loaded %d workflow definition(s) from %s", len(defs), path)

	registry := action.NewDefaultRegistry(action.Dependencies{})
	results := make([]ValidationResult, 0, len(defs))
	invalid := 0
	for _, def := range defs {
		errs := workflow.Validate(def, registry)
		if len(errs) > 0 {
			invalid++
		}
		results = append(results, ValidationResult{WorkflowID: def.ID, Name: def.Name, Valid: len(errs) == 0, Errors: errs})
	}

	if invalid > 0 {
		_ = formatter.Error(ErrCodeInvalidWorkflow, fmt.Sprintf("%d of %d workflow(s) invalid", invalid, len(defs)), results)
		return NewExitError(ExitFailure, "validation failed")
	}
	if opts.Format == "json" {
		return formatter.Success(results)
	}
	return formatter.Success(fmt.Sprintf("%d workflow(s) valid", len(defs)))
}

func runWorkflowDryRun(opts *RootOptions, path, samplePath string, cmd *cobra.Command) error {
	defs, err := workflow.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load workflows", err)
	}

	var sample *content.Content
	if samplePath != "" {
		raw, err := os.ReadFile(samplePath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read sample", err)
		}
		sample = &content.Content{}
		if err := json.Unmarshal(raw, sample); err != nil {
			return WrapExitError(ExitCommandError, "sample must be a JSON content object", err)
		}
	}

	return withService(cmd, opts, false, func(app *App, f *OutputFormatter) error {
		execs := make([]workflow.Execution, 0, len(defs))
		for _, def := range defs {
			exec, err := app.Service.DryRun(cmd.Context(), def, sample)
			if err != nil {
				return f.Fail(err)
			}
			execs = append(execs, exec)
		}
		return f.Success(execs)
	})
}

func runWorkflowApply(opts *RootOptions, path string, cmd *cobra.Command) error {
	defs, err := workflow.LoadPath(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load workflows", err)
	}

	return withService(cmd, opts, false, func(app *App, f *OutputFormatter) error {
		saved := make([]workflow.Definition, 0, len(defs))
		for _, def := range defs {
			d, err := app.Service.SaveWorkflow(cmd.Context(), def)
			if err != nil {
				return f.Fail(err)
			}
			f.VerboseLog("Saved workflow %s (%s)", d.ID, d.Name)
			saved = append(saved, d)
		}
		return f.Success(saved)
	})
}
