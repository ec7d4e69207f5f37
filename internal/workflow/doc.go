// Package workflow matches content events to workflow definitions and runs
// their actions.
//
// # Execution model
//
// ProcessEvent is synchronous: it returns after every action of every
// matching definition has been attempted. Definitions run in the order the
// Source returns them (creation order for the stores in this module), and
// actions within a definition run strictly in list order.
//
// Each action yields an action.Result. Unknown action types, handler errors,
// panics and cancellation are recorded in the result and never stop the
// remaining actions or reach the caller that triggered the event.
//
// # Dry run
//
// DryRun executes an unsaved definition against sample content. Handlers
// whose metadata declares a notify or write effect are not invoked; their
// resolved parameters are reported with code DRY_RUN_SKIPPED. Effect-free
// handlers such as Conditional do run, so branch selection is visible.
package workflow
