package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BuzzLyutic/gotask/internal/model"
	"github.com/BuzzLyutic/gotask/internal/state"
	"github.com/BuzzLyutic/gotask/internal/worker"
)

// ErrIntentsFailed is returned when at least one toggle or delete of a batch
// did not go through. The individual reasons have already been printed.
var ErrIntentsFailed = errors.New("some tasks could not be changed")

func (a *App) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Load(cmd.Context()); err != nil {
				return err
			}
			a.printTasks(a.store.Tasks())
			return nil
		},
	}
}

func (a *App) printTasks(tasks []model.Task) {
	if len(tasks) == 0 {
		a.notify("No tasks.")
		return
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tNAME\tSTATUS\tESTIMATE\tDUE")
	for _, t := range tasks {
		done := " "
		if t.IsComplete {
			done = "x"
		}
		estimate := ""
		if t.TimeEstimate > 0 {
			estimate = strconv.Itoa(t.TimeEstimate) + "h"
		}
		fmt.Fprintf(tw, "%s\t[%s]\t%s\t%s\t%s\t%s\n", t.ID, done, t.Name, t.Status, estimate, t.DueDate)
	}
	tw.Flush()
}

func addFormFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("name", "n", "", "Task name")
	flags.StringP("description", "d", "", "Task description")
	flags.StringP("estimate", "e", "", "Time estimate in whole hours")
	flags.String("due", "", "Due date (YYYY-MM-DD)")
}

// formFromFlags overlays the flags the user actually set on base.
func formFromFlags(cmd *cobra.Command, base model.Form) model.Form {
	flags := cmd.Flags()
	set := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	set("name", &base.Name)
	set("description", &base.Description)
	set("estimate", &base.TimeEstimate)
	set("due", &base.DueDate)
	return base
}

func (a *App) createCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.BeginCreate(); err != nil {
				return err
			}
			defer a.store.Cancel()

			if err := a.store.SetDraft(formFromFlags(cmd, model.Form{})); err != nil {
				return err
			}
			task, err := a.store.SubmitCreate(cmd.Context())
			if err != nil {
				return err
			}
			a.notify("Created task %s (%s).", task.ID, task.Name)
			return nil
		},
	}
	addFormFlags(cmd)
	return cmd
}

func (a *App) editCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a task's name, description, estimate or due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Load(cmd.Context()); err != nil {
				return err
			}
			if err := a.store.BeginEdit(args[0]); err != nil {
				return err
			}
			defer a.store.Cancel()

			wc, _ := a.store.WorkingCopy()
			if err := a.store.SetWorkingCopy(formFromFlags(cmd, wc)); err != nil {
				return err
			}
			task, err := a.store.SubmitEdit(cmd.Context())
			if err != nil {
				return err
			}
			a.notify("Updated task %s (%s).", task.ID, task.Name)
			return nil
		},
	}
	addFormFlags(cmd)
	return cmd
}

// intentCommand builds toggle and delete, which run through the worker pool
// so several ids are handled in parallel.
func (a *App) intentCommand(use, short string) *cobra.Command {
	kind := worker.Toggle
	if use == "delete" {
		kind = worker.Delete
	}
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.store.Load(ctx); err != nil {
				return err
			}

			pool := worker.NewPool(a.store, a.logger, a.cfg.WorkerCount)
			pool.Start(ctx)
			defer pool.Stop()

			go func() {
				for _, id := range args {
					if err := pool.Submit(ctx, worker.Intent{Kind: kind, TaskID: id}); err != nil {
						return
					}
				}
			}()

			failed := 0
			for range args {
				var n worker.Notification
				select {
				case n = <-pool.Notifications():
				case <-ctx.Done():
					return ctx.Err()
				}
				if n.Err != nil {
					failed++
				}
				a.notify("%s", n.Message)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d: %w", failed, len(args), ErrIntentsFailed)
			}
			return nil
		},
	}
}

func (a *App) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download all tasks as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = a.cfg.Client.ExportDir
			}
			p, err := a.store.Export(cmd.Context(), dir)
			if err != nil {
				return err
			}
			a.notify("Saved %s.", p)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "Directory to save the export in (overrides GOTASK_EXPORT_DIR)")
	return cmd
}

// Message is what main prints for an error returned by a command.
func Message(err error) string {
	if errors.Is(err, ErrIntentsFailed) {
		return err.Error()
	}
	return state.UserMessage(err)
}
