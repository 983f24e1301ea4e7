package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/internal/store"
)

// newTasksCmd creates the tasks command group
func newTasksCmd() *cobra.Command {
	var projectRef string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage tasks within a project",
		Long: `Manage tasks within a project.

Tasks are served from the project's configured backend. Status changes
append an immutable history row attributed to --actor.

Commands:
  tasks            List a project's tasks
  tasks add        Create a task
  tasks show       Show one task
  tasks set-status Change a task's status
  tasks history    Show a project's status transitions
  tasks remove     Delete a task and its history

Example:
  taskvault tasks -p abc123
  taskvault tasks add -p abc123 "Fix login bug"
  taskvault tasks set-status -p abc123 TASK_ID in_progress --actor alice`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, projectRef)
			if err != nil {
				return err
			}
			repos, err := a.factory.ForProject(ctx, p.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tUPDATED")
			cursor := ""
			for {
				page, err := repos.Tasks().List(ctx, p.ID, store.ListOptions{Cursor: cursor})
				if err != nil {
					return fmt.Errorf("list tasks: %w", err)
				}
				for _, t := range page.Items {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						t.ID, t.Status, t.Title, t.UpdatedAt.Format("2006-01-02 15:04"))
				}
				if page.NextCursor == "" {
					break
				}
				cursor = page.NextCursor
			}
			_ = w.Flush()
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&projectRef, "project", "p", "", "project ID or path (required)")
	_ = cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(newTasksAddCmd(&projectRef))
	cmd.AddCommand(newTasksShowCmd(&projectRef))
	cmd.AddCommand(newTasksSetStatusCmd(&projectRef))
	cmd.AddCommand(newTasksHistoryCmd(&projectRef))
	cmd.AddCommand(newTasksRemoveCmd(&projectRef))

	return cmd
}

// newTasksAddCmd creates the tasks add command
func newTasksAddCmd(projectRef *string) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, *projectRef)
			if err != nil {
				return err
			}
			repos, err := a.factory.ForProject(ctx, p.ID)
			if err != nil {
				return err
			}

			t, err := repos.Tasks().Create(ctx, &store.Task{
				ProjectID:   p.ID,
				Title:       args[0],
				Description: description,
			})
			if err != nil {
				return fmt.Errorf("create task: %w", err)
			}
			fmt.Printf("Created task %s (%s)\n", t.ID, t.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	return cmd
}

// newTasksShowCmd creates the tasks show command
func newTasksShowCmd(projectRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, *projectRef)
			if err != nil {
				return err
			}
			repos, err := a.factory.ForProject(ctx, p.ID)
			if err != nil {
				return err
			}

			t, err := repos.Tasks().Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ID:          %s\n", t.ID)
			fmt.Printf("Status:      %s\n", t.Status)
			fmt.Printf("Title:       %s\n", t.Title)
			if t.Description != "" {
				fmt.Printf("Description: %s\n", t.Description)
			}
			fmt.Printf("Created:     %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Updated:     %s\n", t.UpdatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

// newTasksSetStatusCmd creates the tasks set-status command
func newTasksSetStatusCmd(projectRef *string) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "set-status <task-id> <status>",
		Short: "Change a task's status",
		Long: `Change a task's status.

Valid statuses: todo, in_progress, blocked, done, cancelled.
The transition is recorded in the task's history, attributed to --actor.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := store.TaskStatus(args[1])
			if !store.ValidTaskStatus(status) {
				return fmt.Errorf("invalid status %q", args[1])
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, *projectRef)
			if err != nil {
				return err
			}
			repos, err := a.factory.ForProject(ctx, p.ID)
			if err != nil {
				return err
			}

			t, err := repos.Tasks().Update(ctx, args[0], store.TaskPatch{Status: &status, Actor: actor})
			if err != nil {
				return err
			}
			fmt.Printf("Task %s is now %s\n", t.ID, t.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", lockOwner(), "who made the change")
	return cmd
}

// newTasksHistoryCmd creates the tasks history command
func newTasksHistoryCmd(projectRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show a project's status transitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, *projectRef)
			if err != nil {
				return err
			}
			repos, err := a.factory.ForProject(ctx, p.ID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TASK\tFROM\tTO\tACTOR\tWHEN")
			cursor := ""
			for {
				page, err := repos.TaskHistory().List(ctx, p.ID, store.ListOptions{Cursor: cursor})
				if err != nil {
					return fmt.Errorf("list history: %w", err)
				}
				for _, h := range page.Items {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						h.TaskID, h.FromStatus, h.ToStatus, h.Actor, h.ChangedAt.Format("2006-01-02 15:04:05"))
				}
				if page.NextCursor == "" {
					break
				}
				cursor = page.NextCursor
			}
			_ = w.Flush()
			return nil
		},
	}
}

// newTasksRemoveCmd creates the tasks remove command
func newTasksRemoveCmd(projectRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Delete a task and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, *projectRef)
			if err != nil {
				return err
			}
			repos, err := a.factory.ForProject(ctx, p.ID)
			if err != nil {
				return err
			}

			if err := repos.Tasks().Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted task %s\n", args[0])
			return nil
		},
	}
}
