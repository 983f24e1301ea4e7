package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/internal/store"
)

// newProjectsCmd creates the projects command group
func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage registered projects",
		Long: `Manage projects registered with taskvault.

The registry always lives in the embedded store; each project's
storage mode selects the backend serving its tasks and memories.

Commands:
  projects            List all registered projects
  projects add        Register a project directory
  projects show       Show one project and its settings
  projects remove     Unregister a project
  projects set-mode   Override the storage mode of an empty project

Example:
  taskvault projects add .                # Register current directory
  taskvault projects show abc123          # Inspect a project
  taskvault projects set-mode abc123 cloud`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)
			return listProjects(ctx, a)
		},
	}

	cmd.AddCommand(newProjectsAddCmd())
	cmd.AddCommand(newProjectsShowCmd())
	cmd.AddCommand(newProjectsRemoveCmd())
	cmd.AddCommand(newProjectsSetModeCmd())

	return cmd
}

func listProjects(ctx context.Context, a *app) error {
	projects := a.factory.Projects()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tPATH\tMODE\tACTIVE")

	cursor := ""
	total := 0
	for {
		page, err := projects.List(ctx, store.ListOptions{Cursor: cursor})
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}
		for _, p := range page.Items {
			settings, err := projects.GetSettings(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("settings for %s: %w", p.ID, err)
			}
			active := ""
			if p.Active {
				active = "*"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Path, settings.StorageMode, active)
			total++
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	_ = w.Flush()

	if total == 0 {
		fmt.Println("No projects registered. Run 'taskvault projects add .' in a project directory.")
	}
	return nil
}

// newProjectsAddCmd creates the projects add command
func newProjectsAddCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Register a project directory",
		Long: `Register a project directory with taskvault.

If no path is provided, the current directory is used. New projects
start in local storage mode; use the migrate command to move one to
the cloud backend.

Examples:
  taskvault projects add                 # Register current directory
  taskvault projects add ~/repos/myapp   # Register a specific directory
  taskvault projects add . --name myapp  # Override the derived name`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if name == "" {
				name = filepath.Base(abs)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := a.factory.Projects().Create(ctx, &store.Project{
				Name:   name,
				Path:   abs,
				Active: true,
			})
			if err != nil {
				return fmt.Errorf("register project: %w", err)
			}

			fmt.Printf("Registered project:\n")
			fmt.Printf("  ID:   %s\n", p.ID)
			fmt.Printf("  Name: %s\n", p.Name)
			fmt.Printf("  Path: %s\n", p.Path)
			fmt.Printf("  Mode: %s\n", store.ModeLocal)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "project name (default: directory name)")
	return cmd
}

// newProjectsShowCmd creates the projects show command
func newProjectsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id-or-path>",
		Short: "Show one project and its settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, args[0])
			if err != nil {
				return err
			}
			settings, err := a.factory.Projects().GetSettings(ctx, p.ID)
			if err != nil {
				return err
			}

			fmt.Printf("ID:      %s\n", p.ID)
			fmt.Printf("Name:    %s\n", p.Name)
			fmt.Printf("Path:    %s\n", p.Path)
			fmt.Printf("Active:  %v\n", p.Active)
			fmt.Printf("Created: %s\n", p.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Printf("Mode:    %s\n", settings.StorageMode)
			if settings.EmbeddingModel != "" {
				fmt.Printf("Model:   %s\n", settings.EmbeddingModel)
			}
			return nil
		},
	}
}

// newProjectsRemoveCmd creates the projects remove command
func newProjectsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id-or-path>",
		Short: "Unregister a project",
		Long: `Unregister a project and delete its records from the embedded store.

Cloud-side records are not touched; remove them with your document
store's tooling if the project was in cloud mode.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, args[0])
			if err != nil {
				return err
			}
			if err := a.factory.Projects().Delete(ctx, p.ID); err != nil {
				return fmt.Errorf("remove project: %w", err)
			}
			fmt.Printf("Removed project %s (%s)\n", p.ID, p.Name)
			return nil
		},
	}
}

// newProjectsSetModeCmd creates the projects set-mode command
func newProjectsSetModeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-mode <id-or-path> <local|cloud>",
		Short: "Override the storage mode of an empty project",
		Long: `Set a project's storage mode directly, without migrating.

This is refused when the project already has tasks, history or
memories on its current backend: flipping the mode would orphan them.
Use 'taskvault migrate' to move a non-empty project.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := store.StorageMode(args[1])
			if !mode.Valid() {
				return fmt.Errorf("invalid storage mode %q (want local or cloud)", args[1])
			}

			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			p, err := resolveProject(ctx, a, args[0])
			if err != nil {
				return err
			}

			empty, err := projectEmpty(ctx, a, p.ID)
			if err != nil {
				return err
			}
			if !empty {
				return fmt.Errorf("project %s has records on its current backend; use 'taskvault migrate %s' instead", p.ID, p.ID)
			}

			if err := a.factory.Projects().SetStorageMode(ctx, p.ID, mode); err != nil {
				return err
			}
			fmt.Printf("Storage mode for %s set to %s\n", p.ID, mode)
			return nil
		},
	}
}

// projectEmpty reports whether the project has any records on its
// current backend.
func projectEmpty(ctx context.Context, a *app, projectID string) (bool, error) {
	repos, err := a.factory.ForProject(ctx, projectID)
	if err != nil {
		return false, err
	}
	one := store.ListOptions{Limit: 1}

	tasks, err := repos.Tasks().List(ctx, projectID, one)
	if err != nil {
		return false, err
	}
	if len(tasks.Items) > 0 {
		return false, nil
	}
	history, err := repos.TaskHistory().List(ctx, projectID, one)
	if err != nil {
		return false, err
	}
	if len(history.Items) > 0 {
		return false, nil
	}
	memories, err := repos.Memories().List(ctx, projectID, one)
	if err != nil {
		return false, err
	}
	return len(memories.Items) == 0, nil
}
