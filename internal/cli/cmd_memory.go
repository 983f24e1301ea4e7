package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/taskvault/taskvault/internal/store"
)

// newMemoryCmd creates the memory command group
func newMemoryCmd() *cobra.Command {
	var projectRef string

	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage conversation memory",
		Long: `Manage a project's conversation memory.

Memory entries are append-only: corrections are new entries, never
in-place edits. On the cloud backend each entry gets an embedding
vector at write time and 'memory search' runs native similarity
search; the embedded backend stores entries without search support.

Commands:
  memory           List a project's memory entries
  memory add       Record an entry
  memory search    Similarity search (cloud backend only)
  memory remove    Delete an entry

Example:
  taskvault memory add -p abc123 -s session-1 "User prefers dark mode"
  taskvault memory search -p abc123 "UI preferences" --top-k 5`,
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
			_, _ = fmt.Fprintln(w, "ID\tSESSION\tVECTOR\tCONTENT")
			cursor := ""
			for {
				page, err := repos.Memories().List(ctx, p.ID, store.ListOptions{Cursor: cursor})
				if err != nil {
					return fmt.Errorf("list memories: %w", err)
				}
				for _, m := range page.Items {
					vector := "-"
					if len(m.Embedding) > 0 {
						vector = fmt.Sprintf("%d", len(m.Embedding))
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.SessionID, vector, truncate(m.Content, 60))
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

	cmd.AddCommand(newMemoryAddCmd(&projectRef))
	cmd.AddCommand(newMemorySearchCmd(&projectRef))
	cmd.AddCommand(newMemoryRemoveCmd(&projectRef))

	return cmd
}

// newMemoryAddCmd creates the memory add command
func newMemoryAddCmd(projectRef *string) *cobra.Command {
	var sessionID, taskID string

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Record a memory entry",
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

			m, err := repos.Memories().Create(ctx, &store.Memory{
				ProjectID: p.ID,
				SessionID: sessionID,
				TaskID:    taskID,
				Content:   args[0],
			})
			if err != nil {
				return fmt.Errorf("create memory: %w", err)
			}
			if len(m.Embedding) > 0 {
				fmt.Printf("Recorded memory %s (%d-dim vector)\n", m.ID, len(m.Embedding))
			} else {
				fmt.Printf("Recorded memory %s (no vector)\n", m.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session the entry belongs to")
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "related task ID")
	return cmd
}

// newMemorySearchCmd creates the memory search command
func newMemorySearchCmd(projectRef *string) *cobra.Command {
	var topK int
	var minScore float64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Similarity search over a project's memory",
		Long: `Search a project's memory by semantic similarity.

Only available when the project is on the cloud backend; the embedded
store fails with CAPABILITY_UNSUPPORTED. Results are ordered by
similarity, most recent first on ties.`,
		Args: cobra.ExactArgs(1),
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

			matches, err := repos.Memories().Search(ctx, p.ID, args[0], topK, minScore)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("No matches.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "SCORE\tID\tCONTENT")
			for _, m := range matches {
				_, _ = fmt.Fprintf(w, "%.3f\t%s\t%s\n", m.Score, m.Memory.ID, truncate(m.Memory.Content, 70))
			}
			_ = w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 10, "maximum number of results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum similarity score")
	return cmd
}

// newMemoryRemoveCmd creates the memory remove command
func newMemoryRemoveCmd(projectRef *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <memory-id>",
		Short: "Delete a memory entry",
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

			if err := repos.Memories().Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted memory %s\n", args[0])
			return nil
		},
	}
}

// truncate shortens s to at most n runes, never splitting a multibyte
// character.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}
