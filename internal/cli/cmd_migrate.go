package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/migrate"
)

// newMigrateCmd creates the migrate command
func newMigrateCmd() *cobra.Command {
	var dryRun bool
	var pageSize int

	cmd := &cobra.Command{
		Use:   "migrate <project-id-or-path>",
		Short: "Move a project's data to the other backend",
		Long: `Migrate a project's tasks, history and memories to the other
storage backend and cut its storage mode over.

The copy is idempotent and resumable: records already present in the
target are skipped, so an interrupted run is finished by running
again. Cutover happens only when every record copied and source and
target counts agree.

Exit codes:
  0  migration complete (or clean dry run)
  2  copy finished but cutover was blocked; re-run after fixing
  1  migration could not run

Examples:
  taskvault migrate abc123 --dry-run   # Preview without writing
  taskvault migrate abc123             # Migrate and cut over`,
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

			locker := migrate.NewLocker(filepath.Join(a.cfg.DataDir, "locks"), lockOwner())
			m := migrate.New(a.factory, locker, nil)

			report, err := m.Run(ctx, migrate.Options{
				ProjectID: p.ID,
				DryRun:    dryRun,
				PageSize:  pageSize,
			})
			if report != nil {
				printReport(report)
			}
			if err != nil {
				if report != nil && report.Completed {
					// Copy ran to the end but cutover was blocked.
					return &exitError{code: 2, err: err}
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be copied without writing")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "records per source read (default 100)")
	return cmd
}

func printReport(r *migrate.Report) {
	verb := "Migrated"
	if r.DryRun {
		verb = "Would migrate"
	}
	fmt.Printf("%s project %s: %s -> %s\n\n", verb, r.ProjectID, r.From, r.To)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FAMILY\tCOPIED\tSKIPPED\tFAILED\tSOURCE\tTARGET")
	for _, fam := range []struct {
		name string
		rep  migrate.FamilyReport
	}{
		{"tasks", r.Tasks},
		{"task history", r.History},
		{"memories", r.Memories},
	} {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			fam.name, fam.rep.Copied, fam.rep.Skipped, fam.rep.Failed,
			fam.rep.SourceCount, fam.rep.TargetCount)
	}
	_ = w.Flush()
	fmt.Println()

	switch {
	case r.CutOver:
		fmt.Printf("Storage mode is now %s.\n", r.To)
	case r.DryRun:
		fmt.Println("Dry run; nothing was written.")
	default:
		fmt.Println("Storage mode unchanged.")
	}
}

// errorMessage prefers the user-facing message of a VaultError.
func errorMessage(err error) string {
	if verr := errs.AsVaultError(err); verr != nil {
		return verr.UserMessage()
	}
	return err.Error()
}
