package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the status command
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend and provider status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			fmt.Printf("Embedded store:     %s (%s)\n", a.store.Path(), a.store.Dialect())

			switch {
			case !a.manager.Configured():
				fmt.Println("Cloud backend:      not configured")
			case a.manager.Connected():
				fmt.Println("Cloud backend:      connected")
			default:
				fmt.Println("Cloud backend:      configured but unreachable")
			}

			fmt.Printf("Embedding provider: %s (%d dimensions)\n",
				a.provider.Name(), a.provider.Dimensions())
			return nil
		},
	}
}
