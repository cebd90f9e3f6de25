package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <name> <version>",
	Short: "Remove an installed skill",
	Long: `Remove an installed skill and its permission grant. The audit
trail of past invocations survives removal.`,
	Args: cobra.ExactArgs(2),
	RunE: runUninstall,
}

func runUninstall(cmd *cobra.Command, args []string) error {
	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := svc.Uninstall(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}

	fmt.Printf("Uninstalled %s@%s\n", args[0], args[1])

	return nil
}
