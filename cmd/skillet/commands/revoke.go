package commands

import (
	"fmt"

	"github.com/roasbeef/skillet/internal/skill"
	"github.com/spf13/cobra"
)

var revokeVersionFlag string

var revokeCmd = &cobra.Command{
	Use:   "revoke <name> <capability>",
	Short: "Revoke a capability from an installed skill",
	Long: `Permanently withdraw one capability from an installed skill's
grant. The revocation takes effect immediately: invocations already in
flight see the narrowed grant on their next capability check.

Revocation only narrows. Restoring a capability requires reinstalling
the skill.`,
	Args: cobra.ExactArgs(2),
	RunE: runRevoke,
}

func init() {
	revokeCmd.Flags().StringVar(
		&revokeVersionFlag, "version", "",
		"Skill version (default: latest installed)",
	)
}

func runRevoke(cmd *cobra.Command, args []string) error {
	cap, err := skill.ParseCapability(args[1])
	if err != nil {
		return err
	}

	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	err = svc.Revoke(cmd.Context(), args[0], revokeVersionFlag, cap)
	if err != nil {
		return err
	}

	fmt.Printf("Revoked %s from %s\n", cap, args[0])

	return nil
}
