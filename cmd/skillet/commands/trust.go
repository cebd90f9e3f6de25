package commands

import (
	"fmt"

	"github.com/roasbeef/skillet/internal/skill"
	"github.com/spf13/cobra"
)

var trustVersionFlag string

var trustCmd = &cobra.Command{
	Use:   "trust <name> <tier>",
	Short: "Change a skill's trust tier",
	Long: `Explicitly change the trust tier of an installed skill.

Tiers, from least to most trusted: untrusted, verified, local. Promotion
widens the sandbox budgets and, from untrusted, drops the OS-level
subprocess wrapper, so promote only skills whose bytecode you have
reviewed. The capability grant is not changed by this command.`,
	Args: cobra.ExactArgs(2),
	RunE: runTrust,
}

func init() {
	trustCmd.Flags().StringVar(
		&trustVersionFlag, "version", "",
		"Skill version (default: latest installed)",
	)

	rootCmd.AddCommand(trustCmd)
}

func runTrust(cmd *cobra.Command, args []string) error {
	tier, err := skill.ParseTrustTier(args[1])
	if err != nil {
		return err
	}

	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	err = svc.SetTrust(cmd.Context(), args[0], trustVersionFlag, tier)
	if err != nil {
		return err
	}

	fmt.Printf("Set %s to tier %s\n", args[0], tier)

	return nil
}
