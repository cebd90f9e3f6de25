package commands

import (
	"fmt"

	"github.com/roasbeef/skillet/internal/skill"
	"github.com/spf13/cobra"
)

var inspectVersionFlag string

var inspectCmd = &cobra.Command{
	Use:   "inspect <name>",
	Short: "Show a skill's capability breakdown",
	Long: `Show an installed skill's manifest details and its full
capability breakdown: own declarations, what each ancestor contributes
through inheritance, the currently effective grant, and any
revocations.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(
		&inspectVersionFlag, "version", "",
		"Skill version (default: latest installed)",
	)
}

func runInspect(cmd *cobra.Command, args []string) error {
	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := svc.Inspect(cmd.Context(), args[0], inspectVersionFlag)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		inherited := make(map[string][]string)
		for ancestor, set := range report.Resolution.Inherited {
			inherited[ancestor] = capabilityStrings(set)
		}
		revoked := make([]string, 0, len(report.Revocations))
		for _, rev := range report.Revocations {
			revoked = append(revoked, string(rev.Capability))
		}
		return outputJSON(map[string]any{
			"name":        report.Installed.Name,
			"version":     report.Installed.Version,
			"description": report.Installed.Description,
			"tier":        string(report.Installed.Tier),
			"own": capabilityStrings(
				report.Resolution.Own,
			),
			"inherited": inherited,
			"effective": capStringsSlice(report.Effective),
			"revoked":   revoked,
		})
	default:
		fmt.Print(formatInspect(report))
	}

	return nil
}

// capStringsSlice converts a capability slice to strings.
func capStringsSlice(caps []skill.Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
