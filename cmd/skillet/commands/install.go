package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/roasbeef/skillet/internal/compose"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/roasbeef/skillet/internal/skills"
	"github.com/spf13/cobra"
)

var installYes bool

var installCmd = &cobra.Command{
	Use:   "install <manifest.json>",
	Short: "Install a skill from a manifest",
	Long: `Install a skill from a JSON manifest file.

Installation resolves the dependency graph against already-installed
skills, composes the capability surface from the inheritance chain, and
asks for approval of the combined grant before persisting anything. The
approval prompt always shows the full composed set, so a capability
inherited from a parent skill cannot slip past unseen.`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

var planCmd = &cobra.Command{
	Use:   "plan <manifest.json>",
	Short: "Preview an installation without changing anything",
	Long: `Resolve the dependency graph for a manifest and print the
install order. Cycles, version conflicts, and mutual exclusions abort
the plan. Nothing is persisted.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	installCmd.Flags().BoolVarP(
		&installYes, "yes", "y", false,
		"Approve the composed capability grant without prompting",
	)
}

func runInstall(cmd *cobra.Command, args []string) error {
	manifest, err := skill.LoadManifest(args[0])
	if err != nil {
		return err
	}

	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	approver := skills.AutoApprove
	if !installYes {
		approver = promptApprover(cmd)
	}

	report, err := svc.Install(cmd.Context(), manifest, approver)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(map[string]any{
			"skill":   manifest.Name,
			"version": manifest.Version,
			"order":   report.Plan.Order,
			"effective": capabilityStrings(
				report.Resolution.Combined,
			),
		})
	default:
		fmt.Printf("Installed %s@%s\n", manifest.Name,
			manifest.Version)
		fmt.Printf("  Grant: %s\n", formatCaps(
			skill.SortedCapabilities(report.Resolution.Combined),
		))
	}

	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	manifest, err := skill.LoadManifest(args[0])
	if err != nil {
		return err
	}

	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	plan, err := svc.PlanInstall(cmd.Context(), manifest)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(map[string]any{
			"skill": manifest.Name,
			"order": plan.Order,
		})
	default:
		fmt.Printf("Install plan for %s@%s:\n", manifest.Name,
			manifest.Version)
		for i, name := range plan.Order {
			fmt.Printf("  %d. %s\n", i+1, name)
		}
	}

	return nil
}

// promptApprover shows the composed capability surface and asks for
// confirmation on the command's input stream.
func promptApprover(cmd *cobra.Command) skills.Approver {
	return func(ctx context.Context, m *skill.SkillManifest,
		res *compose.Resolution) (bool, error) {

		fmt.Printf("Installing %s@%s requires approval of this "+
			"capability grant:\n\n", m.Name, m.Version)
		fmt.Print(formatResolution(res))
		fmt.Print("\nApprove? [y/N] ")

		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, nil
		}

		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

// capabilityStrings converts a capability set to sorted strings for JSON
// output.
func capabilityStrings(set skill.CapabilitySet) []string {
	caps := skill.SortedCapabilities(set)
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
