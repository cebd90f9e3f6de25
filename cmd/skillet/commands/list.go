package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed skills",
	Long:  `List every installed skill with its version, tier, and description.`,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	installed, err := svc.List(cmd.Context())
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		out := make([]map[string]any, 0, len(installed))
		for _, row := range installed {
			out = append(out, map[string]any{
				"name":         row.Name,
				"version":      row.Version,
				"description":  row.Description,
				"tier":         string(row.Tier),
				"installed_at": row.InstalledAt.Format(time.RFC3339),
			})
		}
		return outputJSON(out)
	default:
		if len(installed) == 0 {
			fmt.Println("No skills installed.")
			return nil
		}
		for _, row := range installed {
			fmt.Println(formatSkillLine(row))
		}
	}

	return nil
}
