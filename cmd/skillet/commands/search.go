package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search installed skills",
	Long: `Full-text search over installed skill names and descriptions.

The query uses FTS5 syntax: "word1 word2" for AND, "word1 OR word2" for
OR, "word*" for prefix matching.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(
		&searchLimit, "limit", 20, "Maximum number of results",
	)
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := svc.Search(cmd.Context(), args[0], searchLimit)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		out := make([]map[string]any, 0, len(results))
		for _, row := range results {
			out = append(out, map[string]any{
				"name":        row.Name,
				"version":     row.Version,
				"description": row.Description,
				"tier":        string(row.Tier),
				"rank":        row.Rank,
			})
		}
		return outputJSON(out)
	default:
		if len(results) == 0 {
			fmt.Println("No matching skills.")
			return nil
		}
		for _, row := range results {
			fmt.Println(formatSkillLine(row.InstalledSkill))
		}
	}

	return nil
}
