package commands

import (
	"fmt"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/db"
	"github.com/spf13/cobra"
)

var (
	auditInvocation string
	auditSkill      string
	auditKind       string
	auditDenied     bool
	auditLimit      int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the audit trail",
	Long: `Query the append-only audit trail of capability checks and
invocation summaries. The trail survives skill removal, so it answers
"what did this skill actually do" even after an uninstall.`,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().StringVar(
		&auditInvocation, "invocation", "",
		"Filter to one invocation ID",
	)
	auditCmd.Flags().StringVar(
		&auditSkill, "skill", "",
		"Filter to one skill as name@version",
	)
	auditCmd.Flags().StringVar(
		&auditKind, "kind", "",
		"Filter by entry kind: check, invocation",
	)
	auditCmd.Flags().BoolVar(
		&auditDenied, "denied", false,
		"Only denied capability checks",
	)
	auditCmd.Flags().IntVar(
		&auditLimit, "limit", 100, "Maximum number of entries",
	)
}

func runAudit(cmd *cobra.Command, args []string) error {
	filter := db.AuditFilter{
		InvocationID: auditInvocation,
		Skill:        auditSkill,
		DeniedOnly:   auditDenied,
		Limit:        auditLimit,
	}

	switch auditKind {
	case "":
	case "check":
		filter.Kind = audit.KindCapabilityCheck
	case "invocation":
		filter.Kind = audit.KindInvocation
	default:
		return fmt.Errorf("unknown audit kind %q", auditKind)
	}

	svc, store, err := openService()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := svc.AuditTrail(cmd.Context(), filter)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		out := make([]map[string]any, 0, len(entries))
		for _, entry := range entries {
			row := map[string]any{
				"id":            entry.ID,
				"invocation_id": entry.InvocationID,
				"skill":         entry.Skill,
				"tier":          string(entry.Tier),
				"kind":          string(entry.Kind),
				"success":       entry.Success,
				"timestamp": entry.Timestamp.Format(
					time.RFC3339,
				),
			}
			if entry.Capability != "" {
				row["capability"] = string(entry.Capability)
				row["decision"] = string(entry.Decision)
			}
			if entry.Error != "" {
				row["error"] = entry.Error
			}
			out = append(out, row)
		}
		return outputJSON(out)
	default:
		if len(entries) == 0 {
			fmt.Println("No matching audit entries.")
			return nil
		}
		for _, entry := range entries {
			fmt.Println(formatAuditEntry(entry))
		}
	}

	return nil
}
