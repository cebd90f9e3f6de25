package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/compose"
	"github.com/roasbeef/skillet/internal/db"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/roasbeef/skillet/internal/skills"
)

// openStore opens the database, running migrations if needed.
func openStore() (*db.Store, error) {
	path := dbPath
	if path == "" {
		var err error
		path, err = db.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}

	store, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return store, nil
}

// openService opens the store and wires the skills service over it. The
// caller owns the store and must close it.
func openService() (*skills.Service, *db.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	return skills.NewService(store, sandbox.DefaultHostServices()), store,
		nil
}

// formatSkillLine formats one installed skill for listings.
func formatSkillLine(row db.InstalledSkill) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s@%s [%s]", row.Name, row.Version,
		row.Tier))
	if row.Description != "" {
		sb.WriteString(" - " + row.Description)
	}

	return sb.String()
}

// formatCaps renders a capability slice as a comma-separated list.
func formatCaps(caps []skill.Capability) string {
	if len(caps) == 0 {
		return "(none)"
	}

	strs := make([]string, len(caps))
	for i, c := range caps {
		strs[i] = string(c)
	}

	return strings.Join(strs, ", ")
}

// formatInspect formats the full inspection view of an installed skill.
func formatInspect(report *skills.InspectReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Skill: %s@%s\n",
		report.Installed.Name, report.Installed.Version))
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	if report.Installed.Description != "" {
		sb.WriteString(fmt.Sprintf("Description: %s\n",
			report.Installed.Description))
	}
	sb.WriteString(fmt.Sprintf("Tier: %s\n", report.Installed.Tier))
	sb.WriteString(fmt.Sprintf("Installed: %s\n",
		report.Installed.InstalledAt.Format(time.RFC3339)))

	sb.WriteString(strings.Repeat("-", 60) + "\n")
	sb.WriteString(fmt.Sprintf("Own capabilities: %s\n",
		formatCaps(skill.SortedCapabilities(report.Resolution.Own))))

	if len(report.Resolution.Inherited) > 0 {
		ancestors := make([]string, 0, len(report.Resolution.Inherited))
		for ancestor := range report.Resolution.Inherited {
			ancestors = append(ancestors, ancestor)
		}
		sort.Strings(ancestors)

		sb.WriteString("Inherited:\n")
		for _, ancestor := range ancestors {
			set := report.Resolution.Inherited[ancestor]
			sb.WriteString(fmt.Sprintf("  from %s: %s\n", ancestor,
				formatCaps(skill.SortedCapabilities(set))))
		}
	}

	sb.WriteString(fmt.Sprintf("Effective: %s\n",
		formatCaps(report.Effective)))

	if len(report.Revocations) > 0 {
		sb.WriteString("Revoked:\n")
		for _, rev := range report.Revocations {
			sb.WriteString(fmt.Sprintf("  %s at %s\n",
				rev.Capability,
				rev.RevokedAt.Format(time.RFC3339)))
		}
	}

	return sb.String()
}

// formatResolution formats the composed capability surface shown during
// install approval.
func formatResolution(res *compose.Resolution) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Own capabilities: %s\n",
		formatCaps(skill.SortedCapabilities(res.Own))))

	for _, ancestor := range res.VisitOrder {
		set, ok := res.Inherited[ancestor]
		if !ok {
			continue
		}
		sb.WriteString(fmt.Sprintf("Inherited from %s: %s\n", ancestor,
			formatCaps(skill.SortedCapabilities(set))))
	}

	sb.WriteString(fmt.Sprintf("Combined grant: %s\n",
		formatCaps(skill.SortedCapabilities(res.Combined))))

	if len(res.Config) > 0 {
		caps := make([]skill.Capability, 0, len(res.Config))
		for c := range res.Config {
			caps = append(caps, c)
		}
		sort.Slice(caps, func(i, j int) bool {
			return caps[i] < caps[j]
		})

		sb.WriteString("Capability config:\n")
		for _, c := range caps {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", c,
				res.Config[c]))
		}
	}

	return sb.String()
}

// formatAuditEntry formats one audit trail entry.
func formatAuditEntry(entry *audit.Entry) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("#%d %s %s", entry.ID,
		entry.Timestamp.Format(time.RFC3339), entry.Skill))

	switch entry.Kind {
	case audit.KindCapabilityCheck:
		sb.WriteString(fmt.Sprintf(" check %s: %s", entry.Capability,
			entry.Decision))
	case audit.KindInvocation:
		outcome := "ok"
		if !entry.Success {
			outcome = "failed"
		}
		sb.WriteString(fmt.Sprintf(" invocation %s (fuel=%d dur=%s)",
			outcome, entry.FuelConsumed, entry.Duration))
		if len(entry.Exercised) > 0 {
			sb.WriteString(" exercised=" +
				formatCaps(entry.Exercised))
		}
	}

	if entry.Error != "" {
		sb.WriteString(" error=" + entry.Error)
	}
	sb.WriteString(fmt.Sprintf("\n  invocation=%s tier=%s",
		entry.InvocationID, entry.Tier))

	return sb.String()
}

// outputJSON outputs data as JSON.
func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
