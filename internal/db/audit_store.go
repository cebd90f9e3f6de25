package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/skill"
)

// AuditStore persists audit entries. It implements audit.Recorder; the
// table is append-only, with no update or delete paths.
type AuditStore struct {
	store *Store
}

// NewAuditStore creates an audit recorder over the given store.
func NewAuditStore(store *Store) *AuditStore {
	return &AuditStore{store: store}
}

// Record implements the audit.Recorder interface.
func (a *AuditStore) Record(ctx context.Context, entry *audit.Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	exercised := make([]string, len(entry.Exercised))
	for i, c := range entry.Exercised {
		exercised[i] = string(c)
	}

	res, err := a.store.db.ExecContext(ctx, `
		INSERT INTO audit_entries (
			invocation_id, skill, tier, kind, capability, decision,
			exercised, input_hash, output_hash, fuel_consumed,
			memory_peak_bytes, duration_ns, success, error,
			created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.InvocationID, entry.Skill, string(entry.Tier),
		string(entry.Kind), string(entry.Capability),
		string(entry.Decision), strings.Join(exercised, ","),
		entry.InputHash, entry.OutputHash, int64(entry.FuelConsumed),
		entry.MemoryPeakBytes, entry.Duration.Nanoseconds(),
		entry.Success, entry.Error, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w",
			MapSQLError(err))
	}

	entry.ID, err = res.LastInsertId()

	return err
}

// AuditFilter narrows an audit trail query. Zero values mean "no filter".
type AuditFilter struct {
	// InvocationID selects entries of one invocation.
	InvocationID string

	// Skill selects entries of one skill, as name@version.
	Skill string

	// Kind selects one entry granularity.
	Kind audit.EntryKind

	// DeniedOnly selects only denied capability checks.
	DeniedOnly bool

	// Limit caps the number of returned entries; zero means no cap.
	Limit int
}

// Trail returns audit entries matching the filter, oldest first.
func (a *AuditStore) Trail(ctx context.Context,
	filter AuditFilter) ([]*audit.Entry, error) {

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, invocation_id, skill, tier, kind, capability,
		       decision, exercised, input_hash, output_hash,
		       fuel_consumed, memory_peak_bytes, duration_ns, success,
		       error, created_at
		FROM audit_entries WHERE 1 = 1
	`)

	var args []any
	if filter.InvocationID != "" {
		query.WriteString(" AND invocation_id = ?")
		args = append(args, filter.InvocationID)
	}
	if filter.Skill != "" {
		query.WriteString(" AND skill = ?")
		args = append(args, filter.Skill)
	}
	if filter.Kind != "" {
		query.WriteString(" AND kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.DeniedOnly {
		query.WriteString(" AND decision = ?")
		args = append(args, string(audit.DecisionDenied))
	}

	query.WriteString(" ORDER BY id")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := a.store.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w",
			MapSQLError(err))
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var (
			entry      audit.Entry
			tier       string
			kind       string
			capability string
			decision   string
			exercised  string
			durationNS int64
			fuel       int64
		)
		err := rows.Scan(
			&entry.ID, &entry.InvocationID, &entry.Skill, &tier,
			&kind, &capability, &decision, &exercised,
			&entry.InputHash, &entry.OutputHash, &fuel,
			&entry.MemoryPeakBytes, &durationNS, &entry.Success,
			&entry.Error, &entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit "+
				"entry: %w", err)
		}

		entry.Tier = skill.TrustTier(tier)
		entry.Kind = audit.EntryKind(kind)
		entry.Capability = skill.Capability(capability)
		entry.Decision = audit.Decision(decision)
		entry.FuelConsumed = uint64(fuel)
		entry.Duration = time.Duration(durationNS)
		if exercised != "" {
			for _, c := range strings.Split(exercised, ",") {
				entry.Exercised = append(
					entry.Exercised, skill.Capability(c),
				)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
