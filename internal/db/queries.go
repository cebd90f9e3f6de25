package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roasbeef/skillet/internal/skill"
)

// DBTX is the subset of database/sql methods queries run against, satisfied
// by both *sql.DB and *sql.Tx so the same query code works inside and
// outside transactions.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries bundles the raw SQL statements against one DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries instance over the given connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// InstalledSkill is one row of the skills table.
type InstalledSkill struct {
	ID           int64
	Name         string
	Version      string
	Description  string
	Tier         skill.TrustTier
	ModulePath   string
	ManifestJSON string
	InstalledAt  time.Time
}

// Manifest decodes the stored manifest JSON.
func (s *InstalledSkill) Manifest() (*skill.SkillManifest, error) {
	var m skill.SkillManifest
	if err := json.Unmarshal([]byte(s.ManifestJSON), &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest for "+
			"%s@%s: %w", s.Name, s.Version, err)
	}

	return &m, nil
}

// Ref returns the name@version identifier used in audit entries.
func (s *InstalledSkill) Ref() string {
	return s.Name + "@" + s.Version
}

// InsertSkill stores one installed skill and returns its row ID.
func (q *Queries) InsertSkill(ctx context.Context,
	m *skill.SkillManifest) (int64, error) {

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("failed to encode manifest: %w", err)
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO skills (name, version, description, tier,
		                    module_path, manifest_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.Name, m.Version, m.Description, string(m.Tier), m.ModulePath,
		string(manifestJSON))
	if err != nil {
		return 0, MapSQLError(err)
	}

	return res.LastInsertId()
}

// UpdateSkillTier rewrites a skill's trust tier, keeping the stored
// manifest in agreement with the row.
func (q *Queries) UpdateSkillTier(ctx context.Context, skillID int64,
	tier skill.TrustTier, manifestJSON string) error {

	res, err := q.db.ExecContext(ctx, `
		UPDATE skills SET tier = ?, manifest_json = ? WHERE id = ?
	`, string(tier), manifestJSON, skillID)
	if err != nil {
		return MapSQLError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

const installedSkillColumns = `
	id, name, version, description, tier, module_path, manifest_json,
	installed_at`

// scanSkill scans one skills row.
func scanSkill(row interface{ Scan(...any) error }) (InstalledSkill, error) {
	var (
		s    InstalledSkill
		tier string
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Version, &s.Description, &tier,
		&s.ModulePath, &s.ManifestJSON, &s.InstalledAt,
	)
	if err != nil {
		return InstalledSkill{}, err
	}
	s.Tier = skill.TrustTier(tier)

	return s, nil
}

// GetSkill fetches one skill by exact name and version.
func (q *Queries) GetSkill(ctx context.Context, name,
	version string) (InstalledSkill, error) {

	row := q.db.QueryRowContext(ctx, `
		SELECT`+installedSkillColumns+`
		FROM skills WHERE name = ? AND version = ?
	`, name, version)

	return scanSkill(row)
}

// GetLatestSkill fetches the most recently installed version of a skill.
func (q *Queries) GetLatestSkill(ctx context.Context,
	name string) (InstalledSkill, error) {

	row := q.db.QueryRowContext(ctx, `
		SELECT`+installedSkillColumns+`
		FROM skills WHERE name = ?
		ORDER BY installed_at DESC, id DESC LIMIT 1
	`, name)

	return scanSkill(row)
}

// ListSkills returns all installed skills in name order.
func (q *Queries) ListSkills(ctx context.Context) ([]InstalledSkill, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT`+installedSkillColumns+`
		FROM skills ORDER BY name, version
	`)
	if err != nil {
		return nil, MapSQLError(err)
	}
	defer rows.Close()

	var skills []InstalledSkill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, s)
	}

	return skills, rows.Err()
}

// DeleteSkill removes one installed skill. Grants and revocations cascade;
// audit entries are keyed by name@version and deliberately survive.
func (q *Queries) DeleteSkill(ctx context.Context, name,
	version string) error {

	res, err := q.db.ExecContext(ctx, `
		DELETE FROM skills WHERE name = ? AND version = ?
	`, name, version)
	if err != nil {
		return MapSQLError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// GrantRow is one row of the permission_grants table.
type GrantRow struct {
	ID         int64
	SkillID    int64
	Capability skill.Capability
	Config     string
	ApprovedAt time.Time
}

// InsertGrant stores one approved capability for a skill.
func (q *Queries) InsertGrant(ctx context.Context, skillID int64,
	capability skill.Capability, config string) error {

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO permission_grants (skill_id, capability, config)
		VALUES (?, ?, ?)
	`, skillID, string(capability), config)
	if err != nil {
		return MapSQLError(err)
	}

	return nil
}

// ListGrants returns the approved capabilities for a skill.
func (q *Queries) ListGrants(ctx context.Context,
	skillID int64) ([]GrantRow, error) {

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, skill_id, capability, config, approved_at
		FROM permission_grants WHERE skill_id = ?
		ORDER BY capability
	`, skillID)
	if err != nil {
		return nil, MapSQLError(err)
	}
	defer rows.Close()

	var grants []GrantRow
	for rows.Next() {
		var (
			g   GrantRow
			cap string
		)
		err := rows.Scan(
			&g.ID, &g.SkillID, &cap, &g.Config, &g.ApprovedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		g.Capability = skill.Capability(cap)
		grants = append(grants, g)
	}

	return grants, rows.Err()
}

// RevocationRow is one row of the capability_revocations table.
type RevocationRow struct {
	ID         int64
	SkillID    int64
	Capability skill.Capability
	RevokedAt  time.Time
}

// InsertRevocation stores one capability revocation.
func (q *Queries) InsertRevocation(ctx context.Context, skillID int64,
	capability skill.Capability) error {

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO capability_revocations (skill_id, capability)
		VALUES (?, ?)
	`, skillID, string(capability))
	if err != nil {
		return MapSQLError(err)
	}

	return nil
}

// ListRevocations returns the revocations for a skill in the order they
// happened.
func (q *Queries) ListRevocations(ctx context.Context,
	skillID int64) ([]RevocationRow, error) {

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, skill_id, capability, revoked_at
		FROM capability_revocations WHERE skill_id = ?
		ORDER BY id
	`, skillID)
	if err != nil {
		return nil, MapSQLError(err)
	}
	defer rows.Close()

	var revocations []RevocationRow
	for rows.Next() {
		var (
			r   RevocationRow
			cap string
		)
		err := rows.Scan(&r.ID, &r.SkillID, &cap, &r.RevokedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan "+
				"revocation: %w", err)
		}
		r.Capability = skill.Capability(cap)
		revocations = append(revocations, r)
	}

	return revocations, rows.Err()
}
