package db

import (
	"context"
	"fmt"

	"github.com/roasbeef/skillet/internal/skill"
)

// SkillSearchResult is one skill search hit with its FTS5 rank.
type SkillSearchResult struct {
	InstalledSkill
	Rank float64
}

// SearchSkills performs a full-text search over installed skill names and
// descriptions using FTS5. The query uses FTS5 query syntax (e.g.
// "word1 word2" for AND, "word1 OR word2" for OR).
func (s *Store) SearchSkills(ctx context.Context, query string,
	limit int) ([]SkillSearchResult, error) {

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.version, s.description, s.tier,
		       s.module_path, s.manifest_json, s.installed_at, fts.rank
		FROM skills s
		JOIN skills_fts fts ON s.id = fts.rowid
		WHERE skills_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search skills: %w",
			MapSQLError(err))
	}
	defer rows.Close()

	var results []SkillSearchResult
	for rows.Next() {
		var (
			r    SkillSearchResult
			tier string
		)
		err := rows.Scan(
			&r.ID, &r.Name, &r.Version, &r.Description, &tier,
			&r.ModulePath, &r.ManifestJSON, &r.InstalledAt,
			&r.Rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search "+
				"result: %w", err)
		}
		r.Tier = skill.TrustTier(tier)

		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w",
			err)
	}

	return results, nil
}
