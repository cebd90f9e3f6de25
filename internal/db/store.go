package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	prand "math/rand"
	"time"

	"github.com/roasbeef/skillet/internal/permission"
	"github.com/roasbeef/skillet/internal/skill"
)

const (
	// DefaultNumTxRetries is the default number of times we'll retry a
	// transaction if it fails with an error that permits transaction
	// repetition.
	DefaultNumTxRetries = 10

	// DefaultInitialRetryDelay is the default initial delay between
	// retries. This will be used to generate a random delay between -50%
	// and +50% of this value, so 20 to 60 milliseconds. The retry will be
	// doubled after each attempt until we reach DefaultMaxRetryDelay. We
	// start with a random value to avoid multiple goroutines that are
	// created at the same time to effectively retry at the same time.
	DefaultInitialRetryDelay = time.Millisecond * 40

	// DefaultMaxRetryDelay is the default maximum delay between retries.
	DefaultMaxRetryDelay = time.Second * 3
)

// ErrSkillNotFound is returned when a lookup names a skill that is not
// installed.
var ErrSkillNotFound = errors.New("skill not installed")

// Store wraps the raw queries with transaction support and the business
// logic methods the installation and execution pipeline uses.
type Store struct {
	db      *sql.DB
	queries *Queries
}

// NewStore creates a new Store instance wrapping the given database
// connection.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:      db,
		queries: New(db),
	}
}

// Queries returns the underlying query set for direct access.
func (s *Store) Queries() *Queries {
	return s.queries
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// randRetryDelay returns a random retry delay between -50% and +50% of the
// configured delay that is doubled for each attempt and capped at a max
// value.
func randRetryDelay(attempt int) time.Duration {
	halfDelay := DefaultInitialRetryDelay / 2
	randDelay := prand.Int63n(int64(DefaultInitialRetryDelay)) //nolint:gosec

	// 50% plus 0%-100% gives us the range of 50%-150%.
	initialDelay := halfDelay + time.Duration(randDelay)

	if attempt == 0 {
		return initialDelay
	}

	// Double the delay for each subsequent attempt, capped at the max.
	factor := time.Duration(math.Pow(2, math.Min(float64(attempt), 32)))
	actualDelay := initialDelay * factor //nolint:durationcheck
	if actualDelay > DefaultMaxRetryDelay {
		return DefaultMaxRetryDelay
	}

	return actualDelay
}

// TxFunc is the function signature for transaction callbacks. The callback
// receives a Queries instance bound to the transaction.
type TxFunc func(ctx context.Context, q *Queries) error

// WithTx executes the given function within a database transaction,
// retrying with randomized exponential backoff when the database reports a
// serialization or deadlock error.
func (s *Store) WithTx(ctx context.Context, fn TxFunc) error {
	for attempt := 0; attempt < DefaultNumTxRetries; attempt++ {
		err := s.tryTx(ctx, fn)
		if err == nil {
			return nil
		}

		if !IsSerializationOrDeadlockError(err) {
			return err
		}

		time.Sleep(randRetryDelay(attempt))
	}

	return ErrRetriesExceeded
}

// tryTx runs one transaction attempt.
func (s *Store) tryTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MapSQLError(err)
	}

	// Rollback is safe to call even if the tx is already closed, so if
	// the tx commits successfully, this is a no-op.
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, New(tx)); err != nil {
		return MapSQLError(err)
	}

	if err := tx.Commit(); err != nil {
		return MapSQLError(err)
	}

	return nil
}

// InstallSkill stores a manifest together with its approved grant in one
// atomic transaction, so a skill can never exist half-installed without
// its permissions.
func (s *Store) InstallSkill(ctx context.Context, m *skill.SkillManifest,
	grant *permission.Grant) (int64, error) {

	var skillID int64
	err := s.WithTx(ctx, func(ctx context.Context, q *Queries) error {
		id, err := q.InsertSkill(ctx, m)
		if err != nil {
			return err
		}
		skillID = id

		if grant == nil {
			return nil
		}

		caps := skill.SortedCapabilities(grant.Capabilities)
		for _, c := range caps {
			err := q.InsertGrant(ctx, id, c, grant.Config[c])
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to install %s@%s: %w", m.Name,
			m.Version, err)
	}

	return skillID, nil
}

// GetInstalled looks up an installed skill. An empty version selects the
// most recently installed one.
func (s *Store) GetInstalled(ctx context.Context, name,
	version string) (*InstalledSkill, error) {

	var (
		row InstalledSkill
		err error
	)
	if version == "" {
		row, err = s.queries.GetLatestSkill(ctx, name)
	} else {
		row, err = s.queries.GetSkill(ctx, name, version)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
	}
	if err != nil {
		return nil, MapSQLError(err)
	}

	return &row, nil
}

// ListInstalled returns every installed skill.
func (s *Store) ListInstalled(ctx context.Context) ([]InstalledSkill, error) {
	return s.queries.ListSkills(ctx)
}

// RemoveSkill deletes an installed skill. Its grants and revocations
// cascade away; audit entries survive.
func (s *Store) RemoveSkill(ctx context.Context, name, version string) error {
	err := s.queries.DeleteSkill(ctx, name, version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s@%s", ErrSkillNotFound, name, version)
	}

	return err
}

// LoadGrant reconstructs the effective permission grant for an installed
// skill: the approved capabilities, their configuration, and the full
// revocation history.
func (s *Store) LoadGrant(ctx context.Context,
	installed *InstalledSkill) (*permission.Grant, error) {

	grantRows, err := s.queries.ListGrants(ctx, installed.ID)
	if err != nil {
		return nil, err
	}
	revocationRows, err := s.queries.ListRevocations(ctx, installed.ID)
	if err != nil {
		return nil, err
	}

	grant := &permission.Grant{
		Skill:        installed.Ref(),
		Capabilities: skill.NewCapabilitySet(),
		Config:       make(map[skill.Capability]string),
		ApprovedAt:   installed.InstalledAt,
	}
	for _, row := range grantRows {
		grant.Capabilities.Add(row.Capability)
		if row.Config != "" {
			grant.Config[row.Capability] = row.Config
		}
		if row.ApprovedAt.Before(grant.ApprovedAt) {
			grant.ApprovedAt = row.ApprovedAt
		}
	}
	for _, row := range revocationRows {
		grant.Revocations = append(grant.Revocations,
			permission.Revocation{
				Capability: row.Capability,
				RevokedAt:  row.RevokedAt,
			})
	}

	return grant, nil
}

// SetSkillTier changes the trust tier of an installed skill. Both the row
// and the stored manifest are rewritten so later reads agree. A tier is
// only ever changed through this explicit operation, never implicitly.
func (s *Store) SetSkillTier(ctx context.Context,
	installed *InstalledSkill, tier skill.TrustTier) error {

	manifest, err := installed.Manifest()
	if err != nil {
		return err
	}
	manifest.Tier = tier

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	err = s.queries.UpdateSkillTier(
		ctx, installed.ID, tier, string(manifestJSON),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSkillNotFound, installed.Ref())
	}

	return err
}

// RevokeCapability persists one capability revocation for an installed
// skill. The grant row is left in place so history stays reconstructible.
func (s *Store) RevokeCapability(ctx context.Context,
	installed *InstalledSkill, cap skill.Capability) error {

	return s.queries.InsertRevocation(ctx, installed.ID, cap)
}
