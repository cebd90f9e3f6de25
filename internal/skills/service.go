// Package skills is the orchestration layer of the pipeline: it owns the
// installed-skill store and drives installation (dependency resolution,
// inheritance composition, permission approval) and execution (tier
// dispatch into the wasm engine or the sandboxed child process), writing
// the audit trail as it goes.
package skills

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roasbeef/skillet/internal/audit"
	"github.com/roasbeef/skillet/internal/compose"
	"github.com/roasbeef/skillet/internal/db"
	"github.com/roasbeef/skillet/internal/permission"
	"github.com/roasbeef/skillet/internal/resolve"
	"github.com/roasbeef/skillet/internal/sandbox"
	"github.com/roasbeef/skillet/internal/skill"
	"github.com/roasbeef/skillet/internal/subproc"
)

// ErrInstallDeclined is returned when the approver refuses the composed
// capability surface of a skill.
var ErrInstallDeclined = errors.New("installation declined")

// Approver decides whether the fully composed capability surface of a
// skill may be granted. It sees the combined set, never just the skill's
// own declarations, so inherited capabilities cannot slip past approval.
type Approver func(ctx context.Context, m *skill.SkillManifest,
	res *compose.Resolution) (bool, error)

// AutoApprove approves every surface. For non-interactive use.
func AutoApprove(context.Context, *skill.SkillManifest,
	*compose.Resolution) (bool, error) {

	return true, nil
}

// Service wires the pipeline stages together over one store.
type Service struct {
	store    *db.Store
	recorder *db.AuditStore
	engine   *sandbox.Engine

	// runSandboxed launches the OS-sandboxed child. Swappable in tests.
	runSandboxed func(ctx context.Context,
		req *subproc.Request) (*subproc.Response, error)

	// mu guards enforcers, the live per-skill permission state shared by
	// concurrent invocations so a revocation reaches them mid-flight.
	mu        sync.Mutex
	enforcers map[string]*permission.Enforcer
}

// NewService creates a skills service over the given store.
func NewService(store *db.Store, services sandbox.HostServices) *Service {
	return &Service{
		store:        store,
		recorder:     db.NewAuditStore(store),
		engine:       sandbox.NewEngine(services),
		runSandboxed: subproc.Run,
		enforcers:    make(map[string]*permission.Enforcer),
	}
}

// universe builds the resolution universe: the latest installed version of
// every skill, overlaid with any manifests being installed right now.
func (s *Service) universe(ctx context.Context,
	pending ...*skill.SkillManifest) (skill.Universe, error) {

	installed, err := s.store.ListInstalled(ctx)
	if err != nil {
		return nil, err
	}

	universe := make(skill.Universe)
	latest := make(map[string]time.Time)
	for i := range installed {
		row := installed[i]
		if seen, ok := latest[row.Name]; ok &&
			!row.InstalledAt.After(seen) {

			continue
		}

		m, err := row.Manifest()
		if err != nil {
			return nil, err
		}
		universe[row.Name] = m
		latest[row.Name] = row.InstalledAt
	}

	// Pending manifests shadow installed versions.
	for _, m := range pending {
		universe[m.Name] = m
	}

	return universe, nil
}

// PlanInstall resolves the install plan for a manifest against the current
// store without changing anything. Any cycle, version conflict, or mutual
// exclusion is terminal.
func (s *Service) PlanInstall(ctx context.Context,
	m *skill.SkillManifest) (*resolve.InstallPlan, error) {

	if err := m.Validate(); err != nil {
		return nil, err
	}

	universe, err := s.universe(ctx, m)
	if err != nil {
		return nil, err
	}

	return resolve.Resolve(m.Name, universe)
}

// InstallReport summarizes a completed installation.
type InstallReport struct {
	// SkillID is the store row ID of the installed skill.
	SkillID int64

	// Plan is the dependency resolution that admitted the skill.
	Plan *resolve.InstallPlan

	// Resolution is the composed capability surface that was approved.
	Resolution *compose.Resolution
}

// Install runs the full installation pipeline for one manifest: dependency
// resolution, inheritance composition, approval of the combined surface,
// and atomic persistence of the skill with its grant. Prompt-only skills
// with no capabilities are installed without a grant.
func (s *Service) Install(ctx context.Context, m *skill.SkillManifest,
	approve Approver) (*InstallReport, error) {

	if err := m.Validate(); err != nil {
		return nil, err
	}

	universe, err := s.universe(ctx, m)
	if err != nil {
		return nil, err
	}

	plan, err := resolve.Resolve(m.Name, universe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", m.Name, err)
	}

	resolution, err := compose.ResolveInheritance(m.Name, universe)
	if err != nil {
		return nil, fmt.Errorf("failed to compose capabilities "+
			"for %s: %w", m.Name, err)
	}

	ok, err := approve(ctx, m, resolution)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstallDeclined, m.Name)
	}

	var grant *permission.Grant
	if len(resolution.Combined) > 0 {
		grant = &permission.Grant{
			Skill:        m.Name + "@" + m.Version,
			Capabilities: skill.NewCapabilitySet(
				resolution.Combined.ToSlice()...,
			),
			Config:       resolution.Config,
			ApprovedAt:   time.Now(),
		}
	}

	skillID, err := s.store.InstallSkill(ctx, m, grant)
	if err != nil {
		return nil, err
	}

	log.InfoS(ctx, "Installed skill",
		"skill", m.Name, "version", m.Version, "tier", m.Tier,
		"capabilities", len(resolution.Combined))

	return &InstallReport{
		SkillID:    skillID,
		Plan:       plan,
		Resolution: resolution,
	}, nil
}

// Uninstall removes an installed skill and drops its live permission
// state. The audit trail survives.
func (s *Service) Uninstall(ctx context.Context, name, version string) error {
	installed, err := s.store.GetInstalled(ctx, name, version)
	if err != nil {
		return err
	}

	if err := s.store.RemoveSkill(
		ctx, installed.Name, installed.Version,
	); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.enforcers, installed.Ref())
	s.mu.Unlock()

	return nil
}

// List returns every installed skill.
func (s *Service) List(ctx context.Context) ([]db.InstalledSkill, error) {
	return s.store.ListInstalled(ctx)
}

// Search finds installed skills via the full-text index.
func (s *Service) Search(ctx context.Context, query string,
	limit int) ([]db.SkillSearchResult, error) {

	return s.store.SearchSkills(ctx, query, limit)
}

// AuditTrail returns audit entries matching the filter.
func (s *Service) AuditTrail(ctx context.Context,
	filter db.AuditFilter) ([]*audit.Entry, error) {

	return s.recorder.Trail(ctx, filter)
}

// enforcerFor returns the live enforcer for an installed skill, creating
// it from the persisted grant on first use. Sharing one enforcer per skill
// is what makes a revocation visible to invocations already in flight.
func (s *Service) enforcerFor(ctx context.Context,
	installed *db.InstalledSkill) (*permission.Enforcer, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if enforcer, ok := s.enforcers[installed.Ref()]; ok {
		return enforcer, nil
	}

	grant, err := s.store.LoadGrant(ctx, installed)
	if err != nil {
		return nil, err
	}

	enforcer, err := permission.NewEnforcer(grant, s.recorder)
	if err != nil {
		return nil, err
	}
	s.enforcers[installed.Ref()] = enforcer

	return enforcer, nil
}

// Revoke withdraws one capability from an installed skill, both in the
// persistent grant and in the live enforcer shared by running invocations.
func (s *Service) Revoke(ctx context.Context, name, version string,
	cap skill.Capability) error {

	installed, err := s.store.GetInstalled(ctx, name, version)
	if err != nil {
		return err
	}

	if err := s.store.RevokeCapability(ctx, installed, cap); err != nil {
		return err
	}

	s.mu.Lock()
	enforcer, ok := s.enforcers[installed.Ref()]
	s.mu.Unlock()
	if ok {
		err := enforcer.Revoke(cap)
		if err != nil &&
			!errors.Is(err, permission.ErrAlreadyRevoked) {

			return err
		}
	}

	log.InfoS(ctx, "Revoked capability",
		"skill", installed.Ref(), "capability", cap)

	return nil
}

// SetTrust changes the trust tier of an installed skill. Promotion widens
// the resource budgets and, from untrusted, drops the OS-level subprocess
// wrapper, so it is deliberately a separate explicit operation rather than
// a manifest field update. The capability grant is untouched.
func (s *Service) SetTrust(ctx context.Context, name, version string,
	tier skill.TrustTier) error {

	if !tier.Valid() {
		return fmt.Errorf("unknown trust tier %q", tier)
	}

	installed, err := s.store.GetInstalled(ctx, name, version)
	if err != nil {
		return err
	}
	if installed.Tier == tier {
		return nil
	}

	if err := s.store.SetSkillTier(ctx, installed, tier); err != nil {
		return err
	}

	log.InfoS(ctx, "Changed trust tier",
		"skill", installed.Ref(), "from", installed.Tier, "to", tier)

	return nil
}

// InspectReport is the read-only view of one installed skill.
type InspectReport struct {
	// Installed is the store row.
	Installed *db.InstalledSkill

	// Manifest is the decoded manifest.
	Manifest *skill.SkillManifest

	// Resolution is the composed capability surface against the current
	// universe.
	Resolution *compose.Resolution

	// Effective is the currently effective capability set, after
	// revocations.
	Effective []skill.Capability

	// Revocations is the revocation history.
	Revocations []permission.Revocation
}

// Inspect assembles the full view of an installed skill: its manifest, its
// composed capability breakdown, and the effective grant after
// revocations. Read path only.
func (s *Service) Inspect(ctx context.Context, name,
	version string) (*InspectReport, error) {

	installed, err := s.store.GetInstalled(ctx, name, version)
	if err != nil {
		return nil, err
	}

	manifest, err := installed.Manifest()
	if err != nil {
		return nil, err
	}

	universe, err := s.universe(ctx, manifest)
	if err != nil {
		return nil, err
	}

	resolution, err := compose.ResolveInheritance(name, universe)
	if err != nil {
		return nil, err
	}

	grant, err := s.store.LoadGrant(ctx, installed)
	if err != nil {
		return nil, err
	}

	return &InspectReport{
		Installed:   installed,
		Manifest:    manifest,
		Resolution:  resolution,
		Effective:   skill.SortedCapabilities(grant.Effective()),
		Revocations: grant.Revocations,
	}, nil
}
