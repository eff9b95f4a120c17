package egress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jdores/selfserve-egressip/internal/domain"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
	"github.com/jdores/selfserve-egressip/internal/pkg/metrics"
)

// auditWriteTimeout bounds one audit insert after a transition.
const auditWriteTimeout = 5 * time.Second

// ListClient is the subset of the gateway client the engine needs.
type ListClient interface {
	ListReader
	AddToList(ctx context.Context, listID, email string) error
	RemoveFromList(ctx context.Context, listID, email string) error
}

// AuditRecorder appends audit entries. Implementations must not fail the
// caller; errors are theirs to log.
type AuditRecorder interface {
	Record(ctx context.Context, entry domain.AuditLogEntry)
}

// Leaser hands out per-key leases. See distlock.Leaser.
type Leaser interface {
	TryLease(ctx context.Context, key string) (release func(context.Context) error, acquired bool, err error)
}

// TransitionResult reports what a transition did. AssignedTo is nil for a
// reset; RemovedFrom is nil when the user was not removed from any location.
type TransitionResult struct {
	Email       string  `json:"email"`
	AssignedTo  *string `json:"assignedTo"`
	RemovedFrom *string `json:"removedFrom"`
	// NoOp is true when the user was already in the requested state and no
	// list was modified.
	NoOp bool `json:"-"`
}

// AssignmentView is a user's current assignment plus the selectable
// locations.
type AssignmentView struct {
	Locations []domain.EgressLocation   `json:"locations"`
	Current   *domain.CurrentAssignment `json:"current"`
}

// Service runs reconciliation transitions. It is safe for concurrent use;
// concurrent transitions for the same email are only serialized when a
// Leaser is set.
type Service struct {
	locations domain.Locations
	lists     ListClient
	audit     AuditRecorder
	leaser    Leaser
	metrics   *metrics.Metrics
}

// NewService creates the engine over a fixed, validated set of locations.
func NewService(locations domain.Locations, lists ListClient, audit AuditRecorder) *Service {
	return &Service{locations: locations, lists: lists, audit: audit}
}

// SetLeaser enables the per-email lease.
func (s *Service) SetLeaser(l Leaser) { s.leaser = l }

// SetMetrics attaches transition counters.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// Locations returns the configured locations in order.
func (s *Service) Locations() []domain.EgressLocation { return s.locations.All() }

// Select moves the acting user to the location identified by listID.
func (s *Service) Select(ctx context.Context, identity, listID string) (*TransitionResult, error) {
	email, err := domain.ValidateEmail("identity", identity)
	if err != nil {
		return nil, err
	}
	target, err := s.lookup(listID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, email, email, domain.ActionSelect, &target)
}

// Reset returns the acting user to the default egress.
func (s *Service) Reset(ctx context.Context, identity string) (*TransitionResult, error) {
	email, err := domain.ValidateEmail("identity", identity)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, email, email, domain.ActionReset, nil)
}

// AdminAssign moves email to the location identified by listID on behalf of
// admin.
func (s *Service) AdminAssign(ctx context.Context, admin, email, listID string) (*TransitionResult, error) {
	actor, err := domain.ValidateEmail("identity", admin)
	if err != nil {
		return nil, err
	}
	target, err := domain.ValidateEmail("email", email)
	if err != nil {
		return nil, err
	}
	loc, err := s.lookup(listID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, target, domain.ActionAdminAssign, &loc)
}

// AdminRemove returns email to the default egress on behalf of admin.
func (s *Service) AdminRemove(ctx context.Context, admin, email string) (*TransitionResult, error) {
	actor, err := domain.ValidateEmail("identity", admin)
	if err != nil {
		return nil, err
	}
	target, err := domain.ValidateEmail("email", email)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, target, domain.ActionAdminRemove, nil)
}

// CurrentAssignment resolves identity against a strict snapshot.
func (s *Service) CurrentAssignment(ctx context.Context, identity string) (*AssignmentView, error) {
	email, err := domain.ValidateEmail("identity", identity)
	if err != nil {
		return nil, err
	}
	snap, err := BuildSnapshot(ctx, s.lists, s.locations, SnapshotStrict)
	if err != nil {
		return nil, err
	}
	return &AssignmentView{
		Locations: s.locations.All(),
		Current:   Resolve(s.locations, snap, email),
	}, nil
}

// Memberships returns a best-effort snapshot of every list. Lists that could
// not be read are empty and flagged Degraded.
func (s *Service) Memberships(ctx context.Context) (domain.MembershipSnapshot, error) {
	return BuildSnapshot(ctx, s.lists, s.locations, SnapshotBestEffort)
}

func (s *Service) lookup(listID string) (domain.EgressLocation, error) {
	if listID == "" {
		return domain.EgressLocation{}, domain.NewValidationError("listId", "Missing listId")
	}
	loc, ok := s.locations.Find(listID)
	if !ok {
		return domain.EgressLocation{}, domain.NewValidationError("listId", "Invalid location")
	}
	return loc, nil
}

// apply moves email to target (nil means default). actor and email are
// already normalized.
func (s *Service) apply(ctx context.Context, actor, email string, action domain.AuditAction, target *domain.EgressLocation) (*TransitionResult, error) {
	release := func() {}
	if s.leaser != nil {
		releaseLease, ok, err := s.leaser.TryLease(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("acquire lease: %w", err)
		}
		if !ok {
			s.metrics.IncTransition(string(action), "busy")
			return nil, ErrBusy
		}
		var once sync.Once
		release = func() {
			once.Do(func() {
				if err := releaseLease(context.WithoutCancel(ctx)); err != nil {
					logger.Warn("egress: failed to release lease", "email", email, "error", err)
				}
			})
		}
		defer release()
	}

	result, entry, err := s.transition(ctx, actor, email, action, target)

	// A PostgreSQL lease pins a pooled connection; hand it back before the
	// audit insert asks the same pool for one.
	release()
	if entry != nil {
		s.record(ctx, *entry)
	}
	return result, err
}

// record writes entry on a context detached from the caller. The list change
// has already happened, so a disconnecting client must not drop its entry.
func (s *Service) record(ctx context.Context, entry domain.AuditLogEntry) {
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	s.audit.Record(auditCtx, entry)
}

// transition runs resolve, remove and add. It returns the audit entry to
// write, or nil when no list was modified.
func (s *Service) transition(ctx context.Context, actor, email string, action domain.AuditAction, target *domain.EgressLocation) (*TransitionResult, *domain.AuditLogEntry, error) {
	snap, err := BuildSnapshot(ctx, s.lists, s.locations, SnapshotStrict)
	if err != nil {
		s.metrics.IncTransition(string(action), "failed")
		return nil, nil, err
	}
	current := Resolve(s.locations, snap, email)

	result := &TransitionResult{Email: email}
	if target != nil {
		name := target.Name
		result.AssignedTo = &name
	}

	if (target == nil && current == nil) || (target != nil && current != nil && current.ListID == target.ID) {
		result.NoOp = true
		s.metrics.IncTransition(string(action), "noop")
		return result, nil, nil
	}

	if current != nil {
		if err := s.lists.RemoveFromList(ctx, current.ListID, email); err != nil {
			s.metrics.IncTransition(string(action), "failed")
			return nil, nil, fmt.Errorf("remove from %s: %w", current.LocationName, err)
		}
		removed := current.LocationName
		result.RemovedFrom = &removed
	}

	if target != nil {
		if err := s.lists.AddToList(ctx, target.ID, email); err != nil {
			if current == nil {
				s.metrics.IncTransition(string(action), "failed")
				return nil, nil, fmt.Errorf("add to %s: %w", target.Name, err)
			}
			s.metrics.IncTransition(string(action), "partial")
			logger.Error("egress: partial transition", "actor", actor, "email", email,
				"removed_from", current.LocationName, "target", target.Name, "error", err)
			entry := &domain.AuditLogEntry{
				Actor:       actor,
				Action:      action,
				TargetEmail: domain.StringPtr(email),
				RemovedFrom: domain.StringPtr(current.LocationName),
				Details:     domain.StringPtr(fmt.Sprintf("add to %s failed after removal; user is unassigned", target.Name)),
			}
			return nil, entry, &PartialTransitionError{Email: email, RemovedFrom: current.LocationName, Target: target.Name, Err: err}
		}
	}

	s.metrics.IncTransition(string(action), "applied")
	entry := &domain.AuditLogEntry{
		Actor:       actor,
		Action:      action,
		TargetEmail: domain.StringPtr(email),
		AssignedTo:  result.AssignedTo,
		RemovedFrom: result.RemovedFrom,
	}

	assignedTo, removedFrom := "", ""
	if result.AssignedTo != nil {
		assignedTo = *result.AssignedTo
	}
	if result.RemovedFrom != nil {
		removedFrom = *result.RemovedFrom
	}
	logger.Info("egress: transition applied", "action", string(action), "actor", actor, "email", email,
		"assigned_to", assignedTo, "removed_from", removedFrom)
	return result, entry, nil
}
