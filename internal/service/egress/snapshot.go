package egress

import (
	"context"
	"fmt"

	"github.com/jdores/selfserve-egressip/internal/domain"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
)

// SnapshotPolicy decides what happens when one list cannot be read.
type SnapshotPolicy int

const (
	// SnapshotStrict propagates the first list failure. Required for any
	// flow that mutates lists: an empty substitute would look like "nobody
	// assigned" and could cause a double add.
	SnapshotStrict SnapshotPolicy = iota
	// SnapshotBestEffort substitutes an empty, degraded membership and keeps
	// going. Used for read-only dashboards.
	SnapshotBestEffort
)

// ListReader reads the full membership of one list.
type ListReader interface {
	ListItems(ctx context.Context, listID string) ([]string, error)
}

// BuildSnapshot lists every location sequentially in configured order.
func BuildSnapshot(ctx context.Context, lists ListReader, locations domain.Locations, policy SnapshotPolicy) (domain.MembershipSnapshot, error) {
	snap := make(domain.MembershipSnapshot, locations.Len())
	for _, loc := range locations.All() {
		emails, err := lists.ListItems(ctx, loc.ID)
		if err != nil {
			if policy == SnapshotStrict {
				return nil, fmt.Errorf("list members of %s: %w", loc.Name, err)
			}
			logger.Warn("egress: list read failed, showing as empty",
				"list_id", loc.ID, "location", loc.Name, "error", err)
			snap[loc.ID] = domain.ListMembership{Name: loc.Name, Emails: []string{}, Degraded: true}
			continue
		}
		snap[loc.ID] = domain.ListMembership{Name: loc.Name, Emails: emails}
	}
	return snap, nil
}

// Resolve returns the first location, in configured order, whose membership
// contains email, or nil when the user is on the default egress. Scan order
// is the tie-break when an email is on more than one list.
func Resolve(locations domain.Locations, snap domain.MembershipSnapshot, email string) *domain.CurrentAssignment {
	for _, loc := range locations.All() {
		m, ok := snap[loc.ID]
		if !ok {
			continue
		}
		if m.Contains(email) {
			return &domain.CurrentAssignment{LocationName: loc.Name, ListID: loc.ID}
		}
	}
	return nil
}
