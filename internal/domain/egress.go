package domain

// EgressLocation is one configured exit point. ID is the identifier of the
// gateway list that holds the location's members.
type EgressLocation struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Locations is the ordered, immutable set of configured egress locations.
// Order matters: it is the scan order used to resolve a user's assignment.
type Locations struct {
	items []EgressLocation
}

// NewLocations copies the given slice so later mutation by the caller cannot
// change the configured order.
func NewLocations(items []EgressLocation) Locations {
	cp := make([]EgressLocation, len(items))
	copy(cp, items)
	return Locations{items: cp}
}

// All returns a copy of the locations in configured order.
func (l Locations) All() []EgressLocation {
	cp := make([]EgressLocation, len(l.items))
	copy(cp, l.items)
	return cp
}

// Len returns the number of configured locations.
func (l Locations) Len() int { return len(l.items) }

// Find looks up a location by list id.
func (l Locations) Find(id string) (EgressLocation, bool) {
	for _, loc := range l.items {
		if loc.ID == id {
			return loc, true
		}
	}
	return EgressLocation{}, false
}

// ListMembership is a point-in-time read of one gateway list.
type ListMembership struct {
	Name   string   `json:"name"`
	Emails []string `json:"emails"`
	// Degraded is set when the list could not be read and Emails was
	// substituted with an empty set (best-effort snapshots only).
	Degraded bool `json:"degraded,omitempty"`
}

// Contains reports whether email is a member of the list.
func (m ListMembership) Contains(email string) bool {
	for _, e := range m.Emails {
		if e == email {
			return true
		}
	}
	return false
}

// MembershipSnapshot maps list id to its membership. A snapshot is built for a
// single operation and never reused.
type MembershipSnapshot map[string]ListMembership

// Degraded reports whether any list in the snapshot was substituted.
func (s MembershipSnapshot) Degraded() bool {
	for _, m := range s {
		if m.Degraded {
			return true
		}
	}
	return false
}

// CurrentAssignment is the location a user resolves to. A nil
// *CurrentAssignment means the user is on the default egress.
type CurrentAssignment struct {
	LocationName string `json:"locationName"`
	ListID       string `json:"listId"`
}
