package gateway

import (
	"errors"
	"fmt"
)

// ErrPageLimit is returned when a list reports more pages than the client is
// allowed to fetch.
var ErrPageLimit = errors.New("gateway: list pagination exceeded page limit")

// UpstreamError is a non-2xx answer from the lists API that is not covered by
// the idempotent-remove carve-out. Body is kept for server-side logs only.
type UpstreamError struct {
	Op         string
	ListID     string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gateway %s on list %s: status %d: %s", e.Op, e.ListID, e.StatusCode, e.Body)
}

// IsUpstream reports whether err wraps an *UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
