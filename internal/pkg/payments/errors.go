package payments

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned before any network call when the BYL API token
// or project id is missing. Callers must surface this, never swallow it.
var ErrNotConfigured = errors.New("BYL API credentials not configured")

// ErrUnresolvedReference marks a correlation id that uses our own reference
// scheme but has no matching record. The event is failed so the provider
// redelivers; the row may simply not be visible yet.
var ErrUnresolvedReference = errors.New("correlation id does not resolve to a known record")

// ErrIgnorable marks an event that legitimately does not concern this system
// (foreign or absent correlation id, stale object). It is acknowledged
// successfully so the provider stops retrying.
var ErrIgnorable = errors.New("event does not concern this system")

// ProviderError carries a non-2xx provider response through to the caller for
// user-facing messaging.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("byl request rejected: status=%d body=%s", e.StatusCode, e.Body)
}
