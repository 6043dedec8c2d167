// Package correlate owns the pending-event state: at most one raised
// event may be outstanding, and only the command carrying its
// correlation id may clear it.
package correlate

import (
	"sync"

	"github.com/google/uuid"

	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
	"github.com/wallet-test-framework/glue-metamask-android/internal/invariant"
)

// Pending is the outstanding unresolved event record.
type Pending struct {
	CorrelationID string
	Kind          event.Kind
}

// Correlator tracks the at-most-one pending event. It is safe for
// concurrent use, though in practice all mutation happens from inside
// queued tasks.
type Correlator struct {
	mu      sync.Mutex
	pending *Pending
}

func New() *Correlator {
	return &Correlator{}
}

// Pending returns the current pending event, if any.
func (c *Correlator) Pending() (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Pending{}, false
	}
	return *c.pending, true
}

// Begin records a freshly detected condition and mints its correlation
// id. Detection is skipped while an event is pending, so a second Begin
// before resolution is an invariant violation.
func (c *Correlator) Begin(kind event.Kind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return "", invariant.Errorf(
			"detected %s while event %s (%s) is still pending",
			kind, c.pending.CorrelationID, c.pending.Kind,
		)
	}
	id := uuid.NewString()
	c.pending = &Pending{CorrelationID: id, Kind: kind}
	return id, nil
}

// Resolve clears the pending event iff id matches its correlation id.
// Resolving with no event pending, or with a different id, means a
// command resolved an occurrence other than the one it claims to
// resolve; that is unrecoverable.
func (c *Correlator) Resolve(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return invariant.Errorf("resolve %s with no event pending", id)
	}
	if c.pending.CorrelationID != id {
		return invariant.Errorf(
			"resolve %s does not match pending event %s (%s)",
			id, c.pending.CorrelationID, c.pending.Kind,
		)
	}
	c.pending = nil
	return nil
}
