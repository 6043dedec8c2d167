// Package detect evaluates the registered wallet conditions against
// current screen state. Conditions are mutually exclusive: at any
// evaluation instant, zero or exactly one may hold.
package detect

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wallet-test-framework/glue-metamask-android/internal/driver"
	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
	"github.com/wallet-test-framework/glue-metamask-android/internal/invariant"
)

// Condition is one named observable wallet state.
type Condition interface {
	Kind() event.Kind
	// Probe reports whether the condition currently holds. Probes must
	// be read-only and side-effect-free with respect to each other;
	// they run concurrently.
	Probe(ctx context.Context, s *driver.Session) (bool, error)
	// Collect extracts the event payload after a positive probe. It may
	// interact with the resource (scroll, read fields) and runs alone.
	Collect(ctx context.Context, s *driver.Session) (map[string]any, error)
}

// Detection is the outcome of a positive detector cycle.
type Detection struct {
	Kind event.Kind
	Data map[string]any
}

// Detector holds the condition set.
type Detector struct {
	conditions []Condition
}

func New(conditions ...Condition) *Detector {
	return &Detector{conditions: conditions}
}

// Detect probes every condition concurrently and, when exactly one
// holds, collects its payload. More than one simultaneous positive is
// an invariant violation: the condition set is not actually mutually
// exclusive for the current screen state.
func (d *Detector) Detect(ctx context.Context, s *driver.Session) (*Detection, error) {
	var (
		mu        sync.Mutex
		triggered []Condition
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, cond := range d.conditions {
		g.Go(func() error {
			ok, err := cond.Probe(gctx, s)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				triggered = append(triggered, cond)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch len(triggered) {
	case 0:
		return nil, nil
	case 1:
		data, err := triggered[0].Collect(ctx, s)
		if err != nil {
			return nil, err
		}
		return &Detection{Kind: triggered[0].Kind(), Data: data}, nil
	default:
		kinds := make([]string, len(triggered))
		for i, cond := range triggered {
			kinds[i] = string(cond.Kind())
		}
		sort.Strings(kinds)
		return nil, invariant.Errorf("multiple conditions triggered simultaneously: %s", strings.Join(kinds, ", "))
	}
}
