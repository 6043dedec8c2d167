package wallet

import (
	"context"
	"fmt"

	"github.com/wallet-test-framework/glue-metamask-android/internal/detect"
	"github.com/wallet-test-framework/glue-metamask-android/internal/driver"
	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
)

// condition adapts one screen definition to the detector contract.
type condition struct {
	sc screen
}

func (c condition) Kind() event.Kind {
	return c.sc.kind
}

// Probe is a single read-only presence check on the screen marker.
func (c condition) Probe(ctx context.Context, s *driver.Session) (bool, error) {
	present, err := s.HasElement(ctx, driver.ByAccessibilityID, c.sc.marker)
	if err != nil {
		return false, fmt.Errorf("probe %s: %w", c.sc.kind, err)
	}
	return present, nil
}

// Collect reads the screen's payload fields. A field whose element is
// not on screen is omitted; screens vary between wallet versions.
func (c condition) Collect(ctx context.Context, s *driver.Session) (map[string]any, error) {
	data := make(map[string]any, len(c.sc.fields))
	for key, id := range c.sc.fields {
		text, err := s.ReadText(ctx, driver.ByAccessibilityID, id)
		if err != nil {
			if driver.IsNoSuchElement(err) {
				continue
			}
			return nil, fmt.Errorf("collect %s field %s: %w", c.sc.kind, key, err)
		}
		data[key] = text
	}
	return data, nil
}

// Conditions returns the full MetaMask condition set for the detector.
func Conditions() []detect.Condition {
	conds := make([]detect.Condition, len(screens))
	for i, sc := range screens {
		conds[i] = condition{sc: sc}
	}
	return conds
}
