package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/wallet-test-framework/glue-metamask-android/internal/driver"
	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
)

// Action is what a resolving command does to the raised screen.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ErrUnsupported marks a command the glue has no handler for. It fails
// only the submitting caller; queue and pending-event state are
// untouched beyond normal completion handling.
var ErrUnsupported = errors.New("wallet: unsupported command")

// Command is the resource-side half of a resolving command: which
// raised screen to act on and how.
type Command struct {
	Event  event.Kind
	Action Action
	Params map[string]any
}

// Execute performs the command against the wallet screen. Must run
// inside a queued task.
func Execute(ctx context.Context, s *driver.Session, cmd Command) error {
	sc, ok := screenFor(cmd.Event)
	if !ok {
		return fmt.Errorf("%w: event %q", ErrUnsupported, cmd.Event)
	}

	var target string
	switch cmd.Action {
	case ActionApprove:
		target = sc.approve
	case ActionReject:
		target = sc.reject
	default:
		return fmt.Errorf("%w: action %q for event %q", ErrUnsupported, cmd.Action, cmd.Event)
	}

	if err := s.Tap(ctx, driver.ByAccessibilityID, target); err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Action, cmd.Event, err)
	}
	return nil
}
