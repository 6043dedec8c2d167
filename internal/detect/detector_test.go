package detect

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wallet-test-framework/glue-metamask-android/internal/driver"
	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
	"github.com/wallet-test-framework/glue-metamask-android/internal/invariant"
)

type fakeCondition struct {
	kind       event.Kind
	holds      bool
	probeErr   error
	collectErr error
	data       map[string]any
	collected  bool
}

func (f *fakeCondition) Kind() event.Kind { return f.kind }

func (f *fakeCondition) Probe(ctx context.Context, s *driver.Session) (bool, error) {
	return f.holds, f.probeErr
}

func (f *fakeCondition) Collect(ctx context.Context, s *driver.Session) (map[string]any, error) {
	f.collected = true
	return f.data, f.collectErr
}

func TestDetectNothing(t *testing.T) {
	d := New(
		&fakeCondition{kind: event.KindSignMessage},
		&fakeCondition{kind: event.KindSendTransaction},
	)

	detection, err := d.Detect(context.Background(), nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if detection != nil {
		t.Fatalf("expected no detection, got %+v", detection)
	}
}

func TestDetectSingle(t *testing.T) {
	hit := &fakeCondition{
		kind:  event.KindSignMessage,
		holds: true,
		data:  map[string]any{"message": "hello"},
	}
	miss := &fakeCondition{kind: event.KindSendTransaction}
	d := New(miss, hit)

	detection, err := d.Detect(context.Background(), nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if detection == nil {
		t.Fatal("expected a detection")
	}
	if detection.Kind != event.KindSignMessage {
		t.Fatalf("kind = %s, want %s", detection.Kind, event.KindSignMessage)
	}
	if detection.Data["message"] != "hello" {
		t.Fatalf("data = %v", detection.Data)
	}
	if miss.collected {
		t.Fatal("collect ran for a condition that did not hold")
	}
}

func TestDetectMultipleIsInvariantViolation(t *testing.T) {
	a := &fakeCondition{kind: event.KindSignMessage, holds: true}
	b := &fakeCondition{kind: event.KindSendTransaction, holds: true}
	d := New(a, b)

	_, err := d.Detect(context.Background(), nil)
	if err == nil {
		t.Fatal("simultaneous positives not rejected")
	}
	if !invariant.Is(err) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	for _, kind := range []string{"signmessage", "sendtransaction"} {
		if !strings.Contains(err.Error(), kind) {
			t.Fatalf("error %q does not name %s", err, kind)
		}
	}
	if a.collected || b.collected {
		t.Fatal("collect ran despite invariant violation")
	}
}

func TestProbeErrorPropagates(t *testing.T) {
	boom := errors.New("device gone")
	d := New(&fakeCondition{kind: event.KindSignMessage, probeErr: boom})

	_, err := d.Detect(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if invariant.Is(err) {
		t.Fatal("resource failure misclassified as invariant violation")
	}
}

func TestCollectErrorPropagates(t *testing.T) {
	boom := errors.New("element gone")
	d := New(&fakeCondition{kind: event.KindSignMessage, holds: true, collectErr: boom})

	_, err := d.Detect(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected collect error, got %v", err)
	}
}
