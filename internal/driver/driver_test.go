package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/wallet-test-framework/glue-metamask-android/internal/config"
)

// fakeDevice emulates the slice of the UiAutomator2 server the glue
// uses, with per-selector injectable transient failures.
type fakeDevice struct {
	mu          sync.Mutex
	appState    AppState
	activations int
	elements    map[string]fakeElement // selector -> element
	transient   map[string]int         // selector -> remaining "no such element" replies
	clickStale  int                    // remaining stale replies for any click
	clicks      map[string]int         // element id -> clicks
}

type fakeElement struct {
	id   string
	text string
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		appState:  AppStateForeground,
		elements:  make(map[string]fakeElement),
		transient: make(map[string]int),
		clicks:    make(map[string]int),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"value": map[string]string{"error": code, "message": message},
	})
}

func (d *fakeDevice) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"value": map[string]string{"sessionId": "sess-1"},
		})
	})
	mux.HandleFunc("POST /session/sess-1/appium/device/app_state", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		state := d.appState
		d.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"value": state})
	})
	mux.HandleFunc("POST /session/sess-1/appium/device/activate_app", func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		d.activations++
		d.appState = AppStateForeground
		d.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"value": nil})
	})
	mux.HandleFunc("POST /session/sess-1/element", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Using string `json:"using"`
			Value string `json:"value"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		d.mu.Lock()
		defer d.mu.Unlock()
		if n := d.transient[req.Value]; n > 0 {
			d.transient[req.Value] = n - 1
			writeError(w, http.StatusNotFound, "no such element", "injected transient miss")
			return
		}
		el, ok := d.elements[req.Value]
		if !ok {
			writeError(w, http.StatusNotFound, "no such element", fmt.Sprintf("no element for %q", req.Value))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"value": map[string]string{"element-6066-11e4-a52e-4f735466cecf": el.id},
		})
	})
	mux.HandleFunc("POST /session/sess-1/element/", func(w http.ResponseWriter, r *http.Request) {
		// click
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		elementID := parts[len(parts)-2]
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.clickStale > 0 {
			d.clickStale--
			writeError(w, http.StatusNotFound, "stale element reference", "injected stale element")
			return
		}
		d.clicks[elementID]++
		writeJSON(w, http.StatusOK, map[string]any{"value": nil})
	})
	mux.HandleFunc("GET /session/sess-1/element/", func(w http.ResponseWriter, r *http.Request) {
		// text
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		elementID := parts[len(parts)-2]
		d.mu.Lock()
		defer d.mu.Unlock()
		for _, el := range d.elements {
			if el.id == elementID {
				writeJSON(w, http.StatusOK, map[string]any{"value": el.text})
				return
			}
		}
		writeError(w, http.StatusNotFound, "stale element reference", "unknown element")
	})
	mux.HandleFunc("DELETE /session/sess-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"value": nil})
	})

	return mux
}

func newTestSession(t *testing.T) (*Session, *fakeDevice) {
	t.Helper()
	device := newFakeDevice()
	server := httptest.NewServer(device.handler())
	t.Cleanup(server.Close)

	client := NewClient(config.DriverConfig{
		ServerURL:         server.URL,
		AppPackage:        "io.metamask",
		RequestTimeoutSec: 5,
		FindRetries:       2,
	})
	session, err := client.NewSession(context.Background())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session, device
}

func TestNewSession(t *testing.T) {
	session, _ := newTestSession(t)
	if session.ID() != "sess-1" {
		t.Fatalf("session id = %q", session.ID())
	}
}

func TestAppState(t *testing.T) {
	session, device := newTestSession(t)

	state, err := session.AppState(context.Background())
	if err != nil {
		t.Fatalf("app state: %v", err)
	}
	if state != AppStateForeground {
		t.Fatalf("state = %d, want foreground", state)
	}

	device.mu.Lock()
	device.appState = AppStateBackground
	device.mu.Unlock()

	state, err = session.AppState(context.Background())
	if err != nil {
		t.Fatalf("app state: %v", err)
	}
	if state != AppStateBackground {
		t.Fatalf("state = %d, want background", state)
	}
}

func TestActivate(t *testing.T) {
	session, device := newTestSession(t)

	if err := session.Activate(context.Background()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	device.mu.Lock()
	defer device.mu.Unlock()
	if device.activations != 1 {
		t.Fatalf("activations = %d", device.activations)
	}
}

func TestHasElement(t *testing.T) {
	session, device := newTestSession(t)
	device.elements["connect-approve-button"] = fakeElement{id: "el-1"}

	present, err := session.HasElement(context.Background(), ByAccessibilityID, "connect-approve-button")
	if err != nil {
		t.Fatalf("has element: %v", err)
	}
	if !present {
		t.Fatal("existing element reported absent")
	}

	present, err = session.HasElement(context.Background(), ByAccessibilityID, "no-such-screen")
	if err != nil {
		t.Fatalf("absence must not be an error, got %v", err)
	}
	if present {
		t.Fatal("missing element reported present")
	}
}

func TestTapRetriesTransientFailures(t *testing.T) {
	session, device := newTestSession(t)
	device.elements["confirm"] = fakeElement{id: "el-2"}
	device.transient["confirm"] = 2 // vanishes twice, then appears

	if err := session.Tap(context.Background(), ByAccessibilityID, "confirm"); err != nil {
		t.Fatalf("tap: %v", err)
	}
	device.mu.Lock()
	defer device.mu.Unlock()
	if device.clicks["el-2"] != 1 {
		t.Fatalf("clicks = %d", device.clicks["el-2"])
	}
}

func TestTapGivesUpAfterRetryBudget(t *testing.T) {
	session, device := newTestSession(t)
	device.elements["confirm"] = fakeElement{id: "el-2"}
	device.transient["confirm"] = 10 // beyond the budget of 2 retries

	err := session.Tap(context.Background(), ByAccessibilityID, "confirm")
	if err == nil {
		t.Fatal("tap succeeded past the retry budget")
	}
	if !IsNoSuchElement(err) {
		t.Fatalf("expected no-such-element, got %v", err)
	}
}

func TestTapRetriesStaleClick(t *testing.T) {
	session, device := newTestSession(t)
	device.elements["confirm"] = fakeElement{id: "el-2"}
	device.clickStale = 1

	if err := session.Tap(context.Background(), ByAccessibilityID, "confirm"); err != nil {
		t.Fatalf("tap: %v", err)
	}
}

func TestReadText(t *testing.T) {
	session, device := newTestSession(t)
	device.elements["txn-value-text"] = fakeElement{id: "el-3", text: "0.1 ETH"}

	text, err := session.ReadText(context.Background(), ByAccessibilityID, "txn-value-text")
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	if text != "0.1 ETH" {
		t.Fatalf("text = %q", text)
	}
}

func TestIsNoSuchElementThroughWrapping(t *testing.T) {
	missing := &Error{Code: "no such element", Message: "gone"}

	if !IsNoSuchElement(missing) {
		t.Fatal("bare error not recognized")
	}
	if !IsNoSuchElement(fmt.Errorf("probe marker: %w", missing)) {
		t.Fatal("wrapped error not recognized")
	}
	if !IsNoSuchElement(errors.Join(errors.New("screenshot failed"), missing)) {
		t.Fatal("joined error not recognized")
	}
	if IsNoSuchElement(&Error{Code: "stale element reference", Message: "old"}) {
		t.Fatal("stale element misclassified as missing")
	}
	if IsNoSuchElement(errors.New("connection refused")) {
		t.Fatal("ordinary error misclassified as missing")
	}
}

func TestClose(t *testing.T) {
	session, _ := newTestSession(t)
	if err := session.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}
