package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
	"github.com/wallet-test-framework/glue-metamask-android/internal/logx"
	"github.com/wallet-test-framework/glue-metamask-android/internal/wallet"
)

type resolveCall struct {
	id  string
	cmd wallet.Command
}

type fakeBridge struct {
	bus *event.Bus

	mu         sync.Mutex
	resolves   []resolveCall
	resolveErr error
}

func (f *fakeBridge) Subscribe(fn event.Subscriber) func() {
	return f.bus.Subscribe(fn)
}

func (f *fakeBridge) Resolve(ctx context.Context, correlationID string, cmd wallet.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves = append(f.resolves, resolveCall{id: correlationID, cmd: cmd})
	return f.resolveErr
}

func newTestTransport(t *testing.T) (*fakeBridge, *websocket.Conn) {
	t.Helper()
	bridge := &fakeBridge{bus: event.NewBus(4)}
	t.Cleanup(bridge.bus.Close)

	logger := logx.New(io.Discard, logx.LevelError)
	server := NewServer("127.0.0.1:0", bridge, logger)
	if err := server.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-served; err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	conn, err := websocket.Dial("ws://"+server.Addr()+"/", "", "http://localhost/")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return bridge, conn
}

func receive(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		t.Fatalf("receive: %v", err)
	}
	return msg
}

func TestEventDelivery(t *testing.T) {
	bridge, conn := newTestTransport(t)

	// Subscription is registered during the handshake handler; give it
	// a moment before publishing.
	time.Sleep(50 * time.Millisecond)
	bridge.bus.Publish(event.Event{
		Kind:          event.KindSignMessage,
		CorrelationID: "u1",
		Data:          map[string]any{"message": "hello"},
	})

	msg := receive(t, conn)
	if msg.Type != TypeEvent {
		t.Fatalf("type = %q", msg.Type)
	}
	if msg.Event != "signmessage" || msg.ID != "u1" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Data["message"] != "hello" {
		t.Fatalf("data = %v", msg.Data)
	}
}

func TestResolveRoundtrip(t *testing.T) {
	bridge, conn := newTestTransport(t)

	err := websocket.JSON.Send(conn, Message{
		Type:   TypeResolve,
		Event:  "signmessage",
		ID:     "u1",
		Action: "approve",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	msg := receive(t, conn)
	if msg.Type != TypeResult || msg.ID != "u1" {
		t.Fatalf("result = %+v", msg)
	}
	if msg.OK == nil || !*msg.OK {
		t.Fatalf("resolve not ok: %s", msg.Error)
	}

	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if len(bridge.resolves) != 1 {
		t.Fatalf("resolves = %d", len(bridge.resolves))
	}
	call := bridge.resolves[0]
	if call.id != "u1" || call.cmd.Event != event.KindSignMessage || call.cmd.Action != wallet.ActionApprove {
		t.Fatalf("call = %+v", call)
	}
}

func TestResolveFailureReportedToCaller(t *testing.T) {
	bridge, conn := newTestTransport(t)
	bridge.resolveErr = errors.New("not the pending event")

	_ = websocket.JSON.Send(conn, Message{
		Type:   TypeResolve,
		Event:  "sendtransaction",
		ID:     "u9",
		Action: "reject",
	})

	msg := receive(t, conn)
	if msg.OK == nil || *msg.OK {
		t.Fatal("failed resolve reported ok")
	}
	if msg.Error == "" {
		t.Fatal("failure carries no error text")
	}
}

func TestResolveUnknownKindRejected(t *testing.T) {
	bridge, conn := newTestTransport(t)

	_ = websocket.JSON.Send(conn, Message{
		Type:   TypeResolve,
		Event:  "mintnft",
		ID:     "u2",
		Action: "approve",
	})

	msg := receive(t, conn)
	if msg.OK == nil || *msg.OK {
		t.Fatal("unknown kind accepted")
	}

	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if len(bridge.resolves) != 0 {
		t.Fatal("unknown kind reached the bridge")
	}
}

func TestUnknownMessageType(t *testing.T) {
	_, conn := newTestTransport(t)

	_ = websocket.JSON.Send(conn, Message{Type: "subscribe", ID: "x"})

	msg := receive(t, conn)
	if msg.OK == nil || *msg.OK {
		t.Fatal("unknown message type accepted")
	}
}
