package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wallet-test-framework/glue-metamask-android/internal/event"
	"github.com/wallet-test-framework/glue-metamask-android/internal/logx"
	"github.com/wallet-test-framework/glue-metamask-android/internal/wallet"
)

// Bridge is the session surface the transport needs. Satisfied by
// *session.Session.
type Bridge interface {
	Subscribe(fn event.Subscriber) func()
	Resolve(ctx context.Context, correlationID string, cmd wallet.Command) error
}

// Server accepts WebSocket clients on "/" and speaks the Message
// protocol with each.
type Server struct {
	addr   string
	bridge Bridge
	log    *logx.ComponentLogger

	listener net.Listener
	server   *http.Server
}

func NewServer(addr string, bridge Bridge, log *logx.Logger) *Server {
	return &Server{addr: addr, bridge: bridge, log: log.Component("transport")}
}

// Listen binds the address. Call before Serve; Addr is valid after.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	// Skip the origin check: test clients are not browsers.
	mux.Handle("/", websocket.Server{Handler: s.handleConn})
	s.server = &http.Server{Handler: mux}
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Serve blocks serving clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log.Infof("listening on ws://%s", s.Addr())
	err := s.server.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// wsConn serializes writes: the event subscription goroutine and the
// resolve reply path both write to the same socket.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.ws, msg)
}

func (s *Server) handleConn(ws *websocket.Conn) {
	defer ws.Close()
	conn := &wsConn{ws: ws}
	remote := ws.Request().RemoteAddr
	s.log.Infof("client connected remote=%s", remote)

	unsubscribe := s.bridge.Subscribe(func(ev event.Event) {
		if err := conn.send(EventMessage(ev)); err != nil {
			s.log.Warnf("send event failed remote=%s: %v", remote, err)
		}
	})
	defer unsubscribe()

	for {
		var msg Message
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warnf("receive failed remote=%s: %v", remote, err)
			}
			s.log.Infof("client disconnected remote=%s", remote)
			return
		}

		switch msg.Type {
		case TypeResolve:
			err := s.resolve(ws.Request().Context(), msg)
			if err != nil {
				s.log.Warnf("resolve failed id=%s: %v", msg.ID, err)
			}
			if sendErr := conn.send(ResultMessage(msg.ID, err)); sendErr != nil {
				s.log.Warnf("send result failed remote=%s: %v", remote, sendErr)
			}
		default:
			_ = conn.send(ResultMessage(msg.ID, fmt.Errorf("unknown message type %q", msg.Type)))
		}
	}
}

func (s *Server) resolve(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		return fmt.Errorf("resolve requires an id")
	}
	kind := event.Kind(msg.Event)
	if !kind.Valid() {
		return fmt.Errorf("unknown event kind %q", msg.Event)
	}
	return s.bridge.Resolve(ctx, msg.ID, wallet.Command{
		Event:  kind,
		Action: wallet.Action(msg.Action),
		Params: msg.Params,
	})
}
