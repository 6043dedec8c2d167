package ctl

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wallet-test-framework/glue-metamask-android/internal/logx"
)

// HandlerFunc serves one control request.
type HandlerFunc func(req *Request) *Response

// Server accepts control connections, one request/response per
// connection.
type Server struct {
	socketPath  string
	log         *logx.ComponentLogger
	connTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewServer(socketPath string, log *logx.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:  socketPath,
		log:         log.Component("ctl"),
		connTimeout: 10 * time.Second,
		handlers:    make(map[string]HandlerFunc),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Handle registers a handler for a command. Must be called before Start.
func (s *Server) Handle(command string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = handler
}

func (s *Server) Start() error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Infof("control socket listening on %s", s.socketPath)
	return nil
}

func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Warnf("accept error: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(s.connTimeout))

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.log.Warnf("read request error: %v", err)
		return
	}

	resp := s.process(&req)
	if err := WriteFrame(conn, resp); err != nil {
		s.log.Warnf("write response error: %v", err)
	}
}

func (s *Server) process(req *Request) *Response {
	if req.ProtocolVersion != ProtocolVersion {
		return ErrorResponse(fmt.Sprintf("protocol version mismatch: got %d, expected %d", req.ProtocolVersion, ProtocolVersion))
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Command]
	s.mu.RUnlock()
	if !ok {
		return ErrorResponse(fmt.Sprintf("unknown command: %q", req.Command))
	}
	return handler(req)
}
