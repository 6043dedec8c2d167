// Package ctl implements the Unix domain socket control channel used by
// local tooling to inspect and stop a running glue. Frames are 4-byte
// big-endian length plus JSON.
package ctl

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

const ProtocolVersion = 1

// Commands understood by the control server.
const (
	CmdPing     = "ping"
	CmdStatus   = "status"
	CmdShutdown = "shutdown"
)

type Request struct {
	ProtocolVersion int    `json:"protocol_version"`
	Command         string `json:"command"`
}

type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func NewRequest(command string) *Request {
	return &Request{ProtocolVersion: ProtocolVersion, Command: command}
}

func SuccessResponse(data any) *Response {
	resp := &Response{Success: true}
	if data != nil {
		raw, _ := json.Marshal(data)
		resp.Data = raw
	}
	return resp
}

func ErrorResponse(message string) *Response {
	return &Response{Success: false, Error: message}
}

// WriteFrame writes a length-prefixed JSON frame.
func WriteFrame(conn net.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := binary.Write(conn, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := io.Copy(conn, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a length-prefixed JSON frame.
func ReadFrame(conn net.Conn, v any) error {
	var length uint32
	if err := binary.Read(conn, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read frame length: %w", err)
	}
	if length > 1024*1024 {
		return fmt.Errorf("frame too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}
