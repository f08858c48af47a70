// Package transport is the out-of-scope TCP listener: a minimal
// goroutine-per-connection accept loop applying the wire framing from
// §6 (4-byte big-endian length prefix, payload capped at 1,049,600
// bytes) around internal/dispatch.Dispatcher.Handle. The spec leaves
// the event-loop internals unspecified; this is a straightforward,
// idiomatic stand-in grounded on the accept-loop/handler-goroutine
// shape documented in other_examples' socket-server-tcp reference
// (listener → per-connection goroutine → handler func → close on
// error), without that package's TLS/idle-timeout machinery, which
// SPEC_FULL.md's scope does not call for.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/agilira/memsess/internal/errs"
	"github.com/agilira/memsess/internal/logging"
)

// MaxPayload is the largest single request/response payload the wire
// framing allows (§6): 1 MiB plus a 1 KiB slack for header fields.
const MaxPayload = 1024*1024 + 1024

// Handler processes one decoded request payload and returns the
// response payload to frame and write back. Implemented by
// internal/dispatch.Dispatcher.Handle.
type Handler func(req []byte) []byte

// Server accepts TCP connections on one listener and dispatches each
// framed request to Handler, one connection per goroutine.
type Server struct {
	handler Handler
	logger  logging.Logger

	listener net.Listener
	conns    int64 // atomic: live connection count
}

// NewServer creates a Server bound to addr (e.g. ":2901"). logger may
// be nil, in which case logging.NoOpLogger is used.
func NewServer(addr string, handler Handler, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.NewErrListenFailed(addr, err)
	}

	return &Server{handler: handler, logger: logger, listener: ln}, nil
}

// Addr returns the bound listener address, useful when addr was ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener is closed. It always
// returns a non-nil error (net.Listener's documented contract).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		atomic.AddInt64(&s.conns, 1)
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections. In-flight connections are not
// forcibly closed.
func (s *Server) Close() error {
	return s.listener.Close()
}

// ConnCount returns the number of connections accepted and not yet
// closed.
func (s *Server) ConnCount() int64 {
	return atomic.LoadInt64(&s.conns)
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		atomic.AddInt64(&s.conns, -1)
	}()

	for {
		req, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("transport: connection closed", "remote", conn.RemoteAddr(), "err", err)
			}
			return
		}

		resp := s.handler(req)
		if err := writeFrame(conn, resp); err != nil {
			s.logger.Debug("transport: write failed", "remote", conn.RemoteAddr(), "err", err)
			return
		}
	}
}

// readFrame reads one 4-byte-big-endian-length-prefixed payload.
// A length of 0 or greater than MaxPayload is a protocol violation
// and closes the connection, per §6.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxPayload {
		return nil, fmt.Errorf("transport: invalid frame length %d", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeFrame writes payload prefixed with its 4-byte big-endian length.
func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
