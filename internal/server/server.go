package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"pharmacore/internal/core"
)

// Options tunes connection handling.
type Options struct {
	ReadTimeout   time.Duration // per-frame read deadline once a frame starts
	IdleTimeout   time.Duration // how long a connection may sit between requests
	MaxFrameBytes int
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Minute
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 8 << 20
	}
	return o
}

// Server accepts wire protocol connections and serves one request at a
// time per connection.
type Server struct {
	dispatcher *Dispatcher
	logger     core.Logger
	opts       Options

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New builds a server over a service.
func New(svc *core.Service, logger core.Logger, opts Options) *Server {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &Server{
		dispatcher: NewDispatcher(svc),
		logger:     logger,
		opts:       opts.withDefaults(),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until the context is cancelled or the listener
// fails. Open connections are closed on shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeConns()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.track(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Debug("connection opened", "remote", remote)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		payload, err := ReadFrame(conn, s.opts.MaxFrameBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("connection closed", "remote", remote, "reason", err.Error())
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))

		var resp Response
		req, err := DecodeRequest(payload)
		if err != nil {
			resp = errorResponse(err.Error())
		} else {
			resp = s.dispatcher.Dispatch(ctx, req)
		}

		out, err := EncodeResponse(resp)
		if err != nil {
			s.logger.Error("response encode failed", "remote", remote, "error", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.opts.ReadTimeout))
		if err := WriteFrame(conn, out); err != nil {
			s.logger.Debug("write failed", "remote", remote, "error", err)
			return
		}
	}
}
