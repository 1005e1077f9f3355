package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultIOTimeout    = 30 * time.Second
	DefaultMaxBodyBytes = 10 << 20
)

// HTTPServer serves a Server over TCP using a minimal HTTP/1.x subset:
// one request per connection, no keep-alive and no chunked bodies.
//
//	GET  /status    server status
//	POST /shutdown  stop accepting connections
//	POST /mcp       one JSON-RPC message
type HTTPServer struct {
	server       *Server
	running      atomic.Bool
	pollInterval time.Duration
	ioTimeout    time.Duration
	maxBodyBytes int64
	logger       *slog.Logger
}

type HTTPOption func(*HTTPServer)

// WithPollInterval sets how often the accept loop checks for shutdown.
func WithPollInterval(d time.Duration) HTTPOption {
	return func(h *HTTPServer) {
		if d > 0 {
			h.pollInterval = d
		}
	}
}

// WithIOTimeout bounds reading the request and writing the response on
// each connection. Zero disables the deadline.
func WithIOTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPServer) {
		h.ioTimeout = d
	}
}

func WithMaxBodyBytes(n int64) HTTPOption {
	return func(h *HTTPServer) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func NewHTTPServer(server *Server, opts ...HTTPOption) (*HTTPServer, error) {
	if server == nil {
		return nil, fmt.Errorf("new http server: server is required")
	}

	h := &HTTPServer{
		server:       server,
		pollInterval: DefaultPollInterval,
		ioTimeout:    DefaultIOTimeout,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       server.logger.With("transport", "http"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.running.Store(true)
	return h, nil
}

// Running reports whether the server is still accepting connections.
func (h *HTTPServer) Running() bool {
	return h.running.Load()
}

// Shutdown stops the accept loop. Connections already accepted finish.
func (h *HTTPServer) Shutdown() {
	if h.running.Swap(false) {
		h.logger.Info("shutdown requested")
	}
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (h *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return h.Serve(ctx, ln)
}

type deadlineListener interface {
	SetDeadline(t time.Time) error
}

// Serve accepts connections on ln until Shutdown is called or ctx is
// done. It closes ln, waits for in-flight connections and returns nil.
func (h *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	h.logger.Info("serving", "addr", ln.Addr().String())

	dl, canDeadline := ln.(deadlineListener)
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	if !canDeadline {
		go h.watch(ctx, ln, stopWatch)
	}

	// In-flight requests run to completion even when ctx is cancelled.
	connCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	stop := func() error {
		_ = ln.Close()
		_ = g.Wait()
		h.logger.Info("stopped accepting connections")
		return nil
	}

	var backoff time.Duration
	for {
		if !h.running.Load() || ctx.Err() != nil {
			return stop()
		}
		if canDeadline {
			_ = dl.SetDeadline(time.Now().Add(h.pollInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !h.running.Load() || ctx.Err() != nil {
				return stop()
			}
			if errors.Is(err, net.ErrClosed) {
				_ = stop()
				return fmt.Errorf("accept: %w", err)
			}

			// A failed accept (aborted handshake, fd exhaustion) only
			// affects that connection; keep serving after a short wait.
			backoff = nextAcceptBackoff(backoff)
			h.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
			continue
		}
		backoff = 0

		if !h.running.Load() {
			_ = conn.Close()
			return stop()
		}

		g.Go(func() error {
			h.handleConn(connCtx, conn)
			return nil
		})
	}
}

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

func nextAcceptBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(2*d, maxAcceptBackoff)
}

// watch closes ln once shutdown is observed, for listeners without
// accept deadlines.
func (h *HTTPServer) watch(ctx context.Context, ln net.Listener, done <-chan struct{}) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = ln.Close()
			return
		case <-ticker.C:
			if !h.running.Load() {
				_ = ln.Close()
				return
			}
		}
	}
}

type statusResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	ServerName string `json:"server_name"`
	ToolsCount int    `json:"tools_count"`
}

type shutdownResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *HTTPServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := h.logger.With("remote", conn.RemoteAddr().String())

	if h.ioTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(h.ioTimeout))
	}

	br := bufio.NewReader(conn)
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		logger.Debug("failed to read request line", "error", err)
		return
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		logger.Debug("malformed request line", "line", line)
		return
	}
	method, target := fields[0], fields[1]
	path, _, _ := strings.Cut(target, "?")

	header, err := tp.ReadMIMEHeader()
	if err != nil {
		logger.Debug("failed to read headers", "error", err)
		return
	}

	var length int64
	if cl := header.Get("Content-Length"); cl != "" {
		length, err = strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || length < 0 {
			h.writeJSON(conn, logger, http.StatusBadRequest, errorBody{Error: "invalid Content-Length"})
			return
		}
	}
	if length > h.maxBodyBytes {
		h.writeJSON(conn, logger, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
		return
	}

	logger.Debug("request", "method", method, "path", path, "content_length", length)

	switch {
	case method == http.MethodGet && path == "/status":
		h.writeJSON(conn, logger, http.StatusOK, statusResponse{
			Status:     "running",
			Version:    h.server.info.Version,
			ServerName: h.server.info.Name,
			ToolsCount: h.server.registry.Len(),
		})

	case method == http.MethodPost && path == "/shutdown":
		h.Shutdown()
		h.writeJSON(conn, logger, http.StatusOK, shutdownResponse{
			Status:  "shutdown",
			Message: "Server is shutting down",
		})

	case method == http.MethodPost && path == "/mcp":
		body := make([]byte, length)
		if _, err := io.ReadFull(br, body); err != nil {
			logger.Warn("failed to read request body", "error", err)
			return
		}
		h.handleMCP(ctx, conn, logger, body)

	default:
		h.writeJSON(conn, logger, http.StatusNotFound, errorBody{Error: "Not Found"})
	}
}

func (h *HTTPServer) handleMCP(ctx context.Context, conn net.Conn, logger *slog.Logger, body []byte) {
	if !json.Valid(body) {
		h.writeJSON(conn, logger, http.StatusOK, errorResponse(nil, CodeParseError, "Parse error", "Invalid JSON"))
		return
	}

	resp, err := h.server.HandleMessage(ctx, body)
	switch {
	case err != nil:
		logger.Error("failed to handle message", "error", err)
		h.writeJSON(conn, logger, http.StatusInternalServerError, errorBody{Error: err.Error()})
	case resp == nil:
		h.write(conn, logger, http.StatusNoContent, nil)
	default:
		h.writeJSON(conn, logger, http.StatusOK, resp)
	}
}

func (h *HTTPServer) writeJSON(conn net.Conn, logger *slog.Logger, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	h.write(conn, logger, status, body)
}

func (h *HTTPServer) write(conn net.Conn, logger *slog.Logger, status int, body []byte) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if status != http.StatusNoContent {
		sb.WriteString("Content-Type: application/json\r\n")
		fmt.Fprintf(&sb, "Content-Length: %d\r\n", len(body))
	}
	sb.WriteString("Connection: close\r\n\r\n")

	if _, err := io.WriteString(conn, sb.String()); err != nil {
		logger.Warn("failed to write response", "error", err)
		return
	}
	if len(body) > 0 {
		if _, err := conn.Write(body); err != nil {
			logger.Warn("failed to write response", "error", err)
		}
	}
}
