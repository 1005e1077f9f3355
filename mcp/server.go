package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bpowers/ktme/internal/logging"
)

type Option func(*Server)

// handlerFunc answers one request. A non-nil *Error becomes an error
// response; anything else is encoded as the result.
type handlerFunc func(ctx context.Context, req *Request) (any, *Error)

type Server struct {
	registry           *Registry
	info               Implementation
	protocolVersion    string
	instructions       string
	nullIDNotification bool
	logger             *slog.Logger
	methods            map[string]handlerFunc
}

func NewServer(registry *Registry, info Implementation, opts ...Option) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("new server: registry is required")
	}
	if info.Name == "" {
		return nil, fmt.Errorf("new server: server name is required")
	}
	if info.Version == "" {
		return nil, fmt.Errorf("new server: server version is required")
	}

	server := &Server{
		registry:        registry,
		info:            info,
		protocolVersion: ProtocolVersion,
		logger:          logging.Logger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}

	if server.protocolVersion == "" {
		return nil, fmt.Errorf("new server: protocol version is required")
	}

	server.methods = map[string]handlerFunc{
		"initialize": server.handleInitialize,
		"tools/list": server.handleListTools,
		"tools/call": server.handleCallTool,
		"ping":       server.handlePing,
	}

	return server, nil
}

func WithInstructions(instructions string) Option {
	return func(server *Server) {
		server.instructions = instructions
	}
}

func WithProtocolVersion(version string) Option {
	return func(server *Server) {
		server.protocolVersion = version
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(server *Server) {
		if logger != nil {
			server.logger = logger
		}
	}
}

// WithNullIDAsNotification treats an explicit "id": null like an absent
// id. By default such a message is a request and is answered with a null id.
func WithNullIDAsNotification(enabled bool) Option {
	return func(server *Server) {
		server.nullIDNotification = enabled
	}
}

// Info returns the server's name and version.
func (s *Server) Info() Implementation {
	return s.info
}

// Registry returns the tool registry the server dispatches to.
func (s *Server) Registry() *Registry {
	return s.registry
}

// HandleMessage processes one raw JSON-RPC message. It returns nil when no
// response must be sent: the message was a notification or could not be
// parsed. A non-nil error means the server failed unexpectedly (a panic
// or an unencodable result) and the transport must answer on its own.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while handling message", "panic", r)
			resp = nil
			err = fmt.Errorf("internal error: %v", r)
		}
	}()

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Debug("dropping unparsable message", "error", err)
		return nil, nil
	}

	notification := s.isNotification(req.ID)

	if req.Method == "" {
		if notification {
			return nil, nil
		}
		return errorResponse(req.ID, CodeInvalidRequest, "Invalid Request", "Missing 'method' field"), nil
	}

	if notification {
		s.logger.Debug("received notification", "method", req.Method)
		return nil, nil
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found", "Unknown method: "+req.Method), nil
	}

	result, rpcErr := handler(ctx, &req)
	if rpcErr != nil {
		return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}, nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", req.Method, err)
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: encoded}, nil
}

func (s *Server) isNotification(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	return s.nullIDNotification && isNull(id)
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (s *Server) handleInitialize(_ context.Context, req *Request) (any, *Error) {
	if len(req.Params) > 0 {
		var params struct {
			ProtocolVersion string         `json:"protocolVersion"`
			ClientInfo      Implementation `json:"clientInfo"`
		}
		if err := json.Unmarshal(req.Params, &params); err == nil && params.ClientInfo.Name != "" {
			s.logger.Info("client connected",
				"client", params.ClientInfo.Name,
				"client_version", params.ClientInfo.Version,
				"protocol_version", params.ProtocolVersion)
		}
	}

	return InitializeResult{
		ProtocolVersion: s.protocolVersion,
		Capabilities: ServerCapabilities{
			Tools:   &ToolCapabilities{ListChanged: false},
			Logging: &LoggingCapabilities{},
		},
		ServerInfo:   s.info,
		Instructions: s.instructions,
	}, nil
}

func (s *Server) handlePing(context.Context, *Request) (any, *Error) {
	return struct{}{}, nil
}

func (s *Server) handleListTools(context.Context, *Request) (any, *Error) {
	return ListToolsResult{Tools: s.registry.Definitions()}, nil
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) (any, *Error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(req.Params) > 0 && !isNull(req.Params) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, &Error{Code: CodeInvalidRequest, Message: "Invalid Request", Data: "Invalid params: " + err.Error()}
		}
	}

	tool, ok := s.registry.Get(params.Name)
	if !ok {
		return nil, &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: "Unknown tool: " + params.Name}
	}

	s.logger.Debug("calling tool", "tool", params.Name)

	output, err := tool.Call(ctx, string(normalizeArguments(params.Arguments)))
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return nil, &Error{Code: CodeToolFailed, Message: "Tool execution failed", Data: err.Error()}
	}

	return CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: output}},
	}, nil
}

func normalizeArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return []byte("{}")
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}")
	}
	return trimmed
}

func errorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      requestID(id),
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

func requestID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
