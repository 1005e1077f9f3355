// Package mcp provides a JSON-RPC based Model Context Protocol (MCP) server implementation.
//
// A [Server] routes JSON-RPC messages to a small set of MCP methods and
// dispatches tools/call to tools held in a [Registry]. It can be driven by
// two transports with identical semantics:
//
//   - [Server.Serve] reads newline-delimited messages from a stream such as
//     stdin and writes one response line per request.
//   - [HTTPServer] accepts TCP connections speaking a minimal HTTP/1.x
//     subset, one request per connection.
//
// # Basic Usage
//
//	registry := mcp.NewRegistry()
//	registry.Register(myTool)
//
//	server, err := mcp.NewServer(registry, mcp.Implementation{
//	    Name:    "my-server",
//	    Version: "1.0.0",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := server.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
//
// # Protocol Details
//
// This implementation supports the following MCP methods:
//   - initialize: Handshake and capability exchange
//   - ping: Connection health check
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool
//
// Messages without an id are notifications and never receive a response.
// A notification-form tools/call is not executed.
package mcp

import "encoding/json"

// ProtocolVersion is the MCP protocol version supported by this server.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes produced by the server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
	CodeToolFailed     = -32000
)

// Request represents a JSON-RPC 2.0 request message.
// The ID field is omitted for notification requests that don't expect a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitzero"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitzero"`
}

// Response represents a JSON-RPC 2.0 response message.
// Either Result or Error will be set, but not both.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitzero"`
	Error   *Error          `json:"error,omitzero"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitzero"`
}

func (e *Error) Error() string {
	if s, ok := e.Data.(string); ok && s != "" {
		return e.Message + ": " + s
	}
	return e.Message
}

// Implementation identifies an MCP server or client implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDefinition describes a tool's interface as returned by tools/list.
// InputSchema is required and must be a valid JSON Schema object.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ToolCapabilities describes the server's tool-related capabilities.
// The catalog is fixed, so ListChanged is always reported as false.
type ToolCapabilities struct {
	ListChanged bool `json:"listChanged"`
}

type LoggingCapabilities struct{}

// ServerCapabilities describes what features the server supports.
type ServerCapabilities struct {
	Tools   *ToolCapabilities    `json:"tools,omitzero"`
	Logging *LoggingCapabilities `json:"logging,omitzero"`
}

// InitializeResult is returned by the initialize method during handshake.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsResult is returned by the tools/list method.
type ListToolsResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// ContentBlock represents a piece of content in a tool result.
// Currently only "text" type is supported.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is returned by the tools/call method.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
}
