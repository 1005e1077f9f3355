package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Serve reads newline-delimited JSON-RPC messages from in and writes one
// response line per request to out. Messages are handled strictly in
// order. It returns nil at end of input and the context's error once ctx
// is done, even while a read is still blocked.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if s == nil {
		return fmt.Errorf("serve: server is nil")
	}
	if in == nil {
		return fmt.Errorf("serve: input reader is nil")
	}
	if out == nil {
		return fmt.Errorf("serve: output writer is nil")
	}

	writer := bufio.NewWriter(out)

	// Reads run on their own goroutine so a cancelled ctx is observed
	// while the next line is still pending. The channel is unbuffered:
	// at most one line is read ahead of the one being handled.
	lines := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go readLines(in, lines, done)

	for {
		var next readResult
		select {
		case <-ctx.Done():
			return fmt.Errorf("serve: %w", ctx.Err())
		case next = <-lines:
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("serve: %w", err)
		}

		if next.err != nil && !errors.Is(next.err, io.EOF) {
			s.logger.Error("failed to read message", "error", next.err)
			return fmt.Errorf("serve: read: %w", next.err)
		}

		if strings.TrimSpace(next.line) != "" {
			if err := s.serveLine(ctx, []byte(next.line), writer); err != nil {
				return err
			}
		}

		if next.err != nil {
			return nil
		}
	}
}

type readResult struct {
	line string
	err  error
}

// readLines sends each line of in to lines until a read fails or done
// is closed.
func readLines(in io.Reader, lines chan<- readResult, done <-chan struct{}) {
	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadString('\n')
		select {
		case lines <- readResult{line: line, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) serveLine(ctx context.Context, line []byte, w *bufio.Writer) error {
	resp, err := s.HandleMessage(ctx, line)
	if err != nil {
		s.logger.Error("failed to handle message", "error", err)
		resp = internalErrorResponse(line, err)
	}
	if resp == nil {
		return nil
	}

	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("serve: encode response: %w", err)
	}
	encoded = append(encoded, '\n')
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("serve: writing response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("serve: writing response: %w", err)
	}
	return nil
}

// internalErrorResponse builds the fallback answer for a message the
// handler failed on. It returns nil when no usable id can be recovered
// from raw.
func internalErrorResponse(raw []byte, cause error) *Response {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	if len(envelope.ID) == 0 || isNull(envelope.ID) {
		return nil
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      envelope.ID,
		Error: &Error{
			Code:    CodeInternalError,
			Message: "Internal error",
			Data:    cause.Error(),
		},
	}
}
