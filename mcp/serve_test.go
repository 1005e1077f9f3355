package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, out *bytes.Buffer) []Response {
	t.Helper()

	var responses []Response
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp), scanner.Text())
		responses = append(responses, resp)
	}
	require.NoError(t, scanner.Err())
	return responses
}

func TestServe(t *testing.T) {
	server := newTestServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1.0"},"capabilities":{}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":4,"method":"unknown_method"}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{}}}`,
	}, "\n") + "\n"

	out := &bytes.Buffer{}
	require.NoError(t, server.Serve(t.Context(), strings.NewReader(input), out))

	responses := decodeLines(t, out)
	require.Len(t, responses, 5)

	ids := make([]string, len(responses))
	for i, resp := range responses {
		ids[i] = string(resp.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)

	var init InitializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &init))
	assert.Equal(t, "ktme", init.ServerInfo.Name)

	assert.JSONEq(t, `{}`, string(responses[1].Result))

	require.NotNil(t, responses[3].Error)
	assert.Equal(t, CodeMethodNotFound, responses[3].Error.Code)

	var call CallToolResult
	require.NoError(t, json.Unmarshal(responses[4].Result, &call))
	assert.Equal(t, "hello", call.Content[0].Text)
}

func TestServeOneLinePerResponse(t *testing.T) {
	server := newTestServer(t)

	out := &bytes.Buffer{}
	require.NoError(t, server.Serve(t.Context(), strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`+"\n"), out))

	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
	assert.True(t, strings.HasSuffix(out.String(), "}\n"))
}

func TestServeFinalLineWithoutNewline(t *testing.T) {
	server := newTestServer(t)

	out := &bytes.Buffer{}
	require.NoError(t, server.Serve(t.Context(), strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`), out))

	responses := decodeLines(t, out)
	require.Len(t, responses, 1)
	assert.Equal(t, "1", string(responses[0].ID))
}

func TestServeSkipsBlankLines(t *testing.T) {
	server := newTestServer(t)

	input := "\n   \n" + `{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n\n"
	out := &bytes.Buffer{}
	require.NoError(t, server.Serve(t.Context(), strings.NewReader(input), out))

	assert.Len(t, decodeLines(t, out), 1)
}

func TestServeSilentInputs(t *testing.T) {
	server := newTestServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","method":"initialize"}`,
		`not json`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"PanicTool"}}`,
	}, "\n")

	out := &bytes.Buffer{}
	require.NoError(t, server.Serve(t.Context(), strings.NewReader(input), out))
	assert.Empty(t, out.String())
}

func TestServePanicBecomesInternalError(t *testing.T) {
	server := newTestServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"PanicTool"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	}, "\n")

	out := &bytes.Buffer{}
	require.NoError(t, server.Serve(t.Context(), strings.NewReader(input), out))

	responses := decodeLines(t, out)
	require.Len(t, responses, 2)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, CodeInternalError, responses[0].Error.Code)
	assert.Equal(t, "1", string(responses[0].ID))
	assert.Nil(t, responses[1].Error)
}

func TestServeContextCancellation(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	err := server.Serve(ctx, pr, &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestServeCancelWhileReading(t *testing.T) {
	server := newTestServer(t)

	ctx, cancel := context.WithCancel(t.Context())
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	t.Cleanup(func() {
		inW.Close()
		outR.Close()
	})

	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, inR, outW) }()

	// One request goes through before the reader blocks for good.
	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	require.NoError(t, err)
	line, err := bufio.NewReader(outR).ReadString('\n')
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	assert.JSONEq(t, "1", string(resp.ID))

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeReadError(t *testing.T) {
	server := newTestServer(t)

	err := server.Serve(t.Context(), errReader{}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdin closed unexpectedly")
}

func TestServeNilArguments(t *testing.T) {
	server := newTestServer(t)

	require.Error(t, server.Serve(t.Context(), nil, &bytes.Buffer{}))
	require.Error(t, server.Serve(t.Context(), strings.NewReader(""), nil))
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("stdin closed unexpectedly")
}
