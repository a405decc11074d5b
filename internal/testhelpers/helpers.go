// Package testhelpers provides common utilities and helper functions for testing the chat server.
//
// This package contains reusable test utilities shared by the package tests. It provides
// functions for starting test servers, making HTTP requests, reading Server-Sent Events,
// dialing WebSocket connections, and asserting response properties to reduce code
// duplication in test files.
package testhelpers

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every helper that waits on the network.
const DefaultTimeout = 5 * time.Second

// CreateTestServer creates a test HTTP server with the given handler and closes
// it when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// CreateTestServerWithConfig starts handler behind srv's timeout settings,
// so that production server configuration can be exercised end to end.
func CreateTestServerWithConfig(t *testing.T, srv *http.Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewUnstartedServer(srv.Handler)
	ts.Config = srv
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, rawURL string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: DefaultTimeout,
	}

	req, err := http.NewRequest(method, rawURL, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

// ReadBody reads and returns the full response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(body)
}

// SendChat publishes message through GET /chat and checks the empty 200.
func SendChat(t *testing.T, baseURL, message string) {
	t.Helper()
	resp := MakeRequest(t, http.MethodGet, baseURL+"/chat?message="+url.QueryEscape(message))
	AssertStatusCode(t, resp, http.StatusOK)
	if body := ReadBody(t, resp); body != "" {
		t.Errorf("Expected empty /chat body, got %q", body)
	}
}

// EventStream is an open GET /sse response.
type EventStream struct {
	Response *http.Response
	reader   *bufio.Reader
	cancel   context.CancelFunc
}

// OpenEventStream connects to /sse on baseURL. The stream is closed when the
// test ends.
func OpenEventStream(t *testing.T, baseURL string) *EventStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/sse", http.NoBody)
	if err != nil {
		cancel()
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("Failed to open event stream: %v", err)
	}

	s := &EventStream{Response: resp, reader: bufio.NewReader(resp.Body), cancel: cancel}
	t.Cleanup(s.Close)
	return s
}

// Close disconnects the stream.
func (s *EventStream) Close() {
	s.cancel()
	_ = s.Response.Body.Close()
}

// NextFrame reads one raw event, up to and including its terminating blank
// line. It fails the test if no complete event arrives within DefaultTimeout.
func (s *EventStream) NextFrame(t *testing.T) string {
	t.Helper()

	type result struct {
		frame string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var b strings.Builder
		for {
			line, err := s.reader.ReadString('\n')
			b.WriteString(line)
			if err != nil {
				done <- result{b.String(), err}
				return
			}
			if line == "\n" {
				done <- result{b.String(), nil}
				return
			}
		}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Failed to read event (partial %q): %v", r.frame, r.err)
		}
		return r.frame
	case <-time.After(DefaultTimeout):
		s.Close()
		t.Fatalf("Timed out waiting for an event")
		return ""
	}
}

// ExpectEOF fails the test unless the server ends the stream within
// DefaultTimeout without sending another event.
func (s *EventStream) ExpectEOF(t *testing.T) {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		_, err := s.reader.ReadString('\n')
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("Expected the stream to end, got more data")
		}
	case <-time.After(DefaultTimeout):
		s.Close()
		t.Fatalf("Timed out waiting for the stream to end")
	}
}

// WaitFor polls cond until it returns true or DefaultTimeout passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WebSocketURL converts an http:// test server URL into the ws:// URL of path.
func WebSocketURL(t *testing.T, baseURL, path string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = path
	return u.String()
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header (none when origin is empty).
func ConnectWebSocket(rawURL, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultTimeout,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(rawURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// ReceiveText reads one text frame with a DefaultTimeout read deadline.
func ReceiveText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("Expected text frame, got type %d", messageType)
	}
	return string(data)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		_ = conn.Close()
		return err
	}
	return conn.Close()
}
