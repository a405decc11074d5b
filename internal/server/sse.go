package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/ssechat/internal/hub"
)

var errStreamClosed = errors.New("sse: stream closed")

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// formatEvent frames text as one Server-Sent Event. Every line of a
// multi-line message gets its own "data: " prefix so that the browser's
// EventSource reassembles it with newlines.
func formatEvent(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(lineBreaks.Replace(text), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// eventStream is the hub callback for one /sse connection.
type eventStream struct {
	w            io.Writer
	rc           *http.ResponseController
	writeTimeout time.Duration

	failed   chan struct{}
	failOnce sync.Once
}

func newEventStream(w http.ResponseWriter, rc *http.ResponseController, writeTimeout time.Duration) *eventStream {
	return &eventStream{
		w:            w,
		rc:           rc,
		writeTimeout: writeTimeout,
		failed:       make(chan struct{}),
	}
}

func (s *eventStream) send(msg hub.Message) error {
	select {
	case <-s.failed:
		return errStreamClosed
	default:
	}

	if s.writeTimeout > 0 {
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}

	if _, err := io.WriteString(s.w, formatEvent(msg.Text)); err != nil {
		s.fail()
		return fmt.Errorf("sse: write: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		s.fail()
		return fmt.Errorf("sse: flush: %w", err)
	}
	return nil
}

func (s *eventStream) fail() {
	s.failOnce.Do(func() { close(s.failed) })
}

// Stream serves GET /sse. It holds the connection open and writes one event
// per published message until the client disconnects, a write fails, or the
// hub is closed for shutdown. HEAD gets the stream headers without a
// subscription.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	cfg := currentConfig()
	rc := http.NewResponseController(w)

	// Streams never time out while idle; only individual frame writes are
	// bounded, by the stream itself.
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	if err := rc.Flush(); err != nil {
		slog.Warn("sse: response does not support streaming", "remote", r.RemoteAddr, "err", err)
		return
	}

	stream := newEventStream(w, rc, cfg.WriteTimeout)
	id := h.hub.Subscribe(stream.send)
	defer h.hub.Unsubscribe(id)

	log := slog.With("remote", r.RemoteAddr, "handle", id, "request_id", RequestIDFrom(r.Context()))
	log.Info("sse: client connected")

	reason := "client disconnected"
	select {
	case <-r.Context().Done():
	case <-stream.failed:
		reason = "write failed"
	case <-h.hub.Done():
		reason = "server shutting down"
	}

	log.Info("sse: stream closed", "reason", reason)
}
