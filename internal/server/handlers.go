// Package server exposes the chat HTTP handlers: the chat UI, the plain text
// and JSON demo endpoints, message ingest, and the streaming endpoints.
package server

import (
	"bytes"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Tyrowin/ssechat/internal/hub"
)

// Handlers binds the HTTP handlers to a hub.
type Handlers struct {
	hub    *hub.Hub
	public fs.FS
}

// NewHandlers returns handlers publishing to and subscribing on h.
func NewHandlers(h *hub.Hub) *Handlers {
	return &Handlers{hub: h, public: publicFS()}
}

// JSONResponse is the fixed payload of GET /json.
type JSONResponse struct {
	Text    string `json:"text"`
	Numbers []int  `json:"numbers"`
}

// EchoResponse is the payload of GET /echo.
type EchoResponse struct {
	Normal    string `json:"normal"`
	Shouty    string `json:"shouty"`
	CharCount int    `json:"charCount"`
	Backwards string `json:"backwards"`
}

// NewEchoResponse derives the /echo fields from input. Length and reversal
// count Unicode code points; upper-casing uses full case mapping, so "ß"
// becomes "SS".
func NewEchoResponse(input string) EchoResponse {
	return EchoResponse{
		Normal:    input,
		Shouty:    cases.Upper(language.Und).String(input),
		CharCount: utf8.RuneCountInString(input),
		Backwards: reverse(input),
	}
}

func reverse(s string) string {
	runes := []rune(s)
	slices.Reverse(runes)
	return string(runes)
}

// trimMessage strips surrounding whitespace, including a byte order mark.
// Invalid UTF-8 is replaced with U+FFFD so that every frame is valid text.
func trimMessage(s string) string {
	return strings.TrimFunc(strings.ToValidUTF8(s, "\uFFFD"), func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
}

// queryParam returns the first value of key in the raw query string. Pairs
// are split on "&" only, so ";" is an ordinary character. A value whose
// percent-encoding is malformed counts as absent; decoded bytes that are not
// valid UTF-8 are replaced with U+FFFD.
func queryParam(r *http.Request, key string) string {
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(rawKey)
		if err != nil || k != key {
			continue
		}
		v, err := url.QueryUnescape(rawValue)
		if err != nil {
			return ""
		}
		return strings.ToValidUTF8(v, "\uFFFD")
	}
	return ""
}

// Text serves GET /text.
func (h *Handlers) Text(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "hi")
}

// JSON serves GET /json. Query parameters and body are ignored.
func (h *Handlers) JSON(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, JSONResponse{Text: "hi", Numbers: []int{1, 2, 3}})
}

// Echo serves GET /echo?input=X. A missing or malformed input is treated as
// the empty string.
func (h *Handlers) Echo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewEchoResponse(queryParam(r, "input")))
}

// Chat serves GET and HEAD /chat?message=X. A message that is non-empty after
// trimming is published to every current subscriber before the response is
// written. The response is always an empty 200.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	message := trimMessage(queryParam(r, "message"))
	if message != "" {
		delivered := h.hub.Publish(hub.Message{Text: message})
		slog.Debug("chat: message published",
			"bytes", len(message),
			"delivered", delivered,
			"request_id", RequestIDFrom(r.Context()))
	}
	w.WriteHeader(http.StatusOK)
}

// Health serves GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// NotFoundHandler answers every unmatched request.
func NotFoundHandler(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusNotFound, "Not Found")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Debug("http: write failed", "err", err)
	}
}

// writeJSON encodes v without HTML escaping and without a trailing newline.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("http: encode json", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))); err != nil {
		slog.Debug("http: write failed", "err", err)
	}
}
