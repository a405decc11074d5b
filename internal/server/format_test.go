package server

import (
	"net/http/httptest"
	"testing"
)

// TestFormatEvent covers single-line, multi-line and mixed line-break input.
func TestFormatEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single line", "hello", "data: hello\n\n"},
		{"empty", "", "data: \n\n"},
		{"lf", "a\nb", "data: a\ndata: b\n\n"},
		{"crlf", "a\r\nb", "data: a\ndata: b\n\n"},
		{"cr", "a\rb", "data: a\ndata: b\n\n"},
		{"blank line inside", "a\n\nb", "data: a\ndata: \ndata: b\n\n"},
		{"colon is not special", "data: x", "data: data: x\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatEvent(tt.input); got != tt.expected {
				t.Errorf("formatEvent(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestTrimMessage verifies the whitespace set stripped at ingest.
func TestTrimMessage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"  hello  ", "hello"},
		{"\t\r\nhello\n", "hello"},
		{" hello\u3000", "hello"},
		{"\uFEFFhello", "hello"},
		{"   ", ""},
		{"", ""},
		{"a b", "a b"},
		{" hi\xff ", "hi\uFFFD"},
		{"\xfe\xff", "\uFFFD"},
	}

	for _, tt := range tests {
		if got := trimMessage(tt.input); got != tt.expected {
			t.Errorf("trimMessage(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

// TestQueryParam covers the query parsing used by /echo and /chat.
func TestQueryParam(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		key      string
		expected string
	}{
		{"plain", "/echo?input=hello", "input", "hello"},
		{"missing", "/echo?other=x", "input", ""},
		{"no query", "/echo", "input", ""},
		{"plus is space", "/echo?input=a+b", "input", "a b"},
		{"percent encoded", "/echo?input=%E2%9C%93", "input", "✓"},
		{"semicolon kept", "/echo?input=a;b&x=1", "input", "a;b"},
		{"first value wins", "/echo?input=one&input=two", "input", "one"},
		{"encoded key", "/echo?in%70ut=yes", "input", "yes"},
		{"key without value", "/echo?input", "input", ""},
		{"malformed escape is absent", "/echo?input=%zz", "input", ""},
		{"invalid utf-8 replaced", "/echo?input=hi%FF", "input", "hi\uFFFD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.target, nil)
			if got := queryParam(r, tt.key); got != tt.expected {
				t.Errorf("queryParam(%q, %q) = %q, want %q", tt.target, tt.key, got, tt.expected)
			}
		})
	}
}
