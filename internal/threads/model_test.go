package threads

import (
	"errors"
	"strings"
	"testing"
)

func TestNewHash(t *testing.T) {
	valid := []struct {
		name  string
		input string
		want  Hash
	}{
		{name: "plain", input: "0xabc123", want: Hash("0xabc123")},
		{name: "trimmed", input: "  0xabc123  ", want: Hash("0xabc123")},
		{name: "lowercased", input: "0xABC123", want: Hash("0xabc123")},
	}
	for _, tt := range valid {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := NewHash(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if hash != tt.want {
				t.Fatalf("want %q got %q", tt.want, hash)
			}
		})
	}

	invalid := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace", input: "   "},
		{name: "no-prefix", input: "abc123"},
		{name: "bare-prefix", input: "0x"},
		{name: "non-hex", input: "0xzz99"},
		{name: "oversized", input: "0x" + strings.Repeat("a", 200)},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewHash(tt.input); !errors.Is(err, ErrInvalidHash) {
				t.Fatalf("expected ErrInvalidHash, got %v", err)
			}
		})
	}
}

func TestPostIsRoot(t *testing.T) {
	root := rootPost(hashOf(1), 100, 0, "root")
	if !root.IsRoot() {
		t.Fatalf("self-rooted rows are roots")
	}
	reply := replyPost(hashOf(2), root.Hash, root.Hash, 200, 1000, "reply")
	if reply.IsRoot() {
		t.Fatalf("replies are not roots")
	}
}
