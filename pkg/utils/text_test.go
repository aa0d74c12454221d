package utils

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"abcdefghijk", 10, "abcdefg..."},
		{"Zürich café résumé", 10, "Zürich ..."},
		{"日本語のテキストです", 6, "日本語..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
		}
	}
}

func TestTruncateMultiByteBoundary(t *testing.T) {
	// Byte slicing at 50 would split the two-byte "é".
	s := strings.Repeat("a", 46) + "é" + strings.Repeat("b", 10)
	got := Truncate(s, 50)
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 50 {
		t.Errorf("got %d runes, want 50", n)
	}
}
