package main

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateStr(t *testing.T) {
	if got := truncateStr("short", 10); got != "short" {
		t.Errorf("truncateStr(short, 10) = %q, want unchanged", got)
	}
	if got := truncateStr("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncateStr(abcdefghij, 5) = %q, want %q", got, "abcd…")
	}

	// Truncation must land on a rune boundary, never mid-codepoint.
	got := truncateStr("crème brûlée à la carte", 10)
	if !utf8.ValidString(got) {
		t.Errorf("truncateStr split a multi-byte rune: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated string %q missing ellipsis", got)
	}
	if n := utf8.RuneCountInString(got); n != 10 {
		t.Errorf("truncated to %d runes, want 10", n)
	}
}
