package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("日本語のテキスト", 3); got != "日本語..." {
		t.Errorf("multibyte truncate: got %s", got)
	}
}

func TestCharLen(t *testing.T) {
	if CharLen("abc") != 3 {
		t.Error("ascii length")
	}
	if CharLen("文書") != 2 {
		t.Errorf("got %d", CharLen("文書"))
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace("  a \n\t b  "); got != "a b" {
		t.Errorf("got %q", got)
	}
}
