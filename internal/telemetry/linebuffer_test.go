package telemetry

import (
	"strings"
	"testing"
)

func drain(b *LineBuffer) []string {
	var out []string
	for {
		line, ok := b.NextLine()
		if !ok {
			return out
		}
		out = append(out, line)
	}
}

func TestLineBuffer_RetainsPartialLines(t *testing.T) {
	var b LineBuffer

	b.Write([]byte("X1=512, Y1=5"))
	if _, ok := b.NextLine(); ok {
		t.Fatal("partial line should not be returned")
	}
	if b.Buffered() != len("X1=512, Y1=5") {
		t.Errorf("Buffered() = %d", b.Buffered())
	}

	b.Write([]byte("12, X2=512, Y2=512, BTN=OPEN\r\nX1=1"))
	got := drain(&b)
	if len(got) != 1 || got[0] != "X1=512, Y1=512, X2=512, Y2=512, BTN=OPEN" {
		t.Fatalf("lines = %q", got)
	}

	b.Write([]byte("\n"))
	if got := drain(&b); len(got) != 1 || got[0] != "X1=1" {
		t.Errorf("lines = %q", got)
	}
}

func TestLineBuffer_SkipsBlankLines(t *testing.T) {
	var b LineBuffer
	b.Write([]byte("\n\r\n   \na\n\n b \n"))

	got := drain(&b)
	if strings.Join(got, "|") != "a|b" {
		t.Errorf("lines = %q, want [a b]", got)
	}
}

func TestLineBuffer_DropsOverlongRuns(t *testing.T) {
	var b LineBuffer
	b.Write([]byte(strings.Repeat("x", MaxLineLength+1)))

	if b.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0 after overflow", b.Buffered())
	}
	if b.Dropped() != MaxLineLength+1 {
		t.Errorf("Dropped() = %d", b.Dropped())
	}

	b.Write([]byte("ok\n"))
	if got := drain(&b); len(got) != 1 || got[0] != "ok" {
		t.Errorf("lines after overflow = %q", got)
	}
}
