package monitor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"lsfwatch/snapshot"
)

func TestConsole_WritesTimestampedLines(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.LoggingIn()
	c.LoginOK()
	c.Unchanged(snapshot.New("A:90"))
	c.Changed(snapshot.New("A:95"))
	c.Recovering(errors.New("session expired"), 5*time.Second)
	c.Terminated("cancelled")

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6:\n%s", len(lines), out)
	}

	for _, want := range []string{
		"Logging in",
		"Logged in",
		"No changes",
		"Changes detected!",
		"session expired",
		"retrying in 5s",
		"cancelled",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	// Every line starts with a dd.mm.yyyy hh:mm:ss timestamp.
	for _, line := range lines {
		plain := stripANSI(line)
		if _, err := time.Parse("02.01.2006 15:04:05", plain[:19]); err != nil {
			t.Fatalf("line %q does not start with a timestamp: %v", plain, err)
		}
	}
}

func TestConsole_ChangedIncludesFingerprint(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	snap := snapshot.New("A:95")
	c.Changed(snap)

	if !strings.Contains(buf.String(), snap.Fingerprint()) {
		t.Fatalf("change line missing fingerprint %q:\n%s", snap.Fingerprint(), buf.String())
	}
}

// stripANSI removes color escape sequences so timestamps can be parsed.
func stripANSI(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
