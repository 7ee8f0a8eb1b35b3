// Package snapshot holds the normalized capture of the grades page and the
// change detection between successive captures. Two snapshots are equal iff
// their normalized content is byte-equal; whitespace and formatting noise is
// stripped before a snapshot is ever constructed, so equality here is exact.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Snapshot is one observation of the grades page. Content is already
// normalized (see Normalize); TakenAt records when it was read.
type Snapshot struct {
	Content string
	TakenAt time.Time
}

// New creates a Snapshot from already-normalized content.
func New(content string) Snapshot {
	return Snapshot{Content: content, TakenAt: time.Now()}
}

// Empty reports whether the snapshot carries no content at all.
func (s Snapshot) Empty() bool { return s.Content == "" }

// Fingerprint returns a short stable digest of the content, suitable for
// log lines where the raw grade data must not appear.
func (s Snapshot) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.Content))
	return hex.EncodeToString(sum[:8])
}

// Result classifies a comparison between the stored and the current snapshot.
type Result int

const (
	// First means there was no previous observation. Never alerts.
	First Result = iota
	// Unchanged means the normalized content is identical.
	Unchanged
	// Changed means the content differs and an alert is due.
	Changed
)

func (r Result) String() string {
	switch r {
	case First:
		return "first"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	}
	return "unknown"
}

// Compare reports how cur relates to prev. prev == nil means cur is the
// first observation.
func Compare(prev *Snapshot, cur Snapshot) Result {
	if prev == nil {
		return First
	}
	if prev.Content == cur.Content {
		return Unchanged
	}
	return Changed
}

// Normalize collapses all runs of spaces and tabs, trims every line, drops
// empty lines, and normalizes line endings. Visually identical renderings of
// the same grade table normalize to the same string.
func Normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	var out []string
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
