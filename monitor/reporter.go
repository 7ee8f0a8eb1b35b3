package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"lsfwatch/snapshot"
)

// Reporter receives the human-facing status events: one call per state
// transition and per poll result. Implementations must not block the loop.
type Reporter interface {
	LoggingIn()
	LoginOK()
	Changed(snap snapshot.Snapshot)
	Unchanged(snap snapshot.Snapshot)
	Recovering(err error, retryIn time.Duration)
	Terminated(reason string)
}

// NopReporter discards all events. Used in tests.
type NopReporter struct{}

func (NopReporter) LoggingIn()                          {}
func (NopReporter) LoginOK()                            {}
func (NopReporter) Changed(snapshot.Snapshot)           {}
func (NopReporter) Unchanged(snapshot.Snapshot)         {}
func (NopReporter) Recovering(error, time.Duration)     {}
func (NopReporter) Terminated(string)                   {}

var (
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	changeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	quietStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // red
	recoverStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
)

// Console writes timestamped, colored status lines. Logs go to stderr via
// slog; these lines are the primary operator surface on stdout.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a Console reporter. If w is nil, os.Stdout is used.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) line(style lipgloss.Style, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stamp := time.Now().Format("02.01.2006 15:04:05")
	fmt.Fprintln(c.w, style.Render(stamp+" - "+fmt.Sprintf(format, args...)))
}

func (c *Console) LoggingIn() {
	c.line(infoStyle, "Logging in to the portal...")
}

func (c *Console) LoginOK() {
	c.line(okStyle, "Logged in; monitoring for changes")
}

func (c *Console) Changed(snap snapshot.Snapshot) {
	c.line(changeStyle, "Changes detected! (%s)", snap.Fingerprint())
}

func (c *Console) Unchanged(snapshot.Snapshot) {
	c.line(quietStyle, "No changes detected")
}

func (c *Console) Recovering(err error, retryIn time.Duration) {
	c.line(recoverStyle, "Error: %v; retrying in %s", err, retryIn)
}

func (c *Console) Terminated(reason string) {
	c.line(infoStyle, "Shutting down: %s", reason)
}
