// Package monitor runs the poll loop: establish a portal session, extract a
// grades snapshot on a fixed interval, compare it to the previous one, and
// alert on change. Failures are classified at this boundary — a rejected
// login terminates the process, everything else feeds the recovery path,
// which always rebuilds the session from scratch.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lsfwatch/alert"
	"lsfwatch/portal"
	"lsfwatch/snapshot"
)

// Portal is what the monitor needs from the session gateway. Satisfied by
// *portal.Gateway; tests provide fakes.
type Portal interface {
	Login(ctx context.Context) error
	NavigateToGrades(ctx context.Context) error
	Refresh(ctx context.Context) error
	Extract(ctx context.Context) (snapshot.Snapshot, error)
	IsValid() bool
	Close() error
}

// State is the monitor's lifecycle state. No other states are reachable.
type State int

const (
	StateUninitialized State = iota
	StateLoggingIn
	StatePolling
	StateRecovering
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoggingIn:
		return "logging-in"
	case StatePolling:
		return "polling"
	case StateRecovering:
		return "recovering"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Config configures a Monitor.
type Config struct {
	Portal   Portal
	Alert    alert.Emitter
	Reporter Reporter

	// CheckInterval is the pause between poll iterations, measured from the
	// start of an iteration: time spent extracting is subtracted.
	CheckInterval time.Duration

	// BackoffBase and BackoffCap shape the recovery delay: base doubled per
	// consecutive failure, capped. Retries are unlimited — the watch should
	// outlive portal maintenance windows — but the cap keeps a struggling
	// server from being hammered.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Rebuild, when set, is called during recovery before the next login
	// attempt. Wired to the browser restart in production.
	Rebuild func(ctx context.Context) error

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Alert == nil {
		c.Alert = alert.Nop{}
	}
	if c.Reporter == nil {
		c.Reporter = NopReporter{}
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Polls               int64 `json:"polls"`
	Changes             int64 `json:"changes"`
	Alerts              int64 `json:"alerts"`
	Errors              int64 `json:"errors"`
	Recoveries          int64 `json:"recoveries"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
}

// Monitor owns the poll state: the previous snapshot, the failure count and
// the last success time. All of it lives in process memory only.
type Monitor struct {
	cfg Config

	mu          sync.Mutex
	state       State
	prev        *snapshot.Snapshot
	failures    int
	lastSuccess time.Time
	stats       Stats
}

// New creates a Monitor. Call Run to start the loop.
func New(cfg Config) (*Monitor, error) {
	cfg.defaults()
	if cfg.Portal == nil {
		return nil, fmt.Errorf("monitor: portal is required")
	}
	return &Monitor{cfg: cfg, state: StateUninitialized}, nil
}

// State returns the current lifecycle state. Thread-safe.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns the current counters. Thread-safe.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.ConsecutiveFailures = m.failures
	return s
}

// Run drives the state machine until the context is cancelled (returns nil)
// or the portal rejects the credentials (returns the ErrAuth-wrapped error).
// Transient failures never escape: they transition to recovery.
func (m *Monitor) Run(ctx context.Context) error {
	log := m.cfg.Logger
	defer m.cfg.Portal.Close()

	for {
		if ctx.Err() != nil {
			return m.terminate("cancelled")
		}

		m.setState(StateLoggingIn)
		m.cfg.Reporter.LoggingIn()
		err := m.establish(ctx)
		if err == nil {
			m.cfg.Reporter.LoginOK()
			err = m.poll(ctx)
		}

		if ctx.Err() != nil {
			return m.terminate("cancelled")
		}

		if errors.Is(err, portal.ErrAuth) {
			log.Error("monitor: login rejected, giving up", "error", err)
			m.terminate("authentication failed")
			return err
		}

		// Recovering: full session rebuild, backed-off re-login.
		m.setState(StateRecovering)
		m.bumpFailure()
		delay := m.backoffDelay()
		log.Warn("monitor: recovering", "error", err, "retry_in", delay)
		m.cfg.Reporter.Recovering(err, delay)

		m.cfg.Portal.Close()
		if m.cfg.Rebuild != nil {
			if rerr := m.cfg.Rebuild(ctx); rerr != nil {
				log.Error("monitor: rebuild failed", "error", rerr)
			}
		}

		if err := sleepCtx(ctx, delay); err != nil {
			return m.terminate("cancelled")
		}
	}
}

// establish logs in, navigates to the grades page, and seeds the previous
// snapshot with the first observation (which never alerts).
func (m *Monitor) establish(ctx context.Context) error {
	if err := m.cfg.Portal.Login(ctx); err != nil {
		return fmt.Errorf("monitor: login: %w", err)
	}
	if err := m.cfg.Portal.NavigateToGrades(ctx); err != nil {
		return fmt.Errorf("monitor: navigate to grades: %w", err)
	}

	snap, err := m.cfg.Portal.Extract(ctx)
	if err != nil {
		return fmt.Errorf("monitor: initial extract: %w", err)
	}

	m.mu.Lock()
	// First observation only seeds state, per snapshot.Compare semantics.
	if snapshot.Compare(m.prev, snap) == snapshot.First {
		m.prev = &snap
	}
	m.mu.Unlock()
	m.markSuccess()

	m.cfg.Logger.Info("monitor: initial snapshot seeded", "fingerprint", snap.Fingerprint())
	return nil
}

// poll is the steady state: refresh, extract, compare, maybe alert, sleep.
// It returns a non-nil error to trigger recovery, or ctx.Err() when
// cancelled.
func (m *Monitor) poll(ctx context.Context) error {
	m.setState(StatePolling)
	log := m.cfg.Logger

	for {
		start := time.Now()

		if !m.cfg.Portal.IsValid() {
			m.countError()
			return fmt.Errorf("monitor: session no longer valid")
		}

		if err := m.cfg.Portal.Refresh(ctx); err != nil {
			m.countError()
			return fmt.Errorf("monitor: refresh: %w", err)
		}

		cur, err := m.cfg.Portal.Extract(ctx)
		if err != nil {
			m.countError()
			return fmt.Errorf("monitor: extract: %w", err)
		}

		m.mu.Lock()
		prev := m.prev
		m.mu.Unlock()

		switch snapshot.Compare(prev, cur) {
		case snapshot.Changed:
			log.Info("monitor: change detected",
				"previous", prev.Fingerprint(), "current", cur.Fingerprint())
			m.countChange()
			m.cfg.Reporter.Changed(cur)
			m.emitAlert(ctx)
		case snapshot.Unchanged:
			log.Debug("monitor: no change", "fingerprint", cur.Fingerprint())
			m.cfg.Reporter.Unchanged(cur)
		case snapshot.First:
			// Only reachable if seeding was skipped; seed now, no alert.
			log.Info("monitor: first observation", "fingerprint", cur.Fingerprint())
		}

		m.mu.Lock()
		m.prev = &cur
		m.stats.Polls++
		m.mu.Unlock()
		m.markSuccess()

		// Sleep only for the remainder of the interval.
		if d := m.cfg.CheckInterval - time.Since(start); d > 0 {
			if err := sleepCtx(ctx, d); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// emitAlert fires the audible alert. Emitter failures are logged and
// swallowed: a missed sound must not stop change detection.
func (m *Monitor) emitAlert(ctx context.Context) {
	if err := m.cfg.Alert.Emit(ctx); err != nil {
		m.cfg.Logger.Warn("monitor: alert failed", "error", err)
		return
	}
	m.mu.Lock()
	m.stats.Alerts++
	m.mu.Unlock()
}

// backoffDelay doubles the base per consecutive failure, capped.
func (m *Monitor) backoffDelay() time.Duration {
	m.mu.Lock()
	failures := m.failures
	m.mu.Unlock()

	d := m.cfg.BackoffBase
	for i := 1; i < failures && d < m.cfg.BackoffCap; i++ {
		d *= 2
	}
	if d > m.cfg.BackoffCap {
		d = m.cfg.BackoffCap
	}
	return d
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Monitor) markSuccess() {
	m.mu.Lock()
	m.failures = 0
	m.lastSuccess = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) bumpFailure() {
	m.mu.Lock()
	m.failures++
	m.stats.Recoveries++
	m.mu.Unlock()
}

func (m *Monitor) countError() {
	m.mu.Lock()
	m.stats.Errors++
	m.mu.Unlock()
}

func (m *Monitor) countChange() {
	m.mu.Lock()
	m.stats.Changes++
	m.mu.Unlock()
}

func (m *Monitor) terminate(reason string) error {
	m.setState(StateTerminated)
	m.cfg.Reporter.Terminated(reason)
	m.cfg.Logger.Info("monitor: terminated", "reason", reason)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
