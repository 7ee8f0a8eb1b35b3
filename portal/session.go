// Package portal drives an authenticated browser session against the LSF
// grade portal: login through the SSO/MFA redirect chain, navigation to the
// grades page, and extraction of a comparable snapshot of its content.
//
// The browser itself stays behind the narrow Session/Element capability
// interfaces so the gateway and the monitor can be tested against fakes.
package portal

import (
	"context"
	"time"
)

// Session is the narrow capability the portal needs from a browser page.
// A Session is owned by exactly one Gateway and never shared.
type Session interface {
	// Navigate drives the session to url and waits for the load to settle.
	Navigate(ctx context.Context, url string) error
	// Reload refreshes the current page.
	Reload(ctx context.Context) error
	// WaitVisible blocks until an element matching selector is present,
	// bounded by timeout.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	// Elements returns all elements currently matching selector, without
	// waiting. An empty result is not an error.
	Elements(ctx context.Context, selector string) ([]Element, error)
	// CurrentURL returns the page URL, or "" when it cannot be read.
	CurrentURL() string
	Close() error
}

// Element is a single located page element.
type Element interface {
	Text(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
}

// Opener creates fresh sessions. The rod-backed implementation opens a new
// stealth page on the managed browser; tests provide fakes.
type Opener interface {
	OpenSession(ctx context.Context) (Session, error)
}
