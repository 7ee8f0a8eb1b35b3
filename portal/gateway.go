package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"lsfwatch/config"
	"lsfwatch/snapshot"
)

// Credentials identify one portal account. Immutable for the process
// lifetime, never persisted.
type Credentials struct {
	Username string
	Password string
	LoginURL string
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Opener      Opener
	Credentials Credentials
	Selectors   *config.Selectors

	// WaitTimeout bounds each single element wait, LoginMaxWait bounds the
	// whole post-login redirect chain. The two nest: the outer budget keeps
	// ticking while individual inner waits come and go.
	WaitTimeout  time.Duration
	LoginMaxWait time.Duration

	// PollEvery is the cadence of the post-login readiness check.
	PollEvery time.Duration
	// SettleDelay is the pause between the username and password steps of
	// the SSO form, which re-renders in place.
	SettleDelay time.Duration

	Logger *slog.Logger
}

func (c *GatewayConfig) defaults() {
	if c.Selectors == nil {
		c.Selectors = config.DefaultSelectors()
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	if c.LoginMaxWait <= 0 {
		c.LoginMaxWait = 5 * time.Minute
	}
	if c.PollEvery <= 0 {
		c.PollEvery = time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gateway owns the authenticated portal session. It is not safe for
// concurrent use; the monitor drives it from a single loop.
type Gateway struct {
	cfg        GatewayConfig
	portalHost string
	sess       Session
}

// NewGateway creates a Gateway. Call Login before anything else.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	cfg.defaults()
	if cfg.Opener == nil {
		return nil, fmt.Errorf("portal: gateway needs an Opener")
	}

	u, err := url.Parse(cfg.Credentials.LoginURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("portal: login URL %q: no host", cfg.Credentials.LoginURL)
	}

	return &Gateway{cfg: cfg, portalHost: strings.ToLower(u.Host)}, nil
}

// Login opens a fresh session and performs the full credential + SSO + MFA
// sequence. On return the session is authenticated and sitting somewhere on
// the portal. ErrAuth means the credentials were rejected and must not be
// retried; every other failure is transient.
func (g *Gateway) Login(ctx context.Context) error {
	g.Close()

	sess, err := g.cfg.Opener.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("portal: open session: %w", err)
	}
	g.sess = sess

	log := g.cfg.Logger
	sel := g.cfg.Selectors

	log.Info("portal: navigating to login page", "url", g.cfg.Credentials.LoginURL)
	if err := sess.Navigate(ctx, g.cfg.Credentials.LoginURL); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	if err := g.clickWhenVisible(ctx, sel.SSOButton); err != nil {
		return err
	}

	log.Info("portal: submitting credentials")
	if err := g.inputWhenVisible(ctx, sel.UsernameInput, g.cfg.Credentials.Username); err != nil {
		return g.classifyLoginErr(ctx, err)
	}
	if err := g.clickWhenVisible(ctx, sel.SubmitButton); err != nil {
		return g.classifyLoginErr(ctx, err)
	}

	// The SSO form swaps the username step for the password step in place.
	if err := sleepCtx(ctx, g.cfg.SettleDelay); err != nil {
		return err
	}

	if err := g.inputWhenVisible(ctx, sel.PasswordInput, g.cfg.Credentials.Password); err != nil {
		return g.classifyLoginErr(ctx, err)
	}
	if err := g.clickWhenVisible(ctx, sel.SubmitButton); err != nil {
		return g.classifyLoginErr(ctx, err)
	}

	return g.waitPostLogin(ctx)
}

// classifyLoginErr reclassifies a timed-out form step as ErrAuth when the
// credential-error banner is visible. A rejected username stops the SSO form
// before the password field ever renders, so without this check the miss
// would look like a transient timeout and be retried against a bad account.
func (g *Gateway) classifyLoginErr(ctx context.Context, err error) error {
	if !errors.Is(err, ErrTimeout) {
		return err
	}
	if g.authRejected(ctx) {
		return g.authErr()
	}
	return err
}

// authRejected reports whether the SSO credential-error banner is visible.
func (g *Gateway) authRejected(ctx context.Context) bool {
	els, err := g.sess.Elements(ctx, g.cfg.Selectors.AuthError)
	return err == nil && len(els) > 0
}

func (g *Gateway) authErr() error {
	return fmt.Errorf("%w: credential error shown for user %q", ErrAuth, g.cfg.Credentials.Username)
}

// waitPostLogin polls until the MFA/redirect chain lands back on the portal,
// bounded by LoginMaxWait. A visible credential-error banner fails fast with
// ErrAuth instead of burning the whole budget.
func (g *Gateway) waitPostLogin(ctx context.Context) error {
	log := g.cfg.Logger
	log.Info("portal: waiting for login/MFA to finish", "max_wait", g.cfg.LoginMaxWait)

	deadline := time.Now().Add(g.cfg.LoginMaxWait)
	for {
		if g.authRejected(ctx) {
			return g.authErr()
		}

		if g.postLoginReady(ctx) {
			log.Info("portal: post-login detected")
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: post-login indicator not seen within %s", ErrTimeout, g.cfg.LoginMaxWait)
		}
		if err := sleepCtx(ctx, g.cfg.PollEvery); err != nil {
			return err
		}
	}
}

// postLoginReady reports whether the session has landed back on the portal:
// either the URL host matches, or a known portal element is present.
func (g *Gateway) postLoginReady(ctx context.Context) bool {
	if cur := g.sess.CurrentURL(); cur != "" {
		if u, err := url.Parse(cur); err == nil && strings.ToLower(u.Host) == g.portalHost {
			return true
		}
	}

	for _, sel := range g.cfg.Selectors.PostLoginIndicators {
		if els, err := g.sess.Elements(ctx, sel); err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

// NavigateToGrades drives the session from any authenticated portal state to
// the grades overview: menu → grades entry → first node of the program tree.
func (g *Gateway) NavigateToGrades(ctx context.Context) error {
	sel := g.cfg.Selectors
	log := g.cfg.Logger

	if _, err := g.waitVisible(ctx, sel.MenuLink); err != nil {
		return err
	}
	links, err := g.sess.Elements(ctx, sel.MenuLink)
	if err != nil || len(links) < 2 {
		return fmt.Errorf("%w: navigation menu not found after login", ErrNavigation)
	}

	log.Info("portal: navigating through menu")
	if err := links[1].Click(ctx); err != nil {
		return fmt.Errorf("%w: menu click: %v", ErrNavigation, err)
	}

	if _, err := g.waitVisible(ctx, sel.MenuLink); err != nil {
		return err
	}
	links, err = g.sess.Elements(ctx, sel.MenuLink)
	if err != nil {
		return fmt.Errorf("%w: menu read: %v", ErrNavigation, err)
	}

	clicked := false
	for _, link := range links {
		text, err := link.Text(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(text, sel.GradesLinkText) {
			if err := link.Click(ctx); err != nil {
				return fmt.Errorf("%w: grades link click: %v", ErrNavigation, err)
			}
			clicked = true
			break
		}
	}
	if !clicked {
		return fmt.Errorf("%w: no menu entry matching %q", ErrNavigation, sel.GradesLinkText)
	}

	if _, err := g.waitVisible(ctx, sel.TreeList); err != nil {
		return err
	}
	nodes, err := g.sess.Elements(ctx, sel.TreeListLink)
	if err != nil || len(nodes) == 0 {
		return fmt.Errorf("%w: program tree is empty", ErrNavigation)
	}
	if err := nodes[0].Click(ctx); err != nil {
		return fmt.Errorf("%w: tree click: %v", ErrNavigation, err)
	}

	return nil
}

// Extract reads the grades content region and returns its normalized
// snapshot. ErrExtraction when the region is absent or unreadable.
func (g *Gateway) Extract(ctx context.Context) (snapshot.Snapshot, error) {
	el, err := g.sess.WaitVisible(ctx, g.cfg.Selectors.ContentRegion, g.cfg.WaitTimeout)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: content region %q: %v", ErrExtraction, g.cfg.Selectors.ContentRegion, err)
	}

	html, err := el.HTML(ctx)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: read content: %v", ErrExtraction, err)
	}

	normalized, err := normalizeContent(html)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return snapshot.New(normalized), nil
}

// Refresh reloads the current page before the next extraction.
func (g *Gateway) Refresh(ctx context.Context) error {
	if g.sess == nil {
		return fmt.Errorf("%w: no session", ErrNavigation)
	}
	if err := g.sess.Reload(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	return nil
}

// IsValid is the cheap liveness check: the session exists and still sits on
// the portal host (an SSO bounce moves it elsewhere).
func (g *Gateway) IsValid() bool {
	if g.sess == nil {
		return false
	}
	cur := g.sess.CurrentURL()
	if cur == "" {
		return false
	}
	u, err := url.Parse(cur)
	if err != nil {
		return false
	}
	return strings.ToLower(u.Host) == g.portalHost
}

// Close releases the session handle. Safe to call repeatedly.
func (g *Gateway) Close() error {
	if g.sess == nil {
		return nil
	}
	err := g.sess.Close()
	g.sess = nil
	return err
}

// waitVisible waits for selector with the inner element timeout, mapping a
// miss to ErrTimeout.
func (g *Gateway) waitVisible(ctx context.Context, selector string) (Element, error) {
	el, err := g.sess.WaitVisible(ctx, selector, g.cfg.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: element %q: %v", ErrTimeout, selector, err)
	}
	return el, nil
}

func (g *Gateway) clickWhenVisible(ctx context.Context, selector string) error {
	el, err := g.waitVisible(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("%w: click %q: %v", ErrNavigation, selector, err)
	}
	return nil
}

func (g *Gateway) inputWhenVisible(ctx context.Context, selector, text string) error {
	el, err := g.waitVisible(ctx, selector)
	if err != nil {
		return err
	}
	if err := el.Input(ctx, text); err != nil {
		return fmt.Errorf("%w: input %q: %v", ErrNavigation, selector, err)
	}
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
