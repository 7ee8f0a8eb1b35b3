package portal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"lsfwatch/browser"
)

// RodOpener opens stealth pages on a managed Chrome instance.
type RodOpener struct {
	mgr      *browser.Manager
	blocking []string
	logger   *slog.Logger
}

// NewRodOpener creates an Opener backed by the given browser manager.
// blocking lists resource types to drop on every page (images, fonts, media).
func NewRodOpener(mgr *browser.Manager, blocking []string, logger *slog.Logger) *RodOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodOpener{mgr: mgr, blocking: blocking, logger: logger}
}

func (o *RodOpener) OpenSession(_ context.Context) (Session, error) {
	b := o.mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("portal: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("portal: create page: %w", err)
	}

	if len(o.blocking) > 0 {
		if err := browser.BlockResources(page, o.blocking); err != nil {
			o.logger.Warn("portal: resource blocking failed", "error", err)
		}
	}

	return &rodSession{page: page}, nil
}

// rodSession adapts a Rod page to the Session interface.
type rodSession struct {
	page *rod.Page
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("portal: navigate %s: %w", url, err)
	}
	// Load completion is best-effort: SSO pages keep long-polling
	// connections open and never reach a final load state.
	_ = p.WaitLoad()
	return nil
}

func (s *rodSession) Reload(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("portal: reload: %w", err)
	}
	_ = p.WaitLoad()
	return nil
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := s.page.Context(tctx).Element(selector)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el}, nil
}

func (s *rodSession) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

func (s *rodSession) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *rodSession) Close() error {
	return s.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) HTML(ctx context.Context) (string, error) {
	return e.el.Context(ctx).HTML()
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}
