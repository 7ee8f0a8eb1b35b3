package portal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeElement struct {
	mu      sync.Mutex
	text    string
	html    string
	clicks  int
	inputs  []string
	onClick func()
}

func (e *fakeElement) Text(context.Context) (string, error) { return e.text, nil }
func (e *fakeElement) HTML(context.Context) (string, error) { return e.html, nil }

func (e *fakeElement) Click(context.Context) error {
	e.mu.Lock()
	e.clicks++
	cb := e.onClick
	e.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (e *fakeElement) Input(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, text)
	return nil
}

// fakeSession serves scripted elements. An entry in appearAt delays a
// selector's visibility, which is how the MFA redirect chain is simulated.
type fakeSession struct {
	mu       sync.Mutex
	url      string
	navURL   string // URL to land on after Navigate; simulates SSO redirect
	elements map[string][]*fakeElement
	appearAt map[string]time.Time
	reloads  int
	closed   bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		elements: make(map[string][]*fakeElement),
		appearAt: make(map[string]time.Time),
	}
}

func (s *fakeSession) set(sel string, els ...*fakeElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[sel] = els
}

func (s *fakeSession) setURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = u
}

func (s *fakeSession) lookup(sel string) []*fakeElement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.appearAt[sel]; ok && time.Now().Before(at) {
		return nil
	}
	return s.elements[sel]
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.navURL != "" {
		s.url = s.navURL
	} else {
		s.url = url
	}
	return nil
}

func (s *fakeSession) Reload(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
	return nil
}

func (s *fakeSession) WaitVisible(_ context.Context, sel string, timeout time.Duration) (Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		if els := s.lookup(sel); len(els) > 0 {
			return els[0], nil
		}
		if time.Now().After(deadline) {
			return nil, context.DeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *fakeSession) Elements(_ context.Context, sel string) ([]Element, error) {
	els := s.lookup(sel)
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = el
	}
	return out, nil
}

func (s *fakeSession) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeOpener struct {
	sess  *fakeSession
	opens int
	err   error
}

func (o *fakeOpener) OpenSession(context.Context) (Session, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.sess, nil
}

// newLoginSession scripts the full SSO form and an immediate off-portal
// redirect, matching what a real login bounce looks like.
func newLoginSession() *fakeSession {
	s := newFakeSession()
	s.navURL = "https://login.microsoftonline.com/common/oauth2"
	s.set(".azure", &fakeElement{})
	s.set("#i0116", &fakeElement{})
	s.set("#i0118", &fakeElement{})
	s.set("#idSIButton9", &fakeElement{})
	return s
}

func testGateway(t *testing.T, sess *fakeSession, loginMaxWait time.Duration) *Gateway {
	t.Helper()
	g, err := NewGateway(GatewayConfig{
		Opener: &fakeOpener{sess: sess},
		Credentials: Credentials{
			Username: "student",
			Password: "secret",
			LoginURL: "https://lsf.example.edu/qisserver/rds",
		},
		WaitTimeout:  50 * time.Millisecond,
		LoginMaxWait: loginMaxWait,
		PollEvery:    2 * time.Millisecond,
		SettleDelay:  time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestLogin_SucceedsWhenIndicatorAppearsWithinBudget(t *testing.T) {
	sess := newLoginSession()
	// The post-login indicator shows up well inside the budget, like an
	// MFA approval landing after a while.
	sess.appearAt[".auflistung"] = time.Now().Add(30 * time.Millisecond)
	sess.set(".auflistung", &fakeElement{}, &fakeElement{})

	g := testGateway(t, sess, 300*time.Millisecond)
	if err := g.Login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	user := sess.lookup("#i0116")[0]
	pass := sess.lookup("#i0118")[0]
	submit := sess.lookup("#idSIButton9")[0]
	if len(user.inputs) != 1 || user.inputs[0] != "student" {
		t.Fatalf("username inputs = %v", user.inputs)
	}
	if len(pass.inputs) != 1 || pass.inputs[0] != "secret" {
		t.Fatalf("password inputs = %v", pass.inputs)
	}
	if submit.clicks != 2 {
		t.Fatalf("submit clicked %d times, want 2", submit.clicks)
	}
}

func TestLogin_TimesOutWhenIndicatorNeverAppears(t *testing.T) {
	sess := newLoginSession()

	g := testGateway(t, sess, 40*time.Millisecond)
	err := g.Login(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestLogin_SucceedsViaPortalHostURL(t *testing.T) {
	sess := newLoginSession()
	// Second submit (the password step) redirects back to the portal.
	submit := sess.lookup("#idSIButton9")[0]
	submit.onClick = func() {
		submit.mu.Lock()
		done := submit.clicks >= 2
		submit.mu.Unlock()
		if done {
			sess.setURL("https://LSF.example.edu/qisserver/rds?state=user")
		}
	}

	g := testGateway(t, sess, 300*time.Millisecond)
	if err := g.Login(context.Background()); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !g.IsValid() {
		t.Fatal("session should be valid after landing on the portal host")
	}
}

func TestLogin_AuthErrorFailsFast(t *testing.T) {
	sess := newLoginSession()
	sess.set("#usernameError, #passwordError", &fakeElement{text: "Your account or password is incorrect."})

	g := testGateway(t, sess, 10*time.Second)
	start := time.Now()
	err := g.Login(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("auth rejection took %s, should not burn the login budget", elapsed)
	}
}

func TestLogin_BadUsernameRejectedBeforePasswordStep(t *testing.T) {
	// A rejected username shows the error banner and the password field
	// never renders. The timed-out wait for it must classify as ErrAuth,
	// not ErrTimeout, so the monitor never retries a bad account.
	sess := newFakeSession()
	sess.navURL = "https://login.microsoftonline.com/common/oauth2"
	sess.set(".azure", &fakeElement{})
	sess.set("#i0116", &fakeElement{})
	sess.set("#idSIButton9", &fakeElement{})
	sess.set("#usernameError, #passwordError", &fakeElement{text: "This username may be incorrect."})

	g := testGateway(t, sess, 10*time.Second)
	start := time.Now()
	err := g.Login(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rejection took %s, should not burn the login budget", elapsed)
	}
}

func TestLogin_CancelledDuringWait(t *testing.T) {
	sess := newLoginSession()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	g := testGateway(t, sess, 10*time.Second)
	err := g.Login(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNavigateToGrades_FollowsMenuPath(t *testing.T) {
	sess := newFakeSession()

	node := &fakeElement{text: "Bachelor Informatik"}
	grades := &fakeElement{text: "Notenspiegel"}
	grades.onClick = func() {
		sess.set(".treelist", &fakeElement{})
		sess.set(".treelist a", node)
	}

	second := &fakeElement{text: "Prüfungsverwaltung"}
	second.onClick = func() {
		sess.set(".auflistung", &fakeElement{text: "Info"}, grades)
	}
	sess.set(".auflistung", &fakeElement{text: "Veranstaltungen"}, second)

	g := testGateway(t, sess, time.Second)
	g.sess = sess

	if err := g.NavigateToGrades(context.Background()); err != nil {
		t.Fatalf("navigate failed: %v", err)
	}
	if second.clicks != 1 {
		t.Fatalf("second menu entry clicked %d times, want 1", second.clicks)
	}
	if grades.clicks != 1 {
		t.Fatalf("grades entry clicked %d times, want 1", grades.clicks)
	}
	if node.clicks != 1 {
		t.Fatalf("tree node clicked %d times, want 1", node.clicks)
	}
}

func TestNavigateToGrades_SingleMenuEntry(t *testing.T) {
	sess := newFakeSession()
	sess.set(".auflistung", &fakeElement{text: "Veranstaltungen"})

	g := testGateway(t, sess, time.Second)
	g.sess = sess

	err := g.NavigateToGrades(context.Background())
	if !errors.Is(err, ErrNavigation) {
		t.Fatalf("expected ErrNavigation, got %v", err)
	}
}

func TestNavigateToGrades_NoGradesEntry(t *testing.T) {
	sess := newFakeSession()
	second := &fakeElement{text: "Prüfungsverwaltung"}
	sess.set(".auflistung", &fakeElement{text: "Info"}, second)

	g := testGateway(t, sess, time.Second)
	g.sess = sess

	err := g.NavigateToGrades(context.Background())
	if !errors.Is(err, ErrNavigation) {
		t.Fatalf("expected ErrNavigation, got %v", err)
	}
}

func TestNavigateToGrades_MenuAbsent(t *testing.T) {
	sess := newFakeSession()

	g := testGateway(t, sess, time.Second)
	g.sess = sess

	err := g.NavigateToGrades(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExtract_ReturnsNormalizedSnapshot(t *testing.T) {
	sess := newFakeSession()
	sess.set(".content", &fakeElement{html: `<div><table>
		<tr><td>Algebra</td><td>  1.7 </td></tr>
	</table></div>`})

	g := testGateway(t, sess, time.Second)
	g.sess = sess

	snap, err := g.Extract(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Content != "Algebra | 1.7" {
		t.Fatalf("snapshot content = %q", snap.Content)
	}
}

func TestExtract_MissingContentRegion(t *testing.T) {
	sess := newFakeSession()

	g := testGateway(t, sess, time.Second)
	g.sess = sess

	_, err := g.Extract(context.Background())
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtract_Idempotent(t *testing.T) {
	sess := newFakeSession()
	sess.set(".content", &fakeElement{html: `<table><tr><td>Algebra</td><td>1.7</td></tr></table>`})

	g := testGateway(t, sess, time.Second)
	g.sess = sess

	ctx := context.Background()
	first, err := g.Extract(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.Extract(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Content != second.Content {
		t.Fatalf("repeated extraction differs: %q vs %q", first.Content, second.Content)
	}
}

func TestIsValid(t *testing.T) {
	g := testGateway(t, newFakeSession(), time.Second)
	if g.IsValid() {
		t.Fatal("no session should not be valid")
	}

	sess := newFakeSession()
	g.sess = sess

	sess.setURL("https://lsf.example.edu/qisserver/rds?state=user")
	if !g.IsValid() {
		t.Fatal("portal URL should be valid")
	}

	sess.setURL("https://login.microsoftonline.com/common/oauth2")
	if g.IsValid() {
		t.Fatal("SSO bounce should invalidate the session")
	}
}

func TestRefresh(t *testing.T) {
	sess := newFakeSession()
	g := testGateway(t, sess, time.Second)
	g.sess = sess

	if err := g.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sess.reloads != 1 {
		t.Fatalf("reloads = %d, want 1", sess.reloads)
	}
}

func TestClose_ReleasesSession(t *testing.T) {
	sess := newFakeSession()
	g := testGateway(t, sess, time.Second)
	g.sess = sess

	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if !sess.closed {
		t.Fatal("session not closed")
	}
	// Idempotent.
	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
}
