package pageclient_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/identity"
	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/pageclient"
	"github.com/tabwarden/tabwarden/internal/policy"
	"github.com/tabwarden/tabwarden/internal/router"
	"github.com/tabwarden/tabwarden/internal/server"
)

type e2eHarness struct {
	eng     *engine.Engine
	store   *policy.Store
	logPath string
	wsURL   string
}

func newE2E(t *testing.T, mutate func(*policy.Document)) *e2eHarness {
	t.Helper()
	dir := t.TempDir()

	policyPath := filepath.Join(dir, "policy.json")
	doc := policy.DefaultDocument()
	if mutate != nil {
		mutate(doc)
	}
	if err := policy.Save(policyPath, doc); err != nil {
		t.Fatal(err)
	}
	store := policy.NewStore(policyPath)
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}

	logPath := filepath.Join(dir, "decisions.log")
	sink, err := audit.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sink.Close() })

	eng := engine.New(engine.Config{
		Store:        store,
		Consent:      consent.NewMemoryStore(0, 0),
		Sink:         sink,
		Logger:       logging.Discard(),
		Identity:     identity.Identity{ID: "install-test"},
		RetryBackoff: time.Millisecond,
	})

	srv := server.New(server.Config{}, eng, store, sink, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &e2eHarness{
		eng:     eng,
		store:   store,
		logPath: logPath,
		wsURL:   "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/page",
	}
}

// attach dials a page session and starts its read loop.
func attach(t *testing.T, h *e2eHarness, tabID string) *pageclient.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	c, err := pageclient.Dial(ctx, pageclient.Config{
		URL:    h.wsURL,
		TabID:  tabID,
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	go c.Run(ctx)
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func logEntries(t *testing.T, h *e2eHarness) []audit.Entry {
	t.Helper()
	entries, err := audit.ReadAll(h.logPath, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	return entries
}

func TestDialRegistersTab(t *testing.T) {
	h := newE2E(t, nil)
	c := attach(t, h, "")

	if c.TabID() == "" {
		t.Error("no tab id assigned")
	}
	if c.ProfileID() != "balanced" {
		t.Errorf("ProfileID = %q", c.ProfileID())
	}
	if !strings.HasPrefix(c.PolicyHash(), "sha256:") {
		t.Errorf("PolicyHash = %q", c.PolicyHash())
	}
	if got := c.Router().State(); got != router.StateClosed {
		t.Errorf("initial state = %q", got)
	}
}

func TestPromptLifecycle(t *testing.T) {
	h := newE2E(t, nil)
	c := attach(t, h, "t1")

	if err := c.Navigate("https://chatgpt.com/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "prompt to open", func() bool { return c.Router().State() == router.StateOpen })

	d, ok := c.Router().Current()
	if !ok {
		t.Fatal("no current directive")
	}
	if d.Reason != model.ReasonDomain || d.Risk != 40 {
		t.Errorf("directive = %+v", d)
	}

	if err := c.Router().Proceed(context.Background(), ""); err != nil {
		t.Fatalf("Proceed: %v", err)
	}
	if got := c.Router().State(); got != router.StateClosed {
		t.Errorf("state = %q after proceed", got)
	}

	waitFor(t, "decision in the log", func() bool {
		for _, e := range logEntries(t, h) {
			if e.Kind == audit.KindRouterDecision && e.Decision == model.ActionProceed {
				return true
			}
		}
		return false
	})
}

func TestPINGateRoundTrip(t *testing.T) {
	h := newE2E(t, func(doc *policy.Document) {
		doc.SelectedProfileID = "strict"
		doc.AdminPIN = "4312"
		for i := range doc.Profiles {
			if doc.Profiles[i].ID == "strict" {
				doc.Profiles[i].BlockedDomains = []string{"badtool.ai"}
			}
		}
	})
	c := attach(t, h, "t1")

	if err := c.Navigate("https://badtool.ai/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "prompt to open", func() bool { return c.Router().State() == router.StateOpen })

	d, _ := c.Router().Current()
	if !d.PINRequired {
		t.Fatal("directive is not PIN gated")
	}

	if err := c.Router().Proceed(context.Background(), "0000"); !errors.Is(err, router.ErrPINRejected) {
		t.Fatalf("Proceed(wrong pin) = %v, want ErrPINRejected", err)
	}
	if got := c.Router().State(); got != router.StateOpen {
		t.Errorf("state = %q after rejected pin", got)
	}

	if err := c.Router().Proceed(context.Background(), "4312"); err != nil {
		t.Fatalf("Proceed(correct pin) = %v", err)
	}
	if got := c.Router().State(); got != router.StateClosed {
		t.Errorf("state = %q", got)
	}
}

func TestCancelUnderPINShields(t *testing.T) {
	h := newE2E(t, func(doc *policy.Document) {
		doc.SelectedProfileID = "strict"
		doc.AdminPIN = "4312"
	})
	c := attach(t, h, "t1")

	if err := c.Navigate("https://chatgpt.com/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "prompt to open", func() bool { return c.Router().State() == router.StateOpen })

	d, _ := c.Router().Current()
	if !d.PINRequired {
		t.Fatalf("directive = %+v, want pin gated under strict", d)
	}
	if err := c.Router().Cancel(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.Router().State(); got != router.StateShielded {
		t.Fatalf("state = %q, want shielded", got)
	}
}

func TestRedirectResolution(t *testing.T) {
	h := newE2E(t, func(doc *policy.Document) {
		doc.RedirectURL = "https://intranet.example.com/ai-policy"
	})
	c := attach(t, h, "t1")

	if err := c.Navigate("https://chatgpt.com/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "prompt to open", func() bool { return c.Router().State() == router.StateOpen })

	target, err := c.Router().Redirect(context.Background())
	if err != nil {
		t.Fatalf("Redirect: %v", err)
	}
	if target != "https://intranet.example.com/ai-policy" {
		t.Errorf("target = %q", target)
	}

	waitFor(t, "redirect decision in the log", func() bool {
		for _, e := range logEntries(t, h) {
			if e.Kind == audit.KindRouterDecision && e.Decision == model.ActionRedirect {
				return true
			}
		}
		return false
	})
}

func TestPolicyChangeRepromptCycle(t *testing.T) {
	h := newE2E(t, nil)
	c := attach(t, h, "t1")

	if err := c.Navigate("https://chatgpt.com/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "prompt to open", func() bool { return c.Router().State() == router.StateOpen })
	if err := c.Router().Proceed(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	// A policy change wipes consent and sweeps: the tab gets torn down
	// and then re-prompted for the same page.
	h.eng.OnPolicyChanged(context.Background(), h.store.Current())

	waitFor(t, "re-prompt after policy change", func() bool { return c.Router().State() == router.StateOpen })
	waitFor(t, "policy_reprompt entry", func() bool {
		for _, e := range logEntries(t, h) {
			if e.Kind == audit.KindPolicyReprompt {
				return true
			}
		}
		return false
	})
}

func TestSignalReportPromptsUI(t *testing.T) {
	h := newE2E(t, nil)
	c := attach(t, h, "t1")

	if err := c.Navigate("https://workbench.internal.example.com/"); err != nil {
		t.Fatal(err)
	}
	// Not an AI domain: navigation alone stays silent, signals prompt.
	err := c.ReportSignals("https://workbench.internal.example.com/", []string{"chat_input", "streaming_output"}, model.SensitiveFields{Password: 1})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "ui prompt", func() bool { return c.Router().State() == router.StateOpen })

	d, _ := c.Router().Current()
	if d.Reason != model.ReasonUI {
		t.Errorf("Reason = %q, want ui", d.Reason)
	}
	if d.Context.Sensitive.Password != 1 {
		t.Errorf("Sensitive = %+v", d.Context.Sensitive)
	}
}
