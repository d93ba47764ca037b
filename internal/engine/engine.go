// Package engine applies the active policy to navigation and signal
// triggers, delivers prompt directives to page sessions, and records
// every decision.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tabwarden/tabwarden/internal/alert"
	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/identity"
	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/metrics"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// DefaultRetryBackoff is the pause before a directive's single retry.
const DefaultRetryBackoff = 300 * time.Millisecond

// Sender delivers engine messages to connected page sessions. The
// server's session hub implements it.
type Sender interface {
	SendToTab(tabID string, env model.Envelope) error
	Broadcast(env model.Envelope)
}

// Config wires an Engine. Store, Consent, and Logger are required;
// the rest degrade gracefully when nil.
type Config struct {
	Store        *policy.Store
	Consent      consent.Store
	Sink         audit.Sink
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	Alerts       *alert.Dispatcher
	Identity     identity.Identity
	RetryBackoff time.Duration
}

// Engine is the policy decision engine.
type Engine struct {
	store        *policy.Store
	consent      consent.Store
	sink         audit.Sink
	log          *logging.Logger
	metrics      *metrics.Metrics
	alerts       *alert.Dispatcher
	ident        identity.Identity
	retryBackoff time.Duration

	mu      sync.Mutex
	sender  Sender
	tabs    map[string]string               // tab id -> last reported URL
	pending map[consent.Key]model.Directive // directives awaiting a decision
}

// New creates an Engine. Call SetSender before the first trigger
// arrives; until then directives are dropped.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Engine{
		store:        cfg.Store,
		consent:      cfg.Consent,
		sink:         cfg.Sink,
		log:          log,
		metrics:      cfg.Metrics,
		alerts:       cfg.Alerts,
		ident:        cfg.Identity,
		retryBackoff: backoff,
		tabs:         make(map[string]string),
		pending:      make(map[consent.Key]model.Directive),
	}
}

// SetSender attaches the session hub. The hub holds the engine and
// the engine holds the hub, so wiring happens after construction.
func (e *Engine) SetSender(s Sender) {
	e.mu.Lock()
	e.sender = s
	e.mu.Unlock()
}

// VerifyPIN checks a PIN against the policy document. The document
// stores the PIN in plaintext and equality is the contract; an empty
// configured PIN never verifies.
func (e *Engine) VerifyPIN(_ context.Context, pin string) (bool, error) {
	snap := e.store.Current()
	if snap == nil {
		return false, nil
	}
	configured := snap.Doc.AdminPIN
	if configured == "" {
		return false, nil
	}
	return pin == configured, nil
}

// TabClosed forgets a tab's state and releases its consent slots.
func (e *Engine) TabClosed(ctx context.Context, tabID string) {
	e.mu.Lock()
	delete(e.tabs, tabID)
	for k := range e.pending {
		if k.TabID == tabID {
			delete(e.pending, k)
		}
	}
	e.mu.Unlock()

	if err := e.consent.ReleaseTab(ctx, tabID); err != nil {
		e.log.Warn("release tab consent state", "tab", tabID, "err", err)
	}
}

func (e *Engine) rememberTab(tabID, url string) {
	if tabID == "" {
		return
	}
	e.mu.Lock()
	e.tabs[tabID] = url
	e.mu.Unlock()
}

func (e *Engine) tabsCopy() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.tabs))
	for id, url := range e.tabs {
		out[id] = url
	}
	return out
}

func (e *Engine) setPending(k consent.Key, d model.Directive) {
	e.mu.Lock()
	e.pending[k] = d
	e.mu.Unlock()
}

func (e *Engine) takePending(k consent.Key) (model.Directive, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.pending[k]
	if ok {
		delete(e.pending, k)
	}
	return d, ok
}

func (e *Engine) currentSender() Sender {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sender
}

// deliver sends a directive with the delivery policy: one initial
// attempt, one retry after a fixed backoff, then give up quietly. A
// failed delivery never propagates; the tab is usually just gone.
func (e *Engine) deliver(tabID string, d model.Directive) bool {
	sender := e.currentSender()
	if sender == nil {
		return false
	}
	env, err := model.Marshal(model.TypeDirective, d)
	if err != nil {
		e.log.Error("encode directive", "err", err)
		return false
	}
	if err := sender.SendToTab(tabID, env); err == nil {
		return true
	}
	e.metrics.DirectiveRetried()
	time.Sleep(e.retryBackoff)
	if err := sender.SendToTab(tabID, env); err != nil {
		e.log.Warn("directive delivery failed after retry",
			"tab", tabID, "host", d.Context.Host, "err", err)
		return false
	}
	return true
}

// record stamps an entry with the snapshot's provenance and tracking
// fields and writes it to the sink.
func (e *Engine) record(snap *policy.Snapshot, entry audit.Entry) {
	entry.ProfileID = snap.Active.ID
	entry.PolicyHash = snap.Hash
	if snap.Active.TrackUsers {
		entry.UserID = e.ident.ID
		entry.UserRole = snap.Doc.UserRole
	}
	if e.sink == nil {
		return
	}
	if err := e.sink.Record(entry); err != nil {
		e.log.Error("record decision entry", "kind", entry.Kind, "err", err)
	}
}

func (e *Engine) dispatchAlert(kind string, snap *policy.Snapshot, tabID, host string, risk int) {
	e.alerts.Dispatch(alert.Event{
		Timestamp:  time.Now().UTC().Format(audit.TimestampFormat),
		Kind:       kind,
		TabID:      tabID,
		Host:       host,
		ProfileID:  snap.Active.ID,
		Risk:       risk,
		PolicyHash: snap.Hash,
	})
}
