// Package router is the page-side decision surface. It holds the
// prompt overlay's state machine for one tab: a directive opens the
// prompt, the user resolves it with exactly one decision, and the
// router reports that decision back through a DecisionSink.
package router

import (
	"context"
	"errors"
	"sync"

	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/model"
)

// State names one position in the prompt lifecycle.
type State string

const (
	// StateClosed means no prompt is showing.
	StateClosed State = "closed"
	// StateOpen means a prompt is showing and waiting for the user.
	StateOpen State = "open"
	// StateProceeding, StateCancelling and StateRedirecting are the
	// in-flight terminal states while the decision is being reported.
	StateProceeding  State = "proceeding"
	StateCancelling  State = "cancelling"
	StateRedirecting State = "redirecting"
	// StateShielded is the sticky post-cancel state for PIN-gated
	// prompts. The overlay stays up and blocks the page until the tab
	// navigates away or the engine tears it down.
	StateShielded State = "shielded"
)

var (
	// ErrNotOpen means the operation needs an open prompt.
	ErrNotOpen = errors.New("router: no prompt open")
	// ErrPINRejected means the PIN did not verify. The prompt stays open.
	ErrPINRejected = errors.New("router: pin rejected")
	// ErrNoRedirect means the policy configures no redirect target.
	ErrNoRedirect = errors.New("router: no redirect target configured")
)

// PINVerifier checks an admin PIN with whoever holds the policy
// document. The page never sees the configured PIN itself.
type PINVerifier interface {
	VerifyPIN(ctx context.Context, pin string) (bool, error)
}

// DecisionSink receives the single decision a prompt lifecycle
// produces.
type DecisionSink interface {
	SendDecision(ctx context.Context, rep model.DecisionReport) error
}

// Router is the state machine for one tab's prompt overlay. All
// methods are safe for concurrent use; the read loop delivering
// directives and the UI resolving them race freely.
type Router struct {
	tabID string
	pins  PINVerifier
	sink  DecisionSink
	log   *logging.Logger

	mu          sync.Mutex
	state       State
	pageURL     string
	cur         model.Directive
	alwaysAllow bool
	alwaysBlock bool
	pinAttempts int
	suppressed  int
}

// New creates a closed router for the given tab.
func New(tabID string, pins PINVerifier, sink DecisionSink, log *logging.Logger) *Router {
	if log == nil {
		log = logging.Default()
	}
	return &Router{
		tabID: tabID,
		pins:  pins,
		sink:  sink,
		log:   log,
		state: StateClosed,
	}
}

// State returns the current lifecycle position.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns the directive behind the open prompt, if any.
func (r *Router) Current() (model.Directive, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return model.Directive{}, false
	}
	return r.cur, true
}

// Suppressed returns how many directives arrived while a prompt was
// already showing. Those are dropped, not queued.
func (r *Router) Suppressed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suppressed
}

// Navigated records a page change. Navigation ends the previous page's
// lifecycle without a decision: any open prompt disappears with its
// page, and a shield does not follow the tab to the next site.
func (r *Router) Navigated(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageURL = url
	if r.state != StateClosed {
		r.transition(StateClosed, "navigated")
	}
	r.reset()
}

// Open shows the prompt for a directive. Only a closed router opens;
// anything else counts the directive as suppressed and drops it, which
// keeps redeliveries from stacking prompts or piercing a shield.
func (r *Router) Open(d model.Directive) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateClosed {
		r.suppressed++
		r.log.Debug("directive suppressed",
			"tab_id", r.tabID, "state", string(r.state), "host", d.Context.Host)
		return
	}
	r.cur = d
	r.alwaysAllow = false
	r.alwaysBlock = false
	r.pinAttempts = 0
	r.transition(StateOpen, d.Reason)
}

// SetAlways records the prompt's checkbox state. It rides the eventual
// decision; calling it with no prompt open does nothing.
func (r *Router) SetAlways(allow, block bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateOpen {
		return
	}
	r.alwaysAllow = allow
	r.alwaysBlock = block
}

// Proceed resolves the open prompt in favor of the page. PIN-gated
// prompts verify first: a rejected PIN keeps the prompt open and
// returns ErrPINRejected.
func (r *Router) Proceed(ctx context.Context, pin string) error {
	r.mu.Lock()
	if r.state != StateOpen {
		r.mu.Unlock()
		return ErrNotOpen
	}
	needsPIN := r.cur.PINRequired
	r.mu.Unlock()

	if needsPIN {
		ok, err := r.pins.VerifyPIN(ctx, pin)
		if err != nil {
			return err
		}
		if !ok {
			r.mu.Lock()
			r.pinAttempts++
			attempts := r.pinAttempts
			r.mu.Unlock()
			r.log.Info("pin rejected", "tab_id", r.tabID, "attempts", attempts)
			return ErrPINRejected
		}
	}
	return r.resolve(ctx, model.ActionProceed, StateProceeding, StateClosed)
}

// Cancel resolves the open prompt against the page. A PIN-gated prompt
// leaves the tab shielded; anything else just closes.
func (r *Router) Cancel(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateOpen {
		r.mu.Unlock()
		return ErrNotOpen
	}
	final := StateClosed
	if r.cur.PINRequired {
		final = StateShielded
	}
	r.mu.Unlock()

	return r.resolve(ctx, model.ActionCancel, StateCancelling, final)
}

// Redirect resolves the open prompt by sending the tab to the policy's
// safe target. It returns the target URL for the caller to navigate to.
func (r *Router) Redirect(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.state != StateOpen {
		r.mu.Unlock()
		return "", ErrNotOpen
	}
	target := r.cur.RedirectURL
	r.mu.Unlock()

	if target == "" {
		return "", ErrNoRedirect
	}
	if err := r.resolve(ctx, model.ActionRedirect, StateRedirecting, StateClosed); err != nil {
		return "", err
	}
	return target, nil
}

// Teardown force-closes the router without emitting a decision. The
// engine broadcasts this on policy changes; it also clears a shield.
func (r *Router) Teardown(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return
	}
	r.transition(StateClosed, reason)
	r.reset()
}

// resolve moves Open through an in-flight state, reports the decision,
// and lands in final. A sink failure reopens the prompt so the user
// can resolve it again; a concurrent teardown wins over the reopen.
func (r *Router) resolve(ctx context.Context, action string, inflight, final State) error {
	r.mu.Lock()
	if r.state != StateOpen {
		r.mu.Unlock()
		return ErrNotOpen
	}
	r.transition(inflight, action)
	rep := model.DecisionReport{
		TabID:       r.tabID,
		URL:         r.pageURL,
		Action:      action,
		AlwaysAllow: r.alwaysAllow,
		AlwaysBlock: r.alwaysBlock,
	}
	r.mu.Unlock()

	err := r.sink.SendDecision(ctx, rep)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != inflight {
		// Torn down while the report was in flight. The teardown's
		// state stands.
		return err
	}
	if err != nil {
		r.transition(StateOpen, "send failed")
		return err
	}
	r.transition(final, action)
	if final != StateShielded {
		r.reset()
	}
	return nil
}

// transition logs and applies a state change. Callers hold r.mu.
func (r *Router) transition(to State, cause string) {
	r.log.Info("router transition",
		"tab_id", r.tabID, "from", string(r.state), "to", string(to), "cause", cause)
	r.state = to
}

// reset clears per-lifecycle state. Callers hold r.mu.
func (r *Router) reset() {
	r.cur = model.Directive{}
	r.alwaysAllow = false
	r.alwaysBlock = false
	r.pinAttempts = 0
}
