// Package consent tracks prompt deduplication and granted consent
// windows, keyed by (tab, host). One admission check decides both so
// racing triggers cannot double-prompt.
package consent

import (
	"context"
	"time"
)

// Defaults applied when the configuration leaves them zero.
const (
	DefaultCooldown = 5 * time.Second
	DefaultTTL      = 10 * time.Minute
)

// Refusal causes reported in Verdict and in suppressed-entry logs.
const (
	CauseCooldown = "cooldown"
	CauseConsent  = "consent"
)

// Key identifies a consent slot: one browser tab on one host.
type Key struct {
	TabID string
	Host  string
}

// Verdict is the outcome of an admission check.
type Verdict struct {
	Admitted bool
	Cause    string
}

// Store is the engine's view of consent state.
//
// Admit is an atomic check-and-set: a live consent grant refuses with
// CauseConsent, a prompt inside the cooldown refuses with
// CauseCooldown, otherwise the prompt instant is recorded and the
// trigger admitted. Reset drops everything (policy change); ReleaseTab
// drops one tab's slots (tab closed).
type Store interface {
	Admit(ctx context.Context, k Key) (Verdict, error)
	Grant(ctx context.Context, k Key) error
	Allowed(ctx context.Context, k Key) (bool, error)
	ReleaseTab(ctx context.Context, tabID string) error
	Reset(ctx context.Context) error
}
