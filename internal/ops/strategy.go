package ops

import (
	"context"

	"snowgate/internal/session"
)

// Strategy is one mechanism for attempting an operation kind. Strategies
// are stateless; the executor owns ordering and fallthrough.
//
// The priority ordering is an invariant: immediate, low-risk mechanisms
// precede eventual, slower ones, and the artifact strategy (no live
// effect) is always last.
type Strategy interface {
	// Name identifies the strategy in results and logs.
	Name() string
	// AppliesTo reports whether the strategy can attempt the given kind.
	AppliesTo(kind Kind) bool
	// Synchronicity declares whether the effect is visible on return or
	// only after a settle window.
	Synchronicity() Synchronicity
	// NeedsSession reports whether the attempt requires a cookie-bearing
	// session; strategies on the documented API use only Basic auth.
	NeedsSession() bool
	// Attempt performs the mechanism once. sess is nil when NeedsSession
	// is false. Failures are reported in the Outcome, not as errors — a
	// non-nil error means the attempt could not be made at all and is
	// treated as retryable.
	Attempt(ctx context.Context, req *Request, sess *session.Session) Outcome
}
