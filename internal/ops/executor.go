package ops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"snowgate/internal/instance"
	"snowgate/internal/session"
)

// OperationError is a classified, operation-level failure. Only notFound
// (the target object does not exist — no mechanism helps) and fatal (no
// strategy applies — a configuration error) are returned as errors; every
// other outcome resolves to a Result.
type OperationError struct {
	Class    FailureClass
	Strategy string
	Detail   string
}

func (e *OperationError) Error() string {
	if e.Strategy != "" {
		return fmt.Sprintf("operation failed (%s, strategy %s): %s", e.Class, e.Strategy, e.Detail)
	}
	return fmt.Sprintf("operation failed (%s): %s", e.Class, e.Detail)
}

// ClassOfError extracts the failure class from an operation-level error.
func ClassOfError(err error) (FailureClass, bool) {
	var oe *OperationError
	if errors.As(err, &oe) {
		return oe.Class, true
	}
	return "", false
}

// SessionEstablisher is the session manager seam; session.Manager is the
// real implementation.
type SessionEstablisher interface {
	Establish(ctx context.Context, inst instance.Instance) (*session.Session, error)
}

// Config holds the executor's tunable timings. The settle window is a
// documented heuristic, not a correctness guarantee: the platform gives
// no push-based completion signal, so bounded-wait-then-verify is the
// best available strategy.
type Config struct {
	// SettleWindow is the fixed wait between an eventual strategy's
	// apparent success and the verification read.
	SettleWindow time.Duration
	// RetryBackoff is the pause before the single same-strategy retry
	// of a retryable failure.
	RetryBackoff time.Duration
}

// DefaultConfig returns the executor's default timings.
func DefaultConfig() Config {
	return Config{
		SettleWindow: 2 * time.Second,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// sleep is a package-level variable for testability: a cancellable timed
// suspension, never a busy wait.
var sleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor attempts strategies in priority order with failure-class-aware
// fallthrough. Within one Execute call strategies run strictly
// sequentially: an eventual strategy's pending side effect could race a
// later strategy's mutation if they overlapped, leaving the remote state
// ambiguous.
type Executor struct {
	strategies []Strategy
	sessions   SessionEstablisher
	verifier   *Verifier
	cfg        Config
	logger     *zap.Logger
}

// NewExecutor creates an Executor over the given ordered strategy list.
func NewExecutor(strategies []Strategy, sessions SessionEstablisher, verifier *Verifier, cfg Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SettleWindow <= 0 {
		cfg.SettleWindow = DefaultConfig().SettleWindow
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	return &Executor{
		strategies: strategies,
		sessions:   sessions,
		verifier:   verifier,
		cfg:        cfg,
		logger:     logger,
	}
}

// DefaultStrategies returns the production priority list: the immediate
// picker and script runner first, the eventual trigger next, the manual
// artifact always last.
func DefaultStrategies(logger *zap.Logger) []Strategy {
	return []Strategy{
		NewPickerStrategy(logger),
		NewScriptRunStrategy(logger),
		NewTriggerStrategy(logger),
		NewArtifactStrategy(),
	}
}

// Execute runs req against the strategy list and returns a structured
// result. Errors are returned only for notFound and fatal; every other
// path — including exhaustion of all mechanisms — resolves to a Result,
// because a manual path is always available by design.
func (e *Executor) Execute(ctx context.Context, req *Request) (*Result, error) {
	if !ValidKind(req.Kind) {
		return &Result{}, &OperationError{Class: Fatal, Detail: fmt.Sprintf("unknown operation kind %q", req.Kind)}
	}

	applicable := make([]Strategy, 0, len(e.strategies))
	for _, st := range e.strategies {
		if st.AppliesTo(req.Kind) {
			applicable = append(applicable, st)
		}
	}
	if len(applicable) == 0 {
		return &Result{}, &OperationError{Class: Fatal, Detail: fmt.Sprintf("no strategy applies to %s", req.Kind)}
	}

	res := &Result{}

	// Snapshot the state being replaced, best effort. A failed read is
	// not worth a warning — the snapshot is informational.
	if Verifiable(req.Kind) && e.verifier != nil {
		if prev, err := e.verifier.Current(ctx, req); err == nil {
			res.PreviousState = prev
		}
	}

	for _, st := range applicable {
		attemptStart := time.Now()
		outcome := e.attempt(ctx, st, req)
		res.Timings.Attempt += time.Since(attemptStart)

		if outcome.Artifact != nil {
			// Last resort reached: no live effect happened.
			res.Success = false
			res.MethodUsed = st.Name()
			res.ManualArtifact = outcome.Artifact
			e.logger.Info("operation fell back to manual artifact",
				zap.String("kind", string(req.Kind)),
				zap.String("artifact_id", outcome.Artifact.ID))
			return res, nil
		}

		if outcome.Succeeded {
			return e.finish(ctx, st, req, outcome, res)
		}

		if outcome.Class == NotFound {
			// The request parameters, not the mechanism, are invalid.
			// No fallback helps; abort with no artifact.
			res.Success = false
			e.logger.Warn("operation aborted: target not found",
				zap.String("kind", string(req.Kind)),
				zap.String("strategy", st.Name()))
			return res, &OperationError{Class: NotFound, Strategy: st.Name(), Detail: outcome.RawResponse}
		}

		// permission, malformed, or exhausted retryable: escalate to the
		// next strategy. Malformed responses ride along verbatim — they
		// usually indicate a caller bug.
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("strategy %s failed (%s): %s", st.Name(), outcome.Class, outcome.RawResponse))
		e.logger.Info("strategy escalated",
			zap.String("kind", string(req.Kind)),
			zap.String("strategy", st.Name()),
			zap.String("class", string(outcome.Class)))
	}

	// Unreachable when the artifact strategy is registered last, which
	// the default list guarantees.
	res.Success = false
	return res, &OperationError{Class: Fatal, Detail: "strategy list exhausted without a manual-artifact fallback"}
}

// attempt runs one strategy, retrying exactly once on a retryable
// failure. Session establishment is part of the attempt: a fresh session
// per try, and an establishment failure counts as retryable.
func (e *Executor) attempt(ctx context.Context, st Strategy, req *Request) Outcome {
	var out Outcome

	operation := func() error {
		out = e.attemptOnce(ctx, st, req)
		if out.Succeeded || out.Artifact != nil {
			return nil
		}
		if out.Class == Retryable {
			return errors.New(out.RawResponse)
		}
		// Non-retryable classes stop the backoff loop immediately.
		return backoff.Permanent(errors.New(string(out.Class)))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.RetryBackoff), 1), ctx)
	// The final outcome is captured in out; the backoff error duplicates it.
	_ = backoff.Retry(operation, policy)
	return out
}

func (e *Executor) attemptOnce(ctx context.Context, st Strategy, req *Request) Outcome {
	var sess *session.Session
	if st.NeedsSession() {
		s, err := e.sessions.Establish(ctx, req.Instance)
		if err != nil {
			// Availability, not authorization: the navigation request
			// itself failed.
			return Outcome{Class: Retryable, RawResponse: err.Error()}
		}
		sess = s
	}
	return st.Attempt(ctx, req, sess)
}

// finish handles the success path: settle wait for eventual strategies,
// then the single verification read. Verification failure is downgraded
// to a warning — the mutation likely happened; only confidence differs.
func (e *Executor) finish(ctx context.Context, st Strategy, req *Request, outcome Outcome, res *Result) (*Result, error) {
	res.Success = true
	res.MethodUsed = st.Name()
	if req.Kind == KindRunScript {
		res.ScriptOutput = outcome.RawResponse
	}

	if st.Synchronicity() == Eventual || outcome.RequiresSettleWait {
		settleStart := time.Now()
		err := sleep(ctx, e.cfg.SettleWindow)
		res.Timings.Settle = time.Since(settleStart)
		if err != nil {
			// Cancelled mid-settle: the mutation is in flight remotely
			// and cannot be recalled. Report success, unverified.
			res.Warnings = append(res.Warnings,
				"settle wait interrupted; effect not verified")
			return res, nil
		}
	}

	if Verifiable(req.Kind) && e.verifier != nil {
		verifyStart := time.Now()
		verified, current, err := e.verifier.Verify(ctx, req)
		res.Timings.Verify = time.Since(verifyStart)
		res.Verified = &verified
		switch {
		case err != nil:
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("verification read failed: %v", err))
		case !verified:
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("verification mismatch: expected %s, read %s — the switch may still land after the settle window",
					req.TargetID(), current))
		}
	}

	e.logger.Info("operation completed",
		zap.String("kind", string(req.Kind)),
		zap.String("instance", req.Instance.Name),
		zap.String("method", res.MethodUsed),
		zap.Bool("verified", res.Verified != nil && *res.Verified))
	return res, nil
}
