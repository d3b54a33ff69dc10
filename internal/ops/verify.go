package ops

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"snowgate/internal/client"
	"snowgate/internal/instance"
)

// Preference names under which the platform stores the acting user's
// current context. These are the read side of the operation: written by
// whatever mechanism performed the switch, readable through the
// documented Table API regardless of which mechanism that was.
const (
	prefCurrentApp = "apps.current_app"
	prefUpdateSet  = "sys_update_set"
)

// preferencePath is the Table API path for user preference records.
const preferencePath = "/api/now/table/sys_user_preference"

// verifyTimeout bounds the single verification read.
const verifyTimeout = 15 * time.Second

// StateReader reads the current context identifier for a kind. It is the
// seam the executor's tests mock; PreferenceReader is the real one.
type StateReader interface {
	ReadCurrent(ctx context.Context, inst instance.Instance, kind Kind) (string, error)
}

// PreferenceReader reads context state from user preference records — a
// code path fully distinct from any mutating strategy.
type PreferenceReader struct {
	logger *zap.Logger
}

// NewPreferenceReader creates the Table-API-backed state reader.
func NewPreferenceReader(logger *zap.Logger) *PreferenceReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceReader{logger: logger}
}

// ReadCurrent fetches the acting user's preference value for kind.
// Script runs have no state postcondition and return an error.
func (r *PreferenceReader) ReadCurrent(ctx context.Context, inst instance.Instance, kind Kind) (string, error) {
	pref, ok := preferenceFor(kind)
	if !ok {
		return "", fmt.Errorf("verify: kind %s has no readable state", kind)
	}

	c := client.New(inst, client.WithTimeout(verifyTimeout), client.WithLogger(r.logger))

	q := url.Values{}
	q.Set("sysparm_query", fmt.Sprintf("user.user_name=%s^name=%s", inst.Username, pref))
	q.Set("sysparm_fields", "value")
	q.Set("sysparm_limit", "1")

	var resp struct {
		Result []struct {
			Value string `json:"value"`
		} `json:"result"`
	}
	if err := c.Get(ctx, preferencePath, q, &resp); err != nil {
		return "", err
	}
	if len(resp.Result) == 0 {
		// No preference record yet — the user has never switched context.
		return "", nil
	}
	return resp.Result[0].Value, nil
}

func preferenceFor(kind Kind) (string, bool) {
	switch kind {
	case KindSetWorkspace:
		return prefCurrentApp, true
	case KindSetUpdateSet:
		return prefUpdateSet, true
	default:
		return "", false
	}
}

// Verifiable reports whether kind has a state postcondition to confirm.
func Verifiable(kind Kind) bool {
	_, ok := preferenceFor(kind)
	return ok
}

// Verifier confirms a mutation's effect with exactly one independent
// read. No retry loop: total operation latency stays predictable, and a
// read that races the mutation is reported as unverified, not retried.
type Verifier struct {
	reader StateReader
	logger *zap.Logger
}

// NewVerifier creates a Verifier over the given reader.
func NewVerifier(reader StateReader, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{reader: reader, logger: logger}
}

// Current reads the present context identifier without comparing it to
// anything. The executor snapshots this before the first attempt so the
// result can report what state the operation replaced.
func (v *Verifier) Current(ctx context.Context, req *Request) (string, error) {
	return v.reader.ReadCurrent(ctx, req.Instance, req.Kind)
}

// Verify reads current state once and compares it to the request's target
// identifier. A failed read or a mismatch yields verified=false; it never
// converts an apparently-successful mutation into a failure — the effect
// may simply have landed after the read.
func (v *Verifier) Verify(ctx context.Context, req *Request) (verified bool, current string, err error) {
	current, err = v.reader.ReadCurrent(ctx, req.Instance, req.Kind)
	if err != nil {
		v.logger.Warn("verification read failed",
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
		return false, "", err
	}
	verified = current == req.TargetID()
	v.logger.Debug("verification read",
		zap.String("kind", string(req.Kind)),
		zap.String("expected", req.TargetID()),
		zap.String("current", current),
		zap.Bool("verified", verified))
	return verified, current, nil
}
