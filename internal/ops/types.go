// Package ops implements the tiered remote-operation executor: the one
// part of the system where no single reliable API exists for what the
// caller asked, so mechanisms are tried in order, failures are classified,
// and apparent success is independently verified.
//
// The design is data-driven rather than control-flow-driven: each
// mechanism is a Strategy with a declared synchronicity and applicability,
// the executor owns the fallthrough rules per failure class, and the
// manual-artifact path is the always-applicable last strategy instead of
// a special-cased error branch.
package ops

import (
	"time"

	"snowgate/internal/client"
	"snowgate/internal/instance"
)

// Kind identifies one configuration-mutating operation.
type Kind string

const (
	// KindSetWorkspace switches the instance's active application scope.
	KindSetWorkspace Kind = "set_workspace_context"
	// KindSetUpdateSet switches the instance's active update set.
	KindSetUpdateSet Kind = "set_update_set_context"
	// KindRunScript executes an arbitrary server-side script.
	KindRunScript Kind = "run_remote_script"
)

// validKinds is the set of recognized operation kinds.
var validKinds = map[Kind]bool{
	KindSetWorkspace: true,
	KindSetUpdateSet: true,
	KindRunScript:    true,
}

// ValidKind reports whether k is a recognized operation kind.
func ValidKind(k Kind) bool { return validKinds[k] }

// FailureClass is re-exported from client: the HTTP layer classifies
// responses, and the executor's fallthrough rules consume the same taxonomy.
type FailureClass = client.FailureClass

const (
	Retryable  = client.ClassRetryable
	Permission = client.ClassPermission
	NotFound   = client.ClassNotFound
	Malformed  = client.ClassMalformed
	Fatal      = client.ClassFatal
)

// Synchronicity declares whether a strategy's effect is visible when its
// call returns, or only after a settle window.
type Synchronicity string

const (
	// Immediate effects are synchronous by contract; verification runs
	// with no settle wait.
	Immediate Synchronicity = "immediate"
	// Eventual effects complete remotely at an unknown point within the
	// settle window; verification runs only after the window elapses.
	Eventual Synchronicity = "eventual"
)

// Request is one operation to perform. Created per call, immutable,
// consumed once.
type Request struct {
	Kind     Kind
	Params   map[string]string
	Instance instance.Instance
}

// TargetID returns the identifier the operation is about: the scope or
// update set sys_id for context switches, empty for script runs.
func (r *Request) TargetID() string {
	switch r.Kind {
	case KindSetWorkspace:
		return r.Params["scope_id"]
	case KindSetUpdateSet:
		return r.Params["update_set_id"]
	default:
		return ""
	}
}

// Script returns the script body for KindRunScript requests.
func (r *Request) Script() string { return r.Params["script"] }

// Outcome is what one strategy attempt produced.
type Outcome struct {
	Succeeded bool
	// Class is set only when Succeeded is false.
	Class FailureClass
	// RawResponse is the remote response body, kept because malformed
	// failures are surfaced verbatim to the caller.
	RawResponse string
	// RequiresSettleWait is set by eventual strategies on success.
	RequiresSettleWait bool
	// Artifact is populated only by the manual-artifact strategy.
	Artifact *ManualArtifact
}

// ManualArtifact is a self-contained descriptor of a human-completable
// fallback action, produced when every automated strategy failed. The
// tool layer persists it; this package only builds the descriptor.
type ManualArtifact struct {
	ID              string   `json:"id" yaml:"id"`
	Kind            Kind     `json:"kind" yaml:"kind"`
	Instance        string   `json:"instance" yaml:"instance"`
	ScriptBody      string   `json:"script_body" yaml:"script_body"`
	SuggestedTarget string   `json:"suggested_target" yaml:"suggested_target"`
	Procedure       []string `json:"procedure" yaml:"procedure"`
	CreatedAt       string   `json:"created_at" yaml:"created_at"`
}

// Timings records per-phase durations for one executed operation.
// Presentation (including the unit) is the caller's concern.
type Timings struct {
	Attempt time.Duration
	Settle  time.Duration
	Verify  time.Duration
}

// Result is the structured outcome of one Request. The caller — never
// this package — decides how to present the distinction between verified
// success, unverified success, and manual action required.
type Result struct {
	Success    bool
	MethodUsed string
	// PreviousState is the state identifier read before the first
	// attempt, when one could be read.
	PreviousState string
	// Verified is nil when no verification applies (script runs have no
	// state postcondition), otherwise the single verification read's
	// conclusion.
	Verified *bool
	Warnings []string
	Timings  Timings
	// ManualArtifact is populated only when Success is false and a
	// manual completion path exists.
	ManualArtifact *ManualArtifact
	// ScriptOutput carries the remote script's output for KindRunScript
	// when the mechanism used returns one.
	ScriptOutput string
}
