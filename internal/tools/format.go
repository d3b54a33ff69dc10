package tools

import (
	"fmt"
	"strings"

	"snowgate/internal/ops"
)

// formatResult renders an execution result for the agent. The three
// outcomes stay distinguishable — fully automated and verified, automated
// but unverified, and manual action required — rather than collapsing
// into one boolean.
func formatResult(kind ops.Kind, r *ops.Result) string {
	var b strings.Builder

	switch {
	case r.Success && r.Verified != nil && *r.Verified:
		fmt.Fprintf(&b, "✅ %s succeeded via %s (verified).\n", kind, r.MethodUsed)
	case r.Success && r.Verified != nil:
		fmt.Fprintf(&b, "⚠️ %s applied via %s but NOT verified — the effect may still land.\n", kind, r.MethodUsed)
	case r.Success:
		fmt.Fprintf(&b, "✅ %s succeeded via %s.\n", kind, r.MethodUsed)
	default:
		fmt.Fprintf(&b, "❌ %s could not be automated. Manual action required.\n", kind)
	}

	if r.PreviousState != "" {
		fmt.Fprintf(&b, "Previous state: %s\n", r.PreviousState)
	}
	if r.ScriptOutput != "" {
		fmt.Fprintf(&b, "\nScript output:\n%s\n", r.ScriptOutput)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "Warning: %s\n", w)
	}
	if r.ManualArtifact != nil {
		a := r.ManualArtifact
		fmt.Fprintf(&b, "\nManual artifact %s (saved for later):\n", a.ID)
		fmt.Fprintf(&b, "Target: %s\n", a.SuggestedTarget)
		fmt.Fprintf(&b, "Script:\n%s\n", a.ScriptBody)
		b.WriteString("Procedure:\n")
		for i, step := range a.Procedure {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}

	fmt.Fprintf(&b, "\nTimings: attempt %dms, settle %dms, verify %dms",
		r.Timings.Attempt.Milliseconds(),
		r.Timings.Settle.Milliseconds(),
		r.Timings.Verify.Milliseconds())
	return b.String()
}
