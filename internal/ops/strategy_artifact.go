package ops

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"snowgate/internal/session"
)

// artifactStrategy is the last-resort strategy: it never touches the
// remote instance. It packages the operation as a self-contained manual
// descriptor — the script a human can paste into the instance, where to
// paste it, and how to confirm the effect. Always applicable, always
// last, never fails.
type artifactStrategy struct{}

// NewArtifactStrategy creates the manual-artifact fallback strategy.
func NewArtifactStrategy() Strategy {
	return &artifactStrategy{}
}

func (s *artifactStrategy) Name() string                 { return "manual_artifact" }
func (s *artifactStrategy) Synchronicity() Synchronicity { return Immediate }
func (s *artifactStrategy) NeedsSession() bool           { return false }
func (s *artifactStrategy) AppliesTo(Kind) bool          { return true }

func (s *artifactStrategy) Attempt(_ context.Context, req *Request, _ *session.Session) Outcome {
	return Outcome{Artifact: BuildArtifact(req)}
}

// BuildArtifact produces the manual descriptor for req.
func BuildArtifact(req *Request) *ManualArtifact {
	return &ManualArtifact{
		ID:              uuid.NewString(),
		Kind:            req.Kind,
		Instance:        req.Instance.Name,
		ScriptBody:      ScriptFor(req),
		SuggestedTarget: "System Definition > Scripts - Background",
		Procedure:       procedureFor(req),
		CreatedAt:       timeNow().UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func procedureFor(req *Request) []string {
	steps := []string{
		fmt.Sprintf("Log in to %s as an admin.", req.Instance.BaseURL),
		"Open System Definition > Scripts - Background.",
		"Paste the script body and click Run script.",
	}
	switch req.Kind {
	case KindSetWorkspace:
		steps = append(steps,
			fmt.Sprintf("Confirm the application picker now shows scope %s.", req.TargetID()))
	case KindSetUpdateSet:
		steps = append(steps,
			fmt.Sprintf("Confirm the update set picker now shows %s.", req.TargetID()))
	case KindRunScript:
		steps = append(steps,
			"Review the printed output for errors.")
	}
	return steps
}
