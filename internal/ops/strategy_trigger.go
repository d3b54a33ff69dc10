package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"snowgate/internal/client"
	"snowgate/internal/session"
)

// triggerPath is the documented Table API path for scheduled-job records.
const triggerPath = "/api/now/table/sys_trigger"

// triggerTimeout is longer than the picker's: creating the job record is
// cheap, but some instances queue Table API writes behind semaphores.
const triggerTimeout = 30 * time.Second

// triggerLeadTime is how far in the future the one-shot job is scheduled.
// Near-immediate, but far enough that the record commits before the
// scheduler's next sweep picks it up.
const triggerLeadTime = 2 * time.Second

// timeNow is a package-level variable for testability.
// Tests can replace this to control time in assertions.
var timeNow = time.Now

// triggerStrategy performs the operation by creating a one-shot scheduled
// job that runs a server-side script and then self-deletes. Eventual: the
// effect lands whenever the remote scheduler executes the job, so the
// executor waits out the settle window before verifying.
//
// This is the scripting side-channel: it needs only the primary credential
// and the documented Table API, which survives instances where the UI
// picker endpoints are locked down.
type triggerStrategy struct {
	logger *zap.Logger
}

// NewTriggerStrategy creates the eventual scheduled-job strategy.
func NewTriggerStrategy(logger *zap.Logger) Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &triggerStrategy{logger: logger}
}

func (s *triggerStrategy) Name() string                 { return "trigger" }
func (s *triggerStrategy) Synchronicity() Synchronicity { return Eventual }
func (s *triggerStrategy) NeedsSession() bool           { return false }

func (s *triggerStrategy) AppliesTo(kind Kind) bool {
	// Any operation expressible as a server-side script.
	return validKinds[kind]
}

// triggerRecord is the sys_trigger row shape for a run-once job.
// trigger_type 0 is "run once"; the platform deletes the record after it
// executes, so the created row is never re-read or managed from here.
type triggerRecord struct {
	Name        string `json:"name"`
	Script      string `json:"script"`
	NextAction  string `json:"next_action"`
	TriggerType string `json:"trigger_type"`
}

func (s *triggerStrategy) Attempt(ctx context.Context, req *Request, _ *session.Session) Outcome {
	script := ScriptFor(req)
	if script == "" {
		return Outcome{Class: Malformed, RawResponse: "no script derivable for " + string(req.Kind)}
	}

	c := client.New(req.Instance, client.WithTimeout(triggerTimeout), client.WithLogger(s.logger))

	correlation := uuid.NewString()
	rec := triggerRecord{
		Name:        "snowgate one-shot " + correlation,
		Script:      script,
		NextAction:  timeNow().UTC().Add(triggerLeadTime).Format("2006-01-02 15:04:05"),
		TriggerType: "0",
	}

	var resp struct {
		Result struct {
			SysID string `json:"sys_id"`
		} `json:"result"`
	}
	if err := c.Post(ctx, triggerPath, rec, &resp); err != nil {
		return Outcome{Class: client.ClassOf(err), RawResponse: err.Error()}
	}
	if resp.Result.SysID == "" {
		return Outcome{Class: Malformed, RawResponse: "trigger created without sys_id"}
	}

	s.logger.Debug("one-shot trigger scheduled",
		zap.String("kind", string(req.Kind)),
		zap.String("trigger_id", resp.Result.SysID),
		zap.String("correlation", correlation))
	return Outcome{Succeeded: true, RequiresSettleWait: true}
}

// ScriptFor derives the server-side script that performs req's effect.
// Exported because the artifact strategy embeds the same script in its
// manual descriptor.
func ScriptFor(req *Request) string {
	switch req.Kind {
	case KindSetWorkspace:
		return fmt.Sprintf(
			"gs.getUser().savePreference('apps.current_app', '%s');", escapeJS(req.TargetID()))
	case KindSetUpdateSet:
		return fmt.Sprintf(
			"var us = new GlideUpdateSet(); us.set('%s');", escapeJS(req.TargetID()))
	case KindRunScript:
		return req.Script()
	default:
		return ""
	}
}

// escapeJS escapes a sys_id-like value for embedding in a single-quoted
// script literal. Identifiers are hex strings in practice; this guards
// the case where they are not.
func escapeJS(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'', '\\':
			out = append(out, '\\', s[i])
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
