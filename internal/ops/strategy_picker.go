package ops

import (
	"context"
	"time"

	"go.uber.org/zap"

	"snowgate/internal/client"
	"snowgate/internal/session"
)

// Undocumented UI picker endpoints. These back the platform's own header
// widgets for switching the active application scope and update set, and
// require session cookie presence on top of Basic auth.
const (
	pickerApplicationPath = "/api/now/ui/concoursepicker/application"
	pickerUpdateSetPath   = "/api/now/ui/concoursepicker/updateset"
)

// pickerTimeout is the transport timeout for the immediate endpoints.
const pickerTimeout = 15 * time.Second

// pickerStrategy switches the active context through the hidden UI picker
// endpoints. Immediate: the preference is written before the call returns.
type pickerStrategy struct {
	logger *zap.Logger
}

// NewPickerStrategy creates the immediate UI-picker strategy.
func NewPickerStrategy(logger *zap.Logger) Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pickerStrategy{logger: logger}
}

func (s *pickerStrategy) Name() string                 { return "ui_picker" }
func (s *pickerStrategy) Synchronicity() Synchronicity { return Immediate }
func (s *pickerStrategy) NeedsSession() bool           { return true }

func (s *pickerStrategy) AppliesTo(kind Kind) bool {
	return kind == KindSetWorkspace || kind == KindSetUpdateSet
}

func (s *pickerStrategy) Attempt(ctx context.Context, req *Request, sess *session.Session) Outcome {
	c := sess.Client(client.WithTimeout(pickerTimeout), client.WithLogger(s.logger))

	var path string
	var body map[string]string
	switch req.Kind {
	case KindSetWorkspace:
		path = pickerApplicationPath
		body = map[string]string{"app_id": req.TargetID()}
	case KindSetUpdateSet:
		path = pickerUpdateSetPath
		body = map[string]string{"sysparm_update_set": req.TargetID()}
	default:
		return Outcome{Class: Fatal, RawResponse: "picker does not apply to " + string(req.Kind)}
	}

	var resp struct {
		Result struct {
			Success string `json:"success"`
		} `json:"result"`
	}
	if err := c.Post(ctx, path, body, &resp); err != nil {
		return Outcome{Class: client.ClassOf(err), RawResponse: err.Error()}
	}
	if resp.Result.Success == "false" {
		// The endpoint answers 200 with an in-band failure flag when the
		// target identifier does not resolve.
		return Outcome{Class: NotFound, RawResponse: "picker reported success=false"}
	}

	s.logger.Debug("picker switch applied",
		zap.String("kind", string(req.Kind)),
		zap.String("target", req.TargetID()))
	return Outcome{Succeeded: true}
}
