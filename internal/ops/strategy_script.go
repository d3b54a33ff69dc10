package ops

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"snowgate/internal/client"
	"snowgate/internal/session"
)

// scriptRunPath is the UI background-script runner. Form-driven, HTML
// response, session cookies required.
const scriptRunPath = "/sys.scripts.do"

// scriptTimeout allows for long-running scripts; the runner blocks until
// the script completes.
const scriptTimeout = 60 * time.Second

// scriptRunStrategy executes a script synchronously through the UI
// background-script runner and captures its printed output. Preferred
// over the trigger for RunRemoteScript because the caller gets the
// script's output back, which a fire-and-forget scheduled job cannot
// provide.
type scriptRunStrategy struct {
	logger *zap.Logger
}

// NewScriptRunStrategy creates the immediate UI script-runner strategy.
func NewScriptRunStrategy(logger *zap.Logger) Strategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &scriptRunStrategy{logger: logger}
}

func (s *scriptRunStrategy) Name() string                 { return "script_runner" }
func (s *scriptRunStrategy) Synchronicity() Synchronicity { return Immediate }
func (s *scriptRunStrategy) NeedsSession() bool           { return true }

func (s *scriptRunStrategy) AppliesTo(kind Kind) bool {
	return kind == KindRunScript
}

func (s *scriptRunStrategy) Attempt(ctx context.Context, req *Request, sess *session.Session) Outcome {
	c := sess.Client(client.WithTimeout(scriptTimeout), client.WithLogger(s.logger))

	form := url.Values{}
	form.Set("script", req.Script())
	form.Set("runscript", "Run script")
	form.Set("sys_scope", "global")
	form.Set("record_for_rollback", "false")

	body, err := c.PostForm(ctx, scriptRunPath, form)
	if err != nil {
		return Outcome{Class: client.ClassOf(err), RawResponse: err.Error()}
	}

	// Login-page HTML instead of runner output means the session was not
	// honored: the runner silently redirects unauthorized callers.
	if strings.Contains(body, "logged_in_user") || strings.Contains(body, "not_logged_in") {
		return Outcome{Class: Permission, RawResponse: "script runner returned login page"}
	}

	s.logger.Debug("script executed via runner", zap.Int("output_bytes", len(body)))
	return Outcome{Succeeded: true, RawResponse: extractScriptOutput(body)}
}

// outputBlock matches the runner's PRE-wrapped script output.
var outputBlock = regexp.MustCompile(`(?s)<PRE>(.*?)</PRE>`)

// tagStrip removes any residual markup from the extracted block.
var tagStrip = regexp.MustCompile(`<[^>]+>`)

// extractScriptOutput pulls the printed output out of the runner's HTML
// response. When no output block is present the raw body is returned
// stripped, so the caller still sees evaluation errors.
func extractScriptOutput(html string) string {
	if m := outputBlock.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(tagStrip.ReplaceAllString(m[1], ""))
	}
	return strings.TrimSpace(tagStrip.ReplaceAllString(html, ""))
}
