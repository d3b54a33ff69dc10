package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowgate/internal/instance"
	"snowgate/internal/ops"
)

// --- fakes ---

type fakeOperator struct {
	result  *ops.Result
	err     error
	gotReq  *ops.Request
	gotInst instance.Instance
}

func (f *fakeOperator) Execute(_ context.Context, req *ops.Request) (*ops.Result, error) {
	f.gotReq = req
	f.gotInst = req.Instance
	return f.result, f.err
}

type fakeSaver struct {
	saved []*ops.ManualArtifact
	err   error
}

func (f *fakeSaver) Save(a *ops.ManualArtifact) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, a)
	return nil
}

func testRouter(t *testing.T) *instance.Router {
	t.Helper()
	store, err := instance.NewStore([]instance.Instance{
		{Name: "dev", BaseURL: "https://dev.example.com", Username: "admin", Password: "x", Default: true},
		{Name: "prod", BaseURL: "https://prod.example.com", Username: "admin", Password: "y"},
	})
	require.NoError(t, err)
	return instance.NewRouter(store)
}

// resultText extracts the text content from a CallToolResult.
func resultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func callReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func verifiedResult() *ops.Result {
	v := true
	return &ops.Result{
		Success:       true,
		MethodUsed:    "ui_picker",
		PreviousState: "old-scope",
		Verified:      &v,
		Timings:       ops.Timings{Attempt: 120 * time.Millisecond},
	}
}

// --- OperationTool ---

func TestSetWorkspace_Success(t *testing.T) {
	op := &fakeOperator{result: verifiedResult()}
	tool := NewSetWorkspaceTool(testRouter(t), op, nil)

	result, err := tool.Handle(context.Background(), callReq(map[string]any{
		"scope_id": "abc123",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, ops.KindSetWorkspace, op.gotReq.Kind)
	assert.Equal(t, "abc123", op.gotReq.Params["scope_id"])
	assert.Equal(t, "dev", op.gotInst.Name, "defaults to the default instance")

	text := resultText(result)
	assert.Contains(t, text, "succeeded via ui_picker (verified)")
	assert.Contains(t, text, "Previous state: old-scope")
}

func TestSetWorkspace_MissingScopeID(t *testing.T) {
	op := &fakeOperator{}
	tool := NewSetWorkspaceTool(testRouter(t), op, nil)

	result, err := tool.Handle(context.Background(), callReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Nil(t, op.gotReq, "executor must not run on invalid input")
}

func TestSetUpdateSet_RoutesNamedInstance(t *testing.T) {
	op := &fakeOperator{result: verifiedResult()}
	tool := NewSetUpdateSetTool(testRouter(t), op, nil)

	result, err := tool.Handle(context.Background(), callReq(map[string]any{
		"update_set_id": "us456",
		"instance":      "prod",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "prod", op.gotInst.Name)
	assert.Equal(t, "us456", op.gotReq.Params["update_set_id"])
}

func TestOperation_UnknownInstanceIsToolError(t *testing.T) {
	op := &fakeOperator{}
	tool := NewSetWorkspaceTool(testRouter(t), op, nil)

	result, err := tool.Handle(context.Background(), callReq(map[string]any{
		"scope_id": "abc123",
		"instance": "staging",
	}))
	require.NoError(t, err, "a bad instance name is the agent's mistake, not a server failure")
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "staging")
}

func TestOperation_TargetNotFoundIsToolError(t *testing.T) {
	op := &fakeOperator{
		result: &ops.Result{Success: false},
		err:    &ops.OperationError{Class: ops.NotFound, Strategy: "ui_picker", Detail: "no such scope"},
	}
	tool := NewSetWorkspaceTool(testRouter(t), op, nil)

	result, err := tool.Handle(context.Background(), callReq(map[string]any{
		"scope_id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(result), "does not exist")
}

func TestOperation_UnexpectedErrorPropagates(t *testing.T) {
	op := &fakeOperator{err: errors.New("boom")}
	tool := NewSetWorkspaceTool(testRouter(t), op, nil)

	_, err := tool.Handle(context.Background(), callReq(map[string]any{
		"scope_id": "abc123",
	}))
	assert.Error(t, err)
}

func TestRunScript_SurfacesOutput(t *testing.T) {
	op := &fakeOperator{result: &ops.Result{
		Success:      true,
		MethodUsed:   "script_runner",
		ScriptOutput: "*** Script: hello",
	}}
	tool := NewRunScriptTool(testRouter(t), op, nil)

	result, err := tool.Handle(context.Background(), callReq(map[string]any{
		"script": "gs.info('hello');",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(result)
	assert.Contains(t, text, "succeeded via script_runner")
	assert.Contains(t, text, "*** Script: hello")
	assert.Equal(t, "gs.info('hello');", op.gotReq.Params["script"])
}

func TestManualFallback_SavesArtifact(t *testing.T) {
	artifact := &ops.ManualArtifact{
		ID:              "art-1",
		Kind:            ops.KindSetWorkspace,
		Instance:        "dev",
		ScriptBody:      "gs.getUser().savePreference('apps.current_app', 'abc123');",
		SuggestedTarget: "System Definition > Scripts - Background",
		Procedure:       []string{"Open the module", "Paste and run"},
	}
	op := &fakeOperator{result: &ops.Result{
		Success:        false,
		MethodUsed:     "manual_artifact",
		ManualArtifact: artifact,
		Warnings:       []string{"ui_picker failed (permission): HTTP 403"},
	}}
	saver := &fakeSaver{}
	tool := NewSetWorkspaceTool(testRouter(t), op, saver)

	result, err := tool.Handle(context.Background(), callReq(map[string]any{
		"scope_id": "abc123",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "manual fallback is a valid outcome, not a protocol error")

	require.Len(t, saver.saved, 1)
	assert.Equal(t, "art-1", saver.saved[0].ID)

	text := resultText(result)
	assert.Contains(t, text, "Manual action required")
	assert.Contains(t, text, "Manual artifact art-1")
	assert.Contains(t, text, "1. Open the module")
	assert.Contains(t, text, "Warning: ui_picker failed")
}

func TestManualFallback_SaveFailureBecomesWarning(t *testing.T) {
	op := &fakeOperator{result: &ops.Result{
		Success:        false,
		MethodUsed:     "manual_artifact",
		ManualArtifact: &ops.ManualArtifact{ID: "art-1"},
	}}
	tool := NewSetWorkspaceTool(testRouter(t), op, &fakeSaver{err: errors.New("disk full")})

	result, err := tool.Handle(context.Background(), callReq(map[string]any{
		"scope_id": "abc123",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(result), "artifact not persisted: disk full")
}

func TestFormatResult_UnverifiedSuccess(t *testing.T) {
	v := false
	text := formatResult(ops.KindSetUpdateSet, &ops.Result{
		Success:    true,
		MethodUsed: "trigger",
		Verified:   &v,
		Warnings:   []string{"verification mismatch: current value is \"other\""},
		Timings: ops.Timings{
			Attempt: 120 * time.Millisecond,
			Settle:  2 * time.Second,
			Verify:  45 * time.Millisecond,
		},
	})
	assert.Contains(t, text, "NOT verified")
	assert.Contains(t, text, "Warning: verification mismatch")
	assert.Contains(t, text, "Timings: attempt 120ms, settle 2000ms, verify 45ms",
		"durations render in milliseconds")
}

func TestDefinitions(t *testing.T) {
	router := testRouter(t)
	assert.Equal(t, "snow_set_workspace", NewSetWorkspaceTool(router, nil, nil).Definition().Name)
	assert.Equal(t, "snow_set_update_set", NewSetUpdateSetTool(router, nil, nil).Definition().Name)
	assert.Equal(t, "snow_run_script", NewRunScriptTool(router, nil, nil).Definition().Name)
}
