// Package tools implements the MCP tool handlers.
//
// Each tool is a struct that receives its dependencies at construction
// and exposes a Definition()/Handle pair for registration. Tools
// translate between the protocol surface and the core packages; no
// executor, routing, or HTTP logic lives here.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"snowgate/internal/instance"
	"snowgate/internal/ops"
)

// Operator is the executor seam the operation tools depend on.
type Operator interface {
	Execute(ctx context.Context, req *ops.Request) (*ops.Result, error)
}

// ArtifactSaver persists manual artifacts. Nil-safe at the call sites:
// when the store failed to initialize, descriptors are still returned in
// the response, just not persisted.
type ArtifactSaver interface {
	Save(a *ops.ManualArtifact) error
}

// OperationTool handles one configuration-mutating MCP tool. The three
// registered operation tools share this implementation and differ only
// in kind, name, and parameter schema.
type OperationTool struct {
	kind      ops.Kind
	router    *instance.Router
	exec      Operator
	artifacts ArtifactSaver
}

// NewSetWorkspaceTool creates the snow_set_workspace tool.
func NewSetWorkspaceTool(router *instance.Router, exec Operator, artifacts ArtifactSaver) *OperationTool {
	return &OperationTool{kind: ops.KindSetWorkspace, router: router, exec: exec, artifacts: artifacts}
}

// NewSetUpdateSetTool creates the snow_set_update_set tool.
func NewSetUpdateSetTool(router *instance.Router, exec Operator, artifacts ArtifactSaver) *OperationTool {
	return &OperationTool{kind: ops.KindSetUpdateSet, router: router, exec: exec, artifacts: artifacts}
}

// NewRunScriptTool creates the snow_run_script tool.
func NewRunScriptTool(router *instance.Router, exec Operator, artifacts ArtifactSaver) *OperationTool {
	return &OperationTool{kind: ops.KindRunScript, router: router, exec: exec, artifacts: artifacts}
}

// Definition returns the MCP tool definition for registration.
func (t *OperationTool) Definition() mcp.Tool {
	switch t.kind {
	case ops.KindSetWorkspace:
		return mcp.NewTool("snow_set_workspace",
			mcp.WithDescription(
				"Switch the active application scope on a ServiceNow instance. "+
					"Tries the UI picker endpoint first, falls back to a one-shot "+
					"scheduled job, and produces a manual completion script if both fail. "+
					"The result reports which mechanism succeeded and whether the switch "+
					"was independently verified.",
			),
			mcp.WithString("scope_id",
				mcp.Required(),
				mcp.Description("sys_id of the target application scope (sys_scope record)"),
			),
			mcp.WithString("instance",
				mcp.Description("Named instance to operate on. Defaults to the selected instance."),
			),
		)
	case ops.KindSetUpdateSet:
		return mcp.NewTool("snow_set_update_set",
			mcp.WithDescription(
				"Switch the active update set on a ServiceNow instance. "+
					"Same tiered mechanism as snow_set_workspace: picker endpoint, "+
					"then scheduled-job side channel, then manual artifact.",
			),
			mcp.WithString("update_set_id",
				mcp.Required(),
				mcp.Description("sys_id of the target update set (sys_update_set record)"),
			),
			mcp.WithString("instance",
				mcp.Description("Named instance to operate on. Defaults to the selected instance."),
			),
		)
	default:
		return mcp.NewTool("snow_run_script",
			mcp.WithDescription(
				"Run a server-side script on a ServiceNow instance. Uses the UI "+
					"background-script runner when a session can be established "+
					"(output is captured), otherwise schedules a one-shot job "+
					"(fire and forget), otherwise produces a manual script artifact.",
			),
			mcp.WithString("script",
				mcp.Required(),
				mcp.Description("Server-side script body to execute"),
			),
			mcp.WithString("instance",
				mcp.Description("Named instance to operate on. Defaults to the selected instance."),
			),
		)
	}
}

// Handle processes the operation tool call.
func (t *OperationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params, errMsg := t.params(req)
	if errMsg != "" {
		return mcp.NewToolResultError(errMsg), nil
	}
	instanceName := req.GetString("instance", "")

	var result *ops.Result
	err := t.router.WithInstance(ctx, instanceName, func(ctx context.Context, inst instance.Instance) error {
		r, execErr := t.exec.Execute(ctx, &ops.Request{
			Kind:     t.kind,
			Params:   params,
			Instance: inst,
		})
		result = r
		return execErr
	})
	if err != nil {
		var nf *instance.NotFoundError
		if errors.As(err, &nf) {
			return mcp.NewToolResultError(nf.Error()), nil
		}
		if class, ok := ops.ClassOfError(err); ok && class == ops.NotFound {
			return mcp.NewToolResultError(fmt.Sprintf(
				"Target does not exist on the instance — no mechanism can help: %v", err)), nil
		}
		return nil, fmt.Errorf("executing %s: %w", t.kind, err)
	}

	if result.ManualArtifact != nil && t.artifacts != nil {
		if saveErr := t.artifacts.Save(result.ManualArtifact); saveErr != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("artifact not persisted: %v", saveErr))
		}
	}

	return mcp.NewToolResultText(formatResult(t.kind, result)), nil
}

// params extracts and validates the kind-specific parameters.
func (t *OperationTool) params(req mcp.CallToolRequest) (map[string]string, string) {
	switch t.kind {
	case ops.KindSetWorkspace:
		id := strings.TrimSpace(req.GetString("scope_id", ""))
		if id == "" {
			return nil, "'scope_id' is required — the sys_id of the target application scope"
		}
		return map[string]string{"scope_id": id}, ""
	case ops.KindSetUpdateSet:
		id := strings.TrimSpace(req.GetString("update_set_id", ""))
		if id == "" {
			return nil, "'update_set_id' is required — the sys_id of the target update set"
		}
		return map[string]string{"update_set_id": id}, ""
	default:
		script := req.GetString("script", "")
		if strings.TrimSpace(script) == "" {
			return nil, "'script' is required — the server-side script body to run"
		}
		return map[string]string{"script": script}, ""
	}
}
