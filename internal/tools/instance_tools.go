package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"snowgate/internal/instance"
)

// InstanceTools exposes the configured instances and the per-session
// instance selection.
type InstanceTools struct {
	store  *instance.Store
	router *instance.Router
}

// NewInstanceTools creates the instance listing/selection tool set.
func NewInstanceTools(store *instance.Store, router *instance.Router) *InstanceTools {
	return &InstanceTools{store: store, router: router}
}

// ListDefinition returns the snow_list_instances tool definition.
func (t *InstanceTools) ListDefinition() mcp.Tool {
	return mcp.NewTool("snow_list_instances",
		mcp.WithDescription(
			"List the configured ServiceNow instances and show which one "+
				"operations currently run against by default."),
	)
}

// HandleList processes snow_list_instances.
func (t *InstanceTools) HandleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	active := t.router.Active()

	var b strings.Builder
	b.WriteString("Configured instances:\n")
	for _, inst := range t.store.List() {
		marker := "  "
		if inst.Name == active.Name {
			marker = "→ "
		}
		fmt.Fprintf(&b, "%s%s  %s", marker, inst.Name, inst.BaseURL)
		if inst.Default {
			b.WriteString("  (default)")
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// SelectDefinition returns the snow_select_instance tool definition.
func (t *InstanceTools) SelectDefinition() mcp.Tool {
	return mcp.NewTool("snow_select_instance",
		mcp.WithDescription(
			"Select the instance that subsequent tools use when they name "+
				"none. Affects only this session; instance configuration is "+
				"never modified."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of a configured instance"),
		),
	)
}

// HandleSelect processes snow_select_instance.
func (t *InstanceTools) HandleSelect(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("name", ""))
	if name == "" {
		return mcp.NewToolResultError("'name' is required — one of the configured instance names"), nil
	}
	inst, err := t.router.Select(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Now operating on %q (%s) by default.", inst.Name, inst.BaseURL)), nil
}
