package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"snowgate/internal/artifacts"
	"snowgate/internal/ops"
)

// ArtifactLister reads back persisted manual artifacts.
type ArtifactLister interface {
	List(instanceName string, limit int) ([]*ops.ManualArtifact, error)
	Get(id string) (*ops.ManualArtifact, error)
}

// ArtifactsTool lists manual artifacts recorded by earlier fallbacks, so
// a human can pick up incomplete operations across sessions.
type ArtifactsTool struct {
	store ArtifactLister
}

// NewArtifactsTool creates the snow_list_artifacts tool.
func NewArtifactsTool(store ArtifactLister) *ArtifactsTool {
	return &ArtifactsTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *ArtifactsTool) Definition() mcp.Tool {
	return mcp.NewTool("snow_list_artifacts",
		mcp.WithDescription(
			"List manual artifacts produced when automated operations failed. "+
				"Pass an id to fetch one artifact's full completion procedure."),
		mcp.WithString("id", mcp.Description("Artifact id to fetch in full")),
		mcp.WithString("instance", mcp.Description("Filter by instance name")),
		mcp.WithNumber("limit", mcp.Description("Maximum artifacts to list (default 20)")),
	)
}

// Handle processes snow_list_artifacts.
func (t *ArtifactsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := strings.TrimSpace(req.GetString("id", "")); id != "" {
		a, err := t.store.Get(id)
		if err != nil {
			return nil, fmt.Errorf("loading artifact: %w", err)
		}
		if a == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no artifact with id %q", id)), nil
		}
		rendered, err := artifacts.RenderYAML(a)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(rendered), nil
	}

	list, err := t.store.List(req.GetString("instance", ""), req.GetInt("limit", 0))
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No manual artifacts recorded."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d manual artifact(s):\n", len(list))
	for _, a := range list {
		fmt.Fprintf(&b, "- %s  %s on %s  (%s)\n", a.ID, a.Kind, a.Instance, a.CreatedAt)
	}
	b.WriteString("\nPass an id to see the full completion procedure.")
	return mcp.NewToolResultText(b.String()), nil
}
