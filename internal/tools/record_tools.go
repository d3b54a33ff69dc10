package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"snowgate/internal/client"
	"snowgate/internal/instance"
	"snowgate/internal/query"
	"snowgate/internal/records"
)

// RecordTools bundles the Table API passthrough tools. They share a
// router and a logger; each call builds its own bound client, so two
// calls naming different instances never share transport state.
type RecordTools struct {
	router *instance.Router
	logger *zap.Logger
}

// NewRecordTools creates the record CRUD tool set.
func NewRecordTools(router *instance.Router, logger *zap.Logger) *RecordTools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordTools{router: router, logger: logger}
}

// service builds a record service bound to the named (or active) instance.
func (t *RecordTools) service(name string) (*records.Service, error) {
	inst, err := t.router.Resolve(name)
	if err != nil {
		return nil, err
	}
	c := client.New(inst, client.WithLogger(t.logger))
	return records.NewService(c), nil
}

// instanceArg is the shared optional instance parameter.
func instanceArg() mcp.ToolOption {
	return mcp.WithString("instance",
		mcp.Description("Named instance to query. Defaults to the selected instance."))
}

// GetDefinition returns the snow_get_record tool definition.
func (t *RecordTools) GetDefinition() mcp.Tool {
	return mcp.NewTool("snow_get_record",
		mcp.WithDescription("Fetch one record by sys_id from a table."),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name, e.g. incident")),
		mcp.WithString("sys_id", mcp.Required(), mcp.Description("sys_id of the record")),
		instanceArg(),
	)
}

// HandleGet processes snow_get_record.
func (t *RecordTools) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := req.GetString("table", "")
	sysID := req.GetString("sys_id", "")
	if table == "" || sysID == "" {
		return mcp.NewToolResultError("'table' and 'sys_id' are required"), nil
	}
	svc, err := t.service(req.GetString("instance", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := svc.Get(ctx, table, sysID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

// CreateDefinition returns the snow_create_record tool definition.
func (t *RecordTools) CreateDefinition() mcp.Tool {
	return mcp.NewTool("snow_create_record",
		mcp.WithDescription("Create a record. Fields are a JSON object of column to value."),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithString("fields", mcp.Required(), mcp.Description(`JSON object, e.g. {"short_description":"..."}`)),
		instanceArg(),
	)
}

// HandleCreate processes snow_create_record.
func (t *RecordTools) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := req.GetString("table", "")
	fields, errMsg := parseFields(req.GetString("fields", ""))
	if table == "" || errMsg != "" {
		if errMsg == "" {
			errMsg = "'table' is required"
		}
		return mcp.NewToolResultError(errMsg), nil
	}
	svc, err := t.service(req.GetString("instance", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := svc.Create(ctx, table, fields)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

// UpdateDefinition returns the snow_update_record tool definition.
func (t *RecordTools) UpdateDefinition() mcp.Tool {
	return mcp.NewTool("snow_update_record",
		mcp.WithDescription("Update fields on an existing record."),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithString("sys_id", mcp.Required(), mcp.Description("sys_id of the record")),
		mcp.WithString("fields", mcp.Required(), mcp.Description("JSON object of column to new value")),
		instanceArg(),
	)
}

// HandleUpdate processes snow_update_record.
func (t *RecordTools) HandleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := req.GetString("table", "")
	sysID := req.GetString("sys_id", "")
	fields, errMsg := parseFields(req.GetString("fields", ""))
	if table == "" || sysID == "" || errMsg != "" {
		if errMsg == "" {
			errMsg = "'table' and 'sys_id' are required"
		}
		return mcp.NewToolResultError(errMsg), nil
	}
	svc, err := t.service(req.GetString("instance", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := svc.Update(ctx, table, sysID, fields)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rec)
}

// DeleteDefinition returns the snow_delete_record tool definition.
func (t *RecordTools) DeleteDefinition() mcp.Tool {
	return mcp.NewTool("snow_delete_record",
		mcp.WithDescription("Delete a record by sys_id."),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithString("sys_id", mcp.Required(), mcp.Description("sys_id of the record")),
		instanceArg(),
	)
}

// HandleDelete processes snow_delete_record.
func (t *RecordTools) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := req.GetString("table", "")
	sysID := req.GetString("sys_id", "")
	if table == "" || sysID == "" {
		return mcp.NewToolResultError("'table' and 'sys_id' are required"), nil
	}
	svc, err := t.service(req.GetString("instance", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := svc.Delete(ctx, table, sysID); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted %s/%s.", table, sysID)), nil
}

// QueryDefinition returns the snow_query_records tool definition.
func (t *RecordTools) QueryDefinition() mcp.Tool {
	return mcp.NewTool("snow_query_records",
		mcp.WithDescription(
			"Query records from a table. The query accepts encoded sysparm_query "+
				"syntax or simple natural-language patterns like "+
				`"active, assigned to me, created this week".`),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithString("query", mcp.Description("Encoded query or natural-language pattern")),
		mcp.WithString("fields", mcp.Description("Comma-separated list of columns to return")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 20)")),
		instanceArg(),
	)
}

// HandleQuery processes snow_query_records.
func (t *RecordTools) HandleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	table := req.GetString("table", "")
	if table == "" {
		return mcp.NewToolResultError("'table' is required"), nil
	}
	svc, err := t.service(req.GetString("instance", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := records.QueryOptions{
		Query: query.Translate(req.GetString("query", "")),
		Limit: req.GetInt("limit", 0),
	}
	if f := strings.TrimSpace(req.GetString("fields", "")); f != "" {
		opts.Fields = strings.Split(f, ",")
	}

	recs, err := svc.Query(ctx, table, opts)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(recs)
}

// parseFields decodes the JSON fields argument.
func parseFields(raw string) (records.Record, string) {
	if strings.TrimSpace(raw) == "" {
		return nil, "'fields' is required — a JSON object of column to value"
	}
	var fields records.Record
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Sprintf("'fields' is not valid JSON: %v", err)
	}
	return fields, ""
}

// jsonResult renders v as indented JSON tool output.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError maps a remote failure to a tool error result. Classified
// errors read better than raw transport noise.
func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("%s (class: %s)", err, client.ClassOf(err))), nil
}
