// Package records is the 1:1 Table API passthrough: read, create, update,
// delete, and query records on whatever instance the caller's client is
// bound to. No fallback logic lives here — a failed call is a failed call.
package records

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"snowgate/internal/client"
)

// tablePath builds the Table API path for a table, optionally with sys_id.
func tablePath(table, sysID string) string {
	p := "/api/now/table/" + table
	if sysID != "" {
		p += "/" + sysID
	}
	return p
}

// Record is a raw platform record: field name to display/raw value.
type Record map[string]any

// QueryOptions narrows a table query.
type QueryOptions struct {
	// Query is an encoded sysparm_query string.
	Query string
	// Fields limits the returned columns.
	Fields []string
	// Limit caps the result count; 0 means the service default.
	Limit int
}

// defaultLimit caps unbounded queries so a tool call cannot pull an
// entire table into the response.
const defaultLimit = 20

// Service performs record CRUD over one bound client.
type Service struct {
	c *client.Client
}

// NewService creates a record service over c.
func NewService(c *client.Client) *Service {
	return &Service{c: c}
}

// Get fetches one record by sys_id.
func (s *Service) Get(ctx context.Context, table, sysID string) (Record, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	var resp struct {
		Result Record `json:"result"`
	}
	if err := s.c.Get(ctx, tablePath(table, sysID), nil, &resp); err != nil {
		return nil, fmt.Errorf("records: get %s/%s: %w", table, sysID, err)
	}
	return resp.Result, nil
}

// Create inserts a record and returns the stored row.
func (s *Service) Create(ctx context.Context, table string, fields Record) (Record, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	var resp struct {
		Result Record `json:"result"`
	}
	if err := s.c.Post(ctx, tablePath(table, ""), fields, &resp); err != nil {
		return nil, fmt.Errorf("records: create in %s: %w", table, err)
	}
	return resp.Result, nil
}

// Update patches a record and returns the stored row.
func (s *Service) Update(ctx context.Context, table, sysID string, fields Record) (Record, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	var resp struct {
		Result Record `json:"result"`
	}
	if err := s.c.Patch(ctx, tablePath(table, sysID), fields, &resp); err != nil {
		return nil, fmt.Errorf("records: update %s/%s: %w", table, sysID, err)
	}
	return resp.Result, nil
}

// Delete removes a record by sys_id.
func (s *Service) Delete(ctx context.Context, table, sysID string) error {
	if err := validateTable(table); err != nil {
		return err
	}
	if err := s.c.Delete(ctx, tablePath(table, sysID)); err != nil {
		return fmt.Errorf("records: delete %s/%s: %w", table, sysID, err)
	}
	return nil
}

// Query lists records matching opts.
func (s *Service) Query(ctx context.Context, table string, opts QueryOptions) ([]Record, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}
	q := url.Values{}
	if opts.Query != "" {
		q.Set("sysparm_query", opts.Query)
	}
	if len(opts.Fields) > 0 {
		q.Set("sysparm_fields", strings.Join(opts.Fields, ","))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	q.Set("sysparm_limit", strconv.Itoa(limit))

	var resp struct {
		Result []Record `json:"result"`
	}
	if err := s.c.Get(ctx, tablePath(table, ""), q, &resp); err != nil {
		return nil, fmt.Errorf("records: query %s: %w", table, err)
	}
	return resp.Result, nil
}

// validateTable rejects names that would break the path. Table names are
// lowercase identifiers with underscores on every supported platform
// version.
func validateTable(table string) error {
	if table == "" {
		return fmt.Errorf("records: table name is required")
	}
	for i := 0; i < len(table); i++ {
		c := table[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			continue
		}
		return fmt.Errorf("records: invalid table name %q", table)
	}
	return nil
}
