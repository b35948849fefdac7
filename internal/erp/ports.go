package erp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Client is the ERP RPC collaborator: one remote method call on one model.
type Client interface {
	Execute(
		ctx context.Context,
		model string,
		method string,
		args []any,
		kwargs map[string]any,
	) (json.RawMessage, error)
}

// RemoteError is a failure reported by the ERP itself (access rights,
// validation, missing record). Transport failures are returned as plain
// wrapped errors.
type RemoteError struct {
	Code    int
	Message string
	Name    string
}

func (e *RemoteError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("odoo: %s: %s", e.Name, e.Message)
	}
	return "odoo: " + e.Message
}

// Count runs search_count with a domain on model.
func Count(ctx context.Context, c Client, model string, domain []any) (int64, error) {
	raw, err := c.Execute(ctx, model, "search_count", []any{domain}, nil)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("decode search_count result: %w", err)
	}
	return n, nil
}

// SearchRead runs search_read and decodes the records as generic maps.
func SearchRead(
	ctx context.Context,
	c Client,
	model string,
	domain []any,
	fields []string,
	limit int,
) ([]map[string]any, error) {
	kwargs := map[string]any{"fields": fields}
	if limit > 0 {
		kwargs["limit"] = limit
	}
	raw, err := c.Execute(ctx, model, "search_read", []any{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode search_read result: %w", err)
	}
	return out, nil
}
