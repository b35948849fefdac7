package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrInvalidModel  = errors.New("invalid model name")
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

var modelName = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z0-9_]+)*$`)

// Model is one ir.model row.
type Model struct {
	Model     string `json:"model"`
	Name      string `json:"name"`
	Transient bool   `json:"transient"`
}

type ModelPage struct {
	Models []Model `json:"models"`
	Total  int64   `json:"total"`
	Filter string  `json:"filter,omitempty"`
}

// Schema is a model's fields_get answer keyed by field name.
type Schema struct {
	Model     string                    `json:"model"`
	Name      string                    `json:"name"`
	Transient bool                      `json:"transient"`
	Fields    map[string]map[string]any `json:"fields"`
}

// RecordQuery narrows a search_read. Zero values mean defaults.
type RecordQuery struct {
	Domain []any
	Fields []string
	Limit  int
	Offset int
	Order  string
}

type RecordPage struct {
	Model   string           `json:"model"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
	Records []map[string]any `json:"records"`
}

var schemaAttributes = []string{"string", "type", "required", "readonly", "relation", "selection", "help"}

// ListModels pages through ir.model, optionally filtered by technical name.
func ListModels(ctx context.Context, c Client, filter string, limit, offset int) (*ModelPage, error) {
	domain := []any{}
	if filter != "" {
		domain = append(domain, []any{"model", "ilike", filter})
	}
	total, err := Count(ctx, c, "ir.model", domain)
	if err != nil {
		return nil, err
	}

	limit, offset = page(limit, offset)
	raw, err := c.Execute(ctx, "ir.model", "search_read", []any{domain}, map[string]any{
		"fields": []string{"model", "name", "transient"},
		"limit":  limit,
		"offset": offset,
		"order":  "model asc",
	})
	if err != nil {
		return nil, err
	}
	var models []Model
	if err := json.Unmarshal(raw, &models); err != nil {
		return nil, fmt.Errorf("decode ir.model rows: %w", err)
	}
	if models == nil {
		models = []Model{}
	}
	return &ModelPage{Models: models, Total: total, Filter: filter}, nil
}

// ModelSchema returns the field definitions of one model.
func ModelSchema(ctx context.Context, c Client, model string) (*Schema, error) {
	info, err := lookupModel(ctx, c, model)
	if err != nil {
		return nil, err
	}

	raw, err := c.Execute(ctx, model, "fields_get", []any{}, map[string]any{"attributes": schemaAttributes})
	if err != nil {
		return nil, err
	}
	s := &Schema{Model: info.Model, Name: info.Name, Transient: info.Transient}
	if err := json.Unmarshal(raw, &s.Fields); err != nil {
		return nil, fmt.Errorf("decode fields_get result: %w", err)
	}
	return s, nil
}

// Records runs a paginated search_read on model. It never writes.
func Records(ctx context.Context, c Client, model string, q RecordQuery) (*RecordPage, error) {
	if _, err := lookupModel(ctx, c, model); err != nil {
		return nil, err
	}
	domain := q.Domain
	if domain == nil {
		domain = []any{}
	}

	total, err := Count(ctx, c, model, domain)
	if err != nil {
		return nil, err
	}

	limit, offset := page(q.Limit, q.Offset)
	kwargs := map[string]any{"limit": limit, "offset": offset}
	if len(q.Fields) > 0 {
		kwargs["fields"] = q.Fields
	}
	if q.Order != "" {
		kwargs["order"] = q.Order
	}
	raw, err := c.Execute(ctx, model, "search_read", []any{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	out := &RecordPage{Model: model, Total: total, Limit: limit, Offset: offset}
	if err := json.Unmarshal(raw, &out.Records); err != nil {
		return nil, fmt.Errorf("decode search_read result: %w", err)
	}
	if out.Records == nil {
		out.Records = []map[string]any{}
	}
	return out, nil
}

func lookupModel(ctx context.Context, c Client, model string) (*Model, error) {
	if !modelName.MatchString(model) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModel, model)
	}
	raw, err := c.Execute(ctx, "ir.model", "search_read",
		[]any{[]any{[]any{"model", "=", model}}},
		map[string]any{"fields": []string{"model", "name", "transient"}, "limit": 1})
	if err != nil {
		return nil, err
	}
	var rows []Model
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode ir.model rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	return &rows[0], nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
