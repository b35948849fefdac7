package erp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

const snapshotLimit = 50

type query struct {
	key    string
	model  string
	domain []any
	fields []string
}

type section struct {
	name    string
	module  string // "" = always included
	queries []query
}

var snapshotSections = []section{
	{
		name: "inventory",
		queries: []query{
			{"products", "product.product", []any{[]any{"type", "=", "product"}}, []string{"name", "qty_available", "virtual_available", "standard_price"}},
			{"categories", "product.category", []any{}, []string{"name", "parent_id"}},
		},
	},
	{
		name:   "manufacturing",
		module: "mrp",
		queries: []query{
			{"boms", "mrp.bom", []any{}, []string{"product_tmpl_id", "product_qty", "code"}},
			{"production_orders", "mrp.production", []any{[]any{"state", "in", []any{"draft", "confirmed", "progress"}}}, []string{"name", "product_id", "product_qty", "state"}},
			{"work_orders", "mrp.workorder", []any{[]any{"state", "not in", []any{"done", "cancel"}}}, []string{"name", "production_id", "workcenter_id", "state"}},
		},
	},
	{
		name:   "sales",
		module: "sale",
		queries: []query{
			{"orders", "sale.order", []any{[]any{"state", "in", []any{"draft", "sent", "sale"}}}, []string{"name", "partner_id", "amount_total", "state", "date_order"}},
			{"order_lines", "sale.order.line", []any{[]any{"order_id.state", "in", []any{"draft", "sent", "sale"}}}, []string{"order_id", "product_id", "product_uom_qty", "price_unit", "price_subtotal"}},
			{"customers", "res.partner", []any{[]any{"customer_rank", ">", 0}}, []string{"name", "email", "phone", "city"}},
		},
	},
	{
		name:   "purchasing",
		module: "purchase",
		queries: []query{
			{"orders", "purchase.order", []any{[]any{"state", "in", []any{"draft", "sent", "purchase"}}}, []string{"name", "partner_id", "amount_total", "state", "date_planned"}},
			{"order_lines", "purchase.order.line", []any{[]any{"order_id.state", "in", []any{"draft", "sent", "purchase"}}}, []string{"order_id", "product_id", "product_qty", "price_unit"}},
		},
	},
	{
		name:   "crm",
		module: "crm",
		queries: []query{
			{"leads", "crm.lead", []any{[]any{"active", "=", true}}, []string{"name", "partner_id", "expected_revenue", "stage_id"}},
		},
	},
	{
		name:   "accounting",
		module: "account",
		queries: []query{
			{"invoices", "account.move", []any{[]any{"move_type", "in", []any{"out_invoice", "in_invoice"}}, []any{"state", "!=", "cancel"}}, []string{"name", "partner_id", "amount_total", "state", "invoice_date_due", "payment_state"}},
		},
	},
}

// Snapshotter renders a YAML summary of live ERP data for the system prompt.
// Results are cached for ttl; a failed section is skipped, never fatal.
type Snapshotter struct {
	client Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

func NewSnapshotter(client Client, ttl time.Duration) *Snapshotter {
	return &Snapshotter{client: client, ttl: ttl, now: time.Now}
}

func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && s.now().Before(s.expires) {
		return s.cached, nil
	}

	out, err := s.build(ctx)
	if err != nil {
		return "", err
	}
	s.cached = out
	s.expires = s.now().Add(s.ttl)
	return out, nil
}

func (s *Snapshotter) build(ctx context.Context) (string, error) {
	log := observability.LoggerFromContext(ctx)

	mods, err := SearchRead(ctx, s.client, "ir.module.module",
		[]any{[]any{"state", "=", "installed"}}, []string{"name"}, 0)
	if err != nil {
		return "", fmt.Errorf("list installed modules: %w", err)
	}
	installed := make(map[string]bool, len(mods))
	for _, m := range mods {
		if name, ok := m["name"].(string); ok {
			installed[name] = true
		}
	}

	doc := map[string]map[string][]map[string]any{}
	for _, sec := range snapshotSections {
		if sec.module != "" && !installed[sec.module] {
			continue
		}
		data := map[string][]map[string]any{}
		for _, q := range sec.queries {
			rows, err := SearchRead(ctx, s.client, q.model, q.domain, q.fields, snapshotLimit)
			if err != nil {
				log.Warn("snapshot query failed",
					zap.String("section", sec.name),
					zap.String("model", q.model),
					zap.Error(err))
				continue
			}
			data[q.key] = rows
		}
		if len(data) > 0 {
			doc[sec.name] = data
		}
	}

	b, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	return string(b), nil
}
