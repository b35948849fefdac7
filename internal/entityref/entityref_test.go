package entityref

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/signal"
)

type countClient struct {
	mu    sync.Mutex
	calls int
	last  []any
	count int64
	err   error
}

func (c *countClient) Execute(_ context.Context, model, method string, args []any, _ map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = args
	if c.err != nil {
		return nil, c.err
	}
	return json.Marshal(c.count)
}

func TestLinkify_WorkOrderAndManufacturingOrder(t *testing.T) {
	out, refs := Linkify("See WO #882 and the related MO 41")

	require.Len(t, refs, 2)
	assert.Equal(t, "mrp.workorder", refs[0].Model)
	assert.Equal(t, int64(882), refs[0].ID)
	assert.Equal(t, "Work Order #882", refs[0].Label)
	assert.Equal(t, "WO", refs[0].Keyword)
	assert.Equal(t, "mrp.production", refs[1].Model)
	assert.Equal(t, int64(41), refs[1].ID)
	assert.Equal(t, StatusUnverified, refs[1].Status)

	assert.Equal(t,
		`See <a class="erp-ref" data-model="mrp.workorder" data-id="882">Work Order #882</a> and the related `+
			`<a class="erp-ref" data-model="mrp.production" data-id="41">Manufacturing Order #41</a>`,
		out)
	for _, r := range refs {
		assert.True(t, strings.HasPrefix(out[r.Start:r.End], "<a "))
		assert.True(t, strings.HasSuffix(out[r.Start:r.End], "</a>"))
	}
}

func TestLinkify_Table(t *testing.T) {
	tests := []struct {
		in    string
		model string
		id    int64
	}{
		{"work order 12", "mrp.workorder", 12},
		{"Manufacturing Order #7", "mrp.production", 7},
		{"lead 5", "crm.lead", 5},
		{"Opportunity #9", "crm.lead", 9},
		{"sale order 3", "sale.order", 3},
		{"Sales Order #30", "sale.order", 30},
		{"SO 8", "sale.order", 8},
		{"purchase order 4", "purchase.order", 4},
		{"PO#11", "purchase.order", 11},
		{"invoice 77", "account.move", 77},
		{"partner 2", "res.partner", 2},
		{"Contact #6", "res.partner", 6},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, refs := Linkify(tt.in)
			require.Len(t, refs, 1)
			assert.Equal(t, tt.model, refs[0].Model)
			assert.Equal(t, tt.id, refs[0].ID)
		})
	}
}

func TestLinkify_AcronymsAreCaseSensitive(t *testing.T) {
	_, refs := Linkify("so 5 people and wo 3 mo 2")
	assert.Empty(t, refs)
}

func TestLinkify_Idempotent(t *testing.T) {
	once, refs := Linkify("Invoice 12 for partner 3, see SO 99.")
	require.Len(t, refs, 3)

	twice, again := Linkify(once)
	assert.Equal(t, once, twice)
	assert.Empty(t, again)
}

func TestLinkify_SkipsMarkupCodeAndDirectives(t *testing.T) {
	in := "Check <b>lead 4</b>\n" +
		"```\nwrite('sale.order', [SO 5], values={})\n```\n" +
		`DATABASE_OPERATION:{"model":"mrp.workorder","note":"WO 3"}` + "\n" +
		"and MO 2"

	out, refs := Linkify(in)

	require.Len(t, refs, 2)
	assert.Equal(t, "crm.lead", refs[0].Model)
	assert.Equal(t, "mrp.production", refs[1].Model)
	assert.Contains(t, out, "write('sale.order', [SO 5], values={})")
	assert.Contains(t, out, `"note":"WO 3"`)
}

func TestLinkify_MakesNoBackendCalls(t *testing.T) {
	c := &countClient{count: 1}
	_ = NewActivator(c, "https://erp.example.com")

	_, refs := Linkify("WO 1, MO 2, lead 3, SO 4, PO 5, invoice 6, contact 7")

	assert.Len(t, refs, 7)
	assert.Equal(t, 0, c.calls)
}

func TestActivate_Found(t *testing.T) {
	c := &countClient{count: 1}
	a := NewActivator(c, "https://erp.example.com/")

	act, err := a.Activate(context.Background(), "mrp.workorder", 882)
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, act.Status)
	assert.Equal(t, "https://erp.example.com/web#id=882&model=mrp.workorder&view_type=form", act.URL)
	assert.Nil(t, act.Notice)

	b, _ := json.Marshal(c.last)
	assert.JSONEq(t, `[[["id","=",882]]]`, string(b))
}

func TestActivate_NotFound(t *testing.T) {
	a := NewActivator(&countClient{count: 0}, "https://erp.example.com")

	act, err := a.Activate(context.Background(), "sale.order", 5)
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, act.Status)
	assert.Empty(t, act.URL)
	require.NotNil(t, act.Notice)
	assert.Equal(t, signal.LevelWarning, act.Notice.Level)
	assert.Contains(t, act.Notice.Message, "Sales Order #5")
}

func TestActivate_LookupError(t *testing.T) {
	a := NewActivator(&countClient{err: errors.New("connection refused")}, "https://erp.example.com")

	act, err := a.Activate(context.Background(), "crm.lead", 1)
	require.NoError(t, err)

	assert.Equal(t, StatusError, act.Status)
	require.NotNil(t, act.Notice)
	assert.Equal(t, signal.LevelDanger, act.Notice.Level)
}

func TestActivate_IdempotentAndReadOnly(t *testing.T) {
	c := &countClient{count: 1}
	a := NewActivator(c, "https://erp.example.com")

	first, err := a.Activate(context.Background(), "account.move", 3)
	require.NoError(t, err)
	second, err := a.Activate(context.Background(), "account.move", 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, c.calls)
}

func TestActivate_RejectsUnknownModel(t *testing.T) {
	c := &countClient{count: 1}
	a := NewActivator(c, "https://erp.example.com")

	_, err := a.Activate(context.Background(), "res.users", 1)
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = a.Activate(context.Background(), "crm.lead", 0)
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.Equal(t, 0, c.calls)
}
