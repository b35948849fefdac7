package assistant

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/erp"
)

func (s *server) answer(key, body string) {
	if s.erp.answers == nil {
		s.erp.answers = map[string]json.RawMessage{}
	}
	s.erp.answers[key] = json.RawMessage(body)
}

func TestHandler_ListModels(t *testing.T) {
	s := newServer(t, echoReply, nil)
	s.answer("ir.model search_count", `1`)
	s.answer("ir.model search_read", `[{"model":"sale.order","name":"Sales Order","transient":false}]`)

	rec := s.do(t, http.MethodGet, "/odoo/models?filter=sale&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[erp.ModelPage](t, rec)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Models, 1)
	assert.Equal(t, "sale.order", page.Models[0].Model)
	assert.Equal(t, 10, s.erp.calls[1].Kwargs["limit"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/odoo/models?offset=-1", "").Code)
}

func TestHandler_ModelSchema(t *testing.T) {
	s := newServer(t, echoReply, nil)
	s.answer("ir.model search_read", `[{"model":"crm.lead","name":"Lead"}]`)
	s.answer("crm.lead fields_get", `{"name":{"string":"Opportunity","type":"char"}}`)

	rec := s.do(t, http.MethodGet, "/odoo/schema/crm.lead", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	schema := decode[erp.Schema](t, rec)
	assert.Equal(t, "Lead", schema.Name)
	assert.Equal(t, "char", schema.Fields["name"]["type"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/odoo/schema/Bad%20Model", "").Code)

	s.answer("ir.model search_read", `[]`)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/odoo/schema/x.missing", "").Code)
}

func TestHandler_ListRecords(t *testing.T) {
	s := newServer(t, echoReply, nil)
	s.answer("ir.model search_read", `[{"model":"sale.order","name":"Sales Order"}]`)
	s.answer("sale.order search_count", `31`)
	s.answer("sale.order search_read", `[{"id":12,"name":"S00012"}]`)

	q := url.Values{
		"domain": {`[["state","=","sale"]]`},
		"fields": {"name, amount_total"},
		"limit":  {"5"},
		"offset": {"10"},
		"order":  {"id desc"},
	}
	rec := s.do(t, http.MethodGet, "/odoo/records/sale.order?"+q.Encode(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[erp.RecordPage](t, rec)
	assert.Equal(t, int64(31), page.Total)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, 10, page.Offset)
	require.Len(t, page.Records, 1)

	read := s.erp.calls[len(s.erp.calls)-1]
	assert.Equal(t, "search_read", read.Method)
	assert.Equal(t, []any{[]any{[]any{"state", "=", "sale"}}}, read.Args)
	assert.Equal(t, []string{"name", "amount_total"}, read.Kwargs["fields"])
	assert.Equal(t, "id desc", read.Kwargs["order"])

	for _, bad := range []string{
		"domain=" + url.QueryEscape(`{"state":"sale"}`),
		"order=" + url.QueryEscape("id; DROP TABLE"),
		"limit=ten",
	} {
		rec := s.do(t, http.MethodGet, "/odoo/records/sale.order?"+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestHandler_BrowseERPFailureIsBadGateway(t *testing.T) {
	s := newServer(t, echoReply, nil)
	s.erp.err = &erp.RemoteError{Message: "Access Denied"}

	rec := s.do(t, http.MethodGet, "/odoo/records/sale.order", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access Denied")
}

func TestHandler_BrowseNeverWrites(t *testing.T) {
	s := newServer(t, echoReply, nil)
	s.answer("ir.model search_read", `[{"model":"sale.order","name":"Sales Order"}]`)
	s.answer("sale.order search_count", `0`)

	s.do(t, http.MethodGet, "/odoo/models", "")
	s.do(t, http.MethodGet, "/odoo/schema/sale.order", "")
	s.do(t, http.MethodGet, "/odoo/records/sale.order", "")

	for _, c := range s.erp.calls {
		assert.Contains(t, []string{"search_read", "search_count", "fields_get"}, c.Method)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(t, http.MethodPost, "/odoo/records/sale.order", `{}`).Code)
}
