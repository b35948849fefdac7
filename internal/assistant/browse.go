package assistant

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/erp"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

// Read-only ERP browsing. Mutations only ever go through the operation gate.

var orderClause = regexp.MustCompile(`(?i)^[a-z0-9_]+( (asc|desc))?(, *[a-z0-9_]+( (asc|desc))?)*$`)

func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	page, err := erp.ListModels(r.Context(), h.odoo, strings.TrimSpace(q.Get("filter")), limit, offset)
	if err != nil {
		h.failERP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) ModelSchema(w http.ResponseWriter, r *http.Request) {
	s, err := erp.ModelSchema(r.Context(), h.odoo, chi.URLParam(r, "model"))
	if err != nil {
		h.failERP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListRecords accepts domain (JSON array), fields (comma separated), limit,
// offset and order.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	query := erp.RecordQuery{Limit: limit, Offset: offset}
	if d := strings.TrimSpace(q.Get("domain")); d != "" {
		if err := json.Unmarshal([]byte(d), &query.Domain); err != nil {
			writeError(w, http.StatusBadRequest, "domain must be a JSON array")
			return
		}
	}
	for _, f := range strings.Split(q.Get("fields"), ",") {
		if f = strings.TrimSpace(f); f != "" {
			query.Fields = append(query.Fields, f)
		}
	}
	if o := strings.TrimSpace(q.Get("order")); o != "" {
		if !orderClause.MatchString(o) {
			writeError(w, http.StatusBadRequest, "invalid order")
			return
		}
		query.Order = o
	}

	page, err := erp.Records(r.Context(), h.odoo, chi.URLParam(r, "model"), query)
	if err != nil {
		h.failERP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, p.name+" must be a non-negative integer")
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

func (h *Handler) failERP(w http.ResponseWriter, r *http.Request, err error) {
	var remote *erp.RemoteError
	switch {
	case errors.Is(err, erp.ErrInvalidModel):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, erp.ErrModelNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &remote):
		writeError(w, http.StatusBadGateway, remote.Error())
	default:
		observability.LoggerFromContext(r.Context()).Warn("erp request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "erp unavailable")
	}
}
