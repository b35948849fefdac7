package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/actions"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/entityref"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/erp"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/session"
)

// HealthCheck checks one collaborator.
type HealthCheck func(ctx context.Context) error

// Version is reported by /status; set with -ldflags at build time.
var Version = "dev"

type Handler struct {
	svc       Service
	sessions  *session.Manager
	activator *entityref.Activator
	odoo      erp.Client
	hub       *Hub
	checks    map[string]HealthCheck
	started   time.Time
}

func NewHandler(
	svc Service,
	sessions *session.Manager,
	activator *entityref.Activator,
	odoo erp.Client,
	hub *Hub,
	checks map[string]HealthCheck,
) *Handler {
	return &Handler{
		svc:       svc,
		sessions:  sessions,
		activator: activator,
		odoo:      odoo,
		hub:       hub,
		checks:    checks,
		started:   time.Now(),
	}
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []session.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	s, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": s,
		"busy":    h.sessions.Busy(id),
		"pending": h.sessions.Pending(id),
	})
}

// UpdateSession sets status and/or metadata. Omitted fields are kept.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Status   *session.Status `json:"status"`
		Metadata map[string]any  `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s, err := h.sessions.Update(r.Context(), chi.URLParam(r, "sessionID"), payload.Status, payload.Metadata)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	turns, err := h.sessions.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if turns == nil {
		turns = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// SendMessage takes a user message and answers with the assistant turn.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.svc.HandleUserMessage(r.Context(), chi.URLParam(r, "sessionID"), payload.Message)
	if err != nil {
		if IsModelServiceError(err) && res != nil {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":     err.Error(),
				"user_turn": res.UserTurn,
				"notices":   res.Notices,
			})
			return
		}
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ConfirmOperation(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ConfirmOperation(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "opID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ActivateReference(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Model string `json:"model"`
		ID    int64  `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	act, err := h.activator.Activate(r.Context(), payload.Model, payload.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.hub.Serve(w, r, id)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": report})
}

// Status reports process-level state. Collaborator reachability is /health.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	list, err := h.sessions.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"sessions_count": len(list),
	})
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInputRejected), errors.Is(err, session.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrOperationNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionBusy), errors.Is(err, session.ErrNotActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, entityref.ErrUnknownModel), errors.Is(err, entityref.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, actions.ErrNotExecutable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		observability.LoggerFromContext(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "processing error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
