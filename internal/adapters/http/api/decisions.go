package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/anchordrift/internal/domain/model"
)

// DecisionDependencies defines the decision history operations.
type DecisionDependencies interface {
	Decisions(ctx context.Context, sessionID string, limit int) ([]model.Decision, error)
}

// DecisionsHandler handles decision history requests.
type DecisionsHandler struct {
	deps DecisionDependencies
}

// NewDecisionsHandler creates a new decisions handler.
func NewDecisionsHandler(deps DecisionDependencies) *DecisionsHandler {
	return &DecisionsHandler{deps: deps}
}

// HandleList handles GET /sessions/{id}/decisions?limit=N. Without a limit
// the server default applies; larger limits are clamped.
func (h *DecisionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_decisions"
	sessionID := r.PathValue("id")

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	decisions, err := h.deps.Decisions(r.Context(), sessionID, limit)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if decisions == nil {
		decisions = []model.Decision{}
	}
	writeJSON(w, http.StatusOK, decisionsList{SessionID: sessionID, Decisions: decisions})
}
