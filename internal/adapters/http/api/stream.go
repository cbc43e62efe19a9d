package api

import "net/http"

// StreamHandler upgrades GET /sessions/{id}/stream to a WebSocket.
type StreamHandler struct {
	sessions SessionDependencies
	stream   Streamer
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(sessions SessionDependencies, stream Streamer) *StreamHandler {
	return &StreamHandler{sessions: sessions, stream: stream}
}

// HandleStream checks the session exists before upgrading.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	if h.stream == nil {
		writeServiceError(w, op, ErrUnavailable)
		return
	}
	sessionID := r.PathValue("id")
	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		writeServiceError(w, op, err)
		return
	}
	h.stream.Serve(w, r, sessionID)
}
