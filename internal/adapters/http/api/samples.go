package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/anchordrift/internal/domain/location"
	"github.com/okian/anchordrift/internal/domain/types"
)

// maxSampleBody bounds one request body, enough for a few thousand samples.
const maxSampleBody = 1 << 20

// SampleDependencies defines the ingest operations.
type SampleDependencies interface {
	SubmitAR(ctx context.Context, sessionID, eventID string, p location.ARPose) (bool, error)
	SubmitIndoor(ctx context.Context, sessionID, eventID string, f location.IndoorFix) (bool, error)
	Reset(ctx context.Context, sessionID string) error
	Clear(ctx context.Context, sessionID string) error
}

// SamplesHandler handles sample and reset requests.
type SamplesHandler struct {
	deps SampleDependencies
}

// NewSamplesHandler creates a new samples handler.
func NewSamplesHandler(deps SampleDependencies) *SamplesHandler {
	return &SamplesHandler{deps: deps}
}

// HandlePostARPoses handles POST /sessions/{id}/ar-poses. The body is one
// pose or a JSON array of poses.
func (h *SamplesHandler) HandlePostARPoses(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_ar_poses"
	sessionID := r.PathValue("id")

	reqs, batch, err := decodeSamples[types.ARPoseRequest](r)
	if err == nil {
		for i := range reqs {
			if verr := reqs[i].Validate(); verr != nil {
				err = fmt.Errorf("sample %d: %w", i, verr)
				break
			}
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	h.submit(w, op, batch, len(reqs), func(i int) (bool, error) {
		return h.deps.SubmitAR(r.Context(), sessionID, reqs[i].ID, reqs[i].ARPose)
	})
}

// HandlePostIndoorFixes handles POST /sessions/{id}/indoor-fixes. The body
// is one fix or a JSON array of fixes.
func (h *SamplesHandler) HandlePostIndoorFixes(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_indoor_fixes"
	sessionID := r.PathValue("id")

	reqs, batch, err := decodeSamples[types.IndoorFixRequest](r)
	if err == nil {
		for i := range reqs {
			if verr := reqs[i].Validate(); verr != nil {
				err = fmt.Errorf("sample %d: %w", i, verr)
				break
			}
		}
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	h.submit(w, op, batch, len(reqs), func(i int) (bool, error) {
		return h.deps.SubmitIndoor(r.Context(), sessionID, reqs[i].ID, reqs[i].IndoorFix)
	})
}

// submit enqueues samples in order and stops at the first failure; the
// samples before it stay accepted.
func (h *SamplesHandler) submit(w http.ResponseWriter, op string, batch bool, n int, one func(i int) (bool, error)) {
	ack := types.BatchAck{Status: types.StatusAccepted}
	var lastDuplicate bool
	for i := range n {
		dup, err := one(i)
		if err != nil {
			if batch && ack.Accepted+ack.Duplicates > 0 {
				err = fmt.Errorf("after %d samples: %w", ack.Accepted+ack.Duplicates, err)
			}
			writeServiceError(w, op, err)
			return
		}
		if dup {
			ack.Duplicates++
		} else {
			ack.Accepted++
		}
		lastDuplicate = dup
	}

	if batch {
		writeJSON(w, http.StatusAccepted, ack)
		return
	}
	if lastDuplicate {
		writeJSON(w, http.StatusOK, types.Ack{Status: types.StatusDuplicate, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, types.Ack{Status: types.StatusAccepted})
}

// HandleReset handles POST /sessions/{id}/reset.
func (h *SamplesHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Reset(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "api.reset", err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.Ack{Status: types.StatusAccepted})
}

// HandleClear handles POST /sessions/{id}/clear.
func (h *SamplesHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Clear(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "api.clear", err)
		return
	}
	writeJSON(w, http.StatusAccepted, types.Ack{Status: types.StatusAccepted})
}

// decodeSamples reads either a single object or an array of T.
func decodeSamples[T any](r *http.Request) ([]T, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSampleBody+1))
	if err != nil {
		return nil, false, err
	}
	if len(body) > maxSampleBody {
		return nil, false, fmt.Errorf("body larger than %d bytes", maxSampleBody)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, fmt.Errorf("empty body")
	}

	if body[0] == '[' {
		var out []T
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, true, err
		}
		if len(out) == 0 {
			return nil, true, fmt.Errorf("empty batch")
		}
		return out, true, nil
	}

	var one T
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, false, err
	}
	return []T{one}, false, nil
}
