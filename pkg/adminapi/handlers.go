package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dlogio/dlog/internal/logger"
	"github.com/dlogio/dlog/pkg/catalog"
	"github.com/dlogio/dlog/pkg/position"
)

// Healthchecker is the minimal dependency /healthz needs: something that
// can report whether its backing store is reachable. catalog.Store
// satisfies this directly.
type Healthchecker interface {
	Healthcheck(ctx context.Context) error
}

const healthcheckTimeout = 5 * time.Second

type handlers struct {
	streams StreamManager
	health  Healthchecker
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSONOK(w, healthResponse{Status: "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthcheckTimeout)
	defer cancel()

	if err := h.health.Healthcheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Error: err.Error()})
		return
	}
	writeJSONOK(w, healthResponse{Status: "ok"})
}

func (h *handlers) listStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := h.streams.ListStreams(r.Context())
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	views := make([]StreamView, 0, len(streams))
	for _, s := range streams {
		views = append(views, newStreamView(s))
	}
	writeJSONOK(w, views)
}

func (h *handlers) getStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stream, err := h.streams.GetStream(r.Context(), name)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	writeJSONOK(w, newStreamView(stream))
}

func (h *handlers) listSegments(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	// Confirm the stream is registered before asking for its segments, so a
	// typo'd name reads as 404 rather than an empty list.
	if _, err := h.streams.GetStream(r.Context(), name); err != nil {
		writeStreamError(w, err)
		return
	}
	segments, err := h.streams.ListSegments(r.Context(), name)
	if err != nil {
		InternalServerError(w, err.Error())
		return
	}
	views := make([]SegmentView, 0, len(segments))
	for _, m := range segments {
		views = append(views, newSegmentView(m))
	}
	writeJSONOK(w, views)
}

type truncateRequest struct {
	SegmentSeq int64 `json:"segment_seq"`
	EntryID    int64 `json:"entry_id"`
	SlotID     int64 `json:"slot_id"`
}

func (h *handlers) truncate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req truncateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return
	}
	pos := position.Position{SegmentSeq: req.SegmentSeq, EntryID: req.EntryID, SlotID: req.SlotID}

	if err := h.streams.Truncate(r.Context(), name, pos); err != nil {
		writeStreamError(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "admin truncate applied", "stream", name, "position", pos.String())
	writeJSONOK(w, map[string]string{"status": "truncated", "position": pos.String()})
}

func (h *handlers) markEndOfStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.streams.MarkEndOfStream(r.Context(), name); err != nil {
		writeStreamError(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "admin marked end-of-stream", "stream", name)
	writeJSONOK(w, map[string]string{"status": "end-of-stream marked"})
}

func (h *handlers) forceRoll(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.streams.ForceRoll(r.Context(), name); err != nil {
		writeStreamError(w, err)
		return
	}
	logger.InfoCtx(r.Context(), "admin forced segment roll", "stream", name)
	writeJSONOK(w, map[string]string{"status": "roll forced"})
}

// writeStreamError maps the sentinel errors a StreamManager returns to the
// matching HTTP problem response.
func writeStreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrStreamNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, ErrStreamNotRunning):
		Conflict(w, err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}
