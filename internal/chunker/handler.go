package chunker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Handler exposes the chunking service over HTTP using go-chi, plus the
// websocket progress endpoint.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler for the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The UI is served from arbitrary hosts in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes registers all endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/files", h.ListFiles)
	r.Post("/chunk/{fileID}", h.StartChunking)
	r.Get("/segments", h.ListAllSegments)
	r.Get("/segments/{fileID}", h.ListSegments)
	r.Delete("/files/{fileID}", h.DeleteFile)
	r.Delete("/segments/{segmentID}", h.DeleteSegment)
	r.Get("/download/segment/{segmentID}", h.DownloadSegment)
	r.Get("/download/file/{fileID}/zip", h.DownloadArchive)
	r.Get("/database/stats", h.Stats)
	r.Post("/database/cleanup", h.Cleanup)
	r.Get("/ws", h.ProgressSocket)
}

// Upload handles POST /upload: a multipart body with one audio file field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, validationf("multipart field %q is required", "file"))
		return
	}
	defer file.Close()

	created, err := h.svc.Upload(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		h.log.Error("upload failed", "original_name", header.Filename, "error", err.Error())
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// ListFiles handles GET /files.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.ListFiles())
}

// StartChunking handles POST /chunk/{fileID}. The response is sent as
// soon as the run is accepted; segmentation proceeds asynchronously.
func (h *Handler) StartChunking(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.pathID(w, r, "fileID")
	if !ok {
		return
	}

	var req ChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, validationf("invalid request body"))
		return
	}
	req.FileID = fileID

	if err := h.svc.StartChunking(req); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "fileId": fileID})
}

// ListSegments handles GET /segments/{fileID}.
func (h *Handler) ListSegments(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.pathID(w, r, "fileID")
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.svc.ListSegmentsByFile(fileID))
}

// ListAllSegments handles GET /segments.
func (h *Handler) ListAllSegments(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.ListAllSegments())
}

// DeleteFile handles DELETE /files/{fileID}.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.pathID(w, r, "fileID")
	if !ok {
		return
	}
	if err := h.svc.DeleteFile(fileID); err != nil {
		h.log.Error("delete file failed", "file_id", fileID, "error", err.Error())
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSegment handles DELETE /segments/{segmentID}.
func (h *Handler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	segID, ok := h.pathID(w, r, "segmentID")
	if !ok {
		return
	}
	if err := h.svc.DeleteSegment(segID); err != nil {
		h.log.Error("delete segment failed", "segment_id", segID, "error", err.Error())
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadSegment handles GET /download/segment/{segmentID}: streams one
// segment file.
func (h *Handler) DownloadSegment(w http.ResponseWriter, r *http.Request) {
	segID, ok := h.pathID(w, r, "segmentID")
	if !ok {
		return
	}

	seg, f, err := h.svc.OpenSegment(segID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", seg.Filename))
	http.ServeContent(w, r, seg.Filename, seg.CreatedAt, f)
}

// DownloadArchive handles GET /download/file/{fileID}/zip: streams a zip
// of every segment for a source file.
func (h *Handler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	fileID, ok := h.pathID(w, r, "fileID")
	if !ok {
		return
	}

	// Headers must go out before the archive is streamed, so a mid-stream
	// failure can only truncate the body, not change the status.
	if _, found := h.svc.store.GetFile(fileID); !found {
		h.writeError(w, fmt.Errorf("file %d: %w", fileID, ErrNotFound))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("segments-%d.zip", fileID)))
	if err := h.svc.WriteArchive(fileID, w); err != nil {
		h.log.Error("archive stream failed", "file_id", fileID, "error", err.Error())
	}
}

// Stats handles GET /database/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Cleanup handles POST /database/cleanup: reconciles the store with the
// filesystem and reports what was removed.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CleanupOrphans()
	if err != nil {
		h.log.Error("cleanup failed", "error", err.Error())
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ProgressSocket handles GET /ws: upgrades the connection and pushes
// ProgressEvents for the subscribed file id (?fileId=N; 0 or absent
// subscribes to all runs). Inbound messages carry no protocol and are
// discarded.
func (h *Handler) ProgressSocket(w http.ResponseWriter, r *http.Request) {
	fileID, _ := strconv.ParseInt(r.URL.Query().Get("fileId"), 10, 64)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "error", err.Error())
		return
	}

	events, cancel := h.svc.Hub().Subscribe(fileID)
	h.log.Debug("progress observer attached", "file_id", fileID)

	// Drain inbound frames; a read error means the peer went away.
	go func() {
		defer cancel()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			break
		}
	}
	cancel()
	conn.Close()
	h.log.Debug("progress observer detached", "file_id", fileID)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, validationf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("response encode failed", "error", err.Error())
	}
}

// writeError maps the error taxonomy to status codes. Validation and
// probe messages are surfaced; anything else is reported as an internal
// error without process details.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		h.writeErrorBody(w, http.StatusBadRequest, "validation_error", ve.Message)
	case errors.Is(err, ErrNotFound):
		h.writeErrorBody(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrRunInProgress):
		h.writeErrorBody(w, http.StatusConflict, "run_in_progress", err.Error())
	case errors.Is(err, ErrProbeTimeout), errors.Is(err, ErrProbeFailure), errors.Is(err, ErrProbeParse):
		h.writeErrorBody(w, http.StatusInternalServerError, "probe_error", err.Error())
	default:
		h.writeErrorBody(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (h *Handler) writeErrorBody(w http.ResponseWriter, status int, category, message string) {
	h.writeJSON(w, status, map[string]string{"error": category, "message": message})
}
