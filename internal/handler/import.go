package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dukerupert/timetable/internal/importer"
	"github.com/dukerupert/timetable/internal/review"
	"github.com/dukerupert/timetable/internal/websocket"
)

type ImportHandler struct {
	normalizer *importer.Normalizer
	gate       *review.Gate
	hub        *websocket.Hub
	maxBytes   int64
	logger     *slog.Logger
}

func NewImportHandler(n *importer.Normalizer, g *review.Gate, hub *websocket.Hub, maxBytes int64, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{normalizer: n, gate: g, hub: hub, maxBytes: maxBytes, logger: logger}
}

// Upload normalizes a multipart "file" and parks the candidates for review.
// The "format" field selects the normalizer; when it is empty the file
// extension is used.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	formatStr := strings.TrimSpace(r.FormValue("format"))
	if formatStr == "" {
		formatStr = filepath.Ext(header.Filename)
	}
	format, err := importer.ParseFormat(formatStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	res := h.normalizer.Normalize(file, format)
	p, err := h.gate.Propose(res, header.Filename)
	if errors.Is(err, review.ErrEmpty) {
		writeError(w, http.StatusUnprocessableEntity, review.ErrEmpty.Error())
		return
	}
	if err != nil {
		h.logger.Error("propose import", "source", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to stage import")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

func (h *ImportHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.gate.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, review.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ImportHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, review.Accept)
}

func (h *ImportHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, review.Reject)
}

func (h *ImportHandler) decide(w http.ResponseWriter, r *http.Request, d review.Decision) {
	id := r.PathValue("id")
	n, err := h.gate.Decide(r.Context(), id, d)
	if errors.Is(err, review.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("decide import", "id", id, "decision", d, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to apply import")
		return
	}

	action := "rejected"
	if d == review.Accept {
		action = "accepted"
	}
	broadcast(h.hub, websocket.NewMessage("import", action, 0, map[string]any{"imported": n}))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "decision": d, "imported": n})
}
