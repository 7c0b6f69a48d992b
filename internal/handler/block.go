package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/timetable/internal/model"
	"github.com/dukerupert/timetable/internal/store"
	"github.com/dukerupert/timetable/internal/websocket"
)

type BlockHandler struct {
	store  *store.BlockStore
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewBlockHandler(s *store.BlockStore, hub *websocket.Hub, logger *slog.Logger) *BlockHandler {
	return &BlockHandler{store: s, hub: hub, logger: logger}
}

type blockRequest struct {
	Subject   string `json:"subject"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location"`
	DayOfWeek int    `json:"day_of_week"`
	Notes     string `json:"notes"`
}

// validate normalizes the request in place and returns a user-facing message
// when it is not acceptable. Start after end is allowed.
func (req *blockRequest) validate() string {
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Subject == "" {
		return "subject is required"
	}

	start, ok := normalizeClock(req.StartTime)
	if !ok {
		return "start_time must be HH:MM"
	}
	end, ok := normalizeClock(req.EndTime)
	if !ok {
		return "end_time must be HH:MM"
	}
	req.StartTime, req.EndTime = start, end

	if !model.ValidDay(req.DayOfWeek) {
		return "day_of_week must be between 1 (Monday) and 7 (Sunday)"
	}
	req.Location = strings.TrimSpace(req.Location)
	req.Notes = strings.TrimSpace(req.Notes)
	return ""
}

// normalizeClock accepts H:MM or HH:MM and returns the zero-padded form so
// stored values compare lexically.
func normalizeClock(s string) (string, bool) {
	t, err := time.Parse(model.ClockLayout, strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return t.Format(model.ClockLayout), true
}

func (req blockRequest) block() model.Block {
	return model.Block{
		Subject:   req.Subject,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Location:  req.Location,
		DayOfWeek: req.DayOfWeek,
		Notes:     req.Notes,
	}
}

func (h *BlockHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		blocks []model.Block
		err    error
	)
	if dayStr := r.URL.Query().Get("day"); dayStr != "" {
		day, convErr := strconv.Atoi(dayStr)
		if convErr != nil || !model.ValidDay(day) {
			writeError(w, http.StatusBadRequest, "day must be between 1 and 7")
			return
		}
		blocks, err = h.store.ListByDay(day)
	} else {
		blocks, err = h.store.List()
	}
	if err != nil {
		h.logger.Error("list blocks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list blocks")
		return
	}
	if blocks == nil {
		blocks = []model.Block{}
	}
	writeJSON(w, http.StatusOK, blocks)
}

func (h *BlockHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	b, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("get block", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get block")
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BlockHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	b, err := h.store.Create(req.block())
	if err != nil {
		h.logger.Error("create block", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create block")
		return
	}

	broadcast(h.hub, websocket.NewMessage("block", "created", b.ID, nil))
	writeJSON(w, http.StatusCreated, b)
}

func (h *BlockHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	b := req.block()
	b.ID = id
	updated, err := h.store.Update(b)
	if err != nil {
		h.logger.Error("update block", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update block")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}

	broadcast(h.hub, websocket.NewMessage("block", "updated", id, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *BlockHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	existing, err := h.store.GetByID(id)
	if err != nil {
		h.logger.Error("get block", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get block")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "block not found")
		return
	}

	if err := h.store.Delete(id); err != nil {
		h.logger.Error("delete block", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete block")
		return
	}

	broadcast(h.hub, websocket.NewMessage("block", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll clears the whole timetable.
func (h *BlockHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.DeleteAll()
	if err != nil {
		h.logger.Error("delete all blocks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear blocks")
		return
	}

	broadcast(h.hub, websocket.NewMessage("block", "cleared", 0, map[string]any{"deleted": n}))
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
