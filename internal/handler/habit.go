package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mjkeeling/ember/internal/auth"
	"github.com/mjkeeling/ember/internal/model"
	"github.com/mjkeeling/ember/internal/period"
	"github.com/mjkeeling/ember/internal/store"
	"github.com/mjkeeling/ember/internal/websocket"
)

// windowSize is how many periods the summary strip shows per cadence.
func windowSize(c period.Cadence) int {
	switch c {
	case period.Weekly:
		return 4
	case period.Monthly:
		return 6
	}
	return 7
}

type HabitHandler struct {
	habitStore *store.HabitStore
	hub        *websocket.Hub
	logger     *slog.Logger
	now        func() time.Time
}

func NewHabitHandler(hs *store.HabitStore, hub *websocket.Hub, logger *slog.Logger, now func() time.Time) *HabitHandler {
	if now == nil {
		now = time.Now
	}
	return &HabitHandler{habitStore: hs, hub: hub, logger: logger, now: now}
}

func (h *HabitHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type habitRequest struct {
	Name    string `json:"name"`
	Cadence string `json:"cadence"`
}

func (h *HabitHandler) List(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())

	habits, err := h.habitStore.List(username)
	if err != nil {
		h.logger.Error("list habits", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list habits"})
		return
	}
	if habits == nil {
		habits = []model.Habit{}
	}
	writeJSON(w, http.StatusOK, habits)
}

func (h *HabitHandler) Create(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())

	var req habitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	cadence, err := period.ParseCadence(req.Cadence)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cadence must be daily, weekly or monthly"})
		return
	}

	existing, err := h.habitStore.GetByName(req.Name, username)
	if err != nil {
		h.logger.Error("check habit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check habit"})
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a habit with that name already exists"})
		return
	}

	habit, err := h.habitStore.Create(req.Name, username, cadence)
	if err != nil {
		h.logger.Error("create habit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create habit"})
		return
	}

	h.broadcast(websocket.NewMessage("habit", "created"))

	writeJSON(w, http.StatusCreated, habit)
}

func (h *HabitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())
	name := r.PathValue("name")

	existing, err := h.habitStore.GetByName(name, username)
	if err != nil {
		h.logger.Error("get habit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get habit"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "habit not found"})
		return
	}

	if err := h.habitStore.Delete(name, username); err != nil {
		h.logger.Error("delete habit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete habit"})
		return
	}

	h.broadcast(websocket.NewMessage("habit", "deleted"))

	w.WriteHeader(http.StatusNoContent)
}

// Complete marks the habit done for the current period. The period key is
// always derived server-side from the habit's cadence.
func (h *HabitHandler) Complete(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())
	name := r.PathValue("name")

	habit, err := h.habitStore.GetByName(name, username)
	if err != nil {
		h.logger.Error("get habit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get habit"})
		return
	}
	if habit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "habit not found"})
		return
	}

	key := period.Key(h.now(), habit.Cadence)
	if err := h.habitStore.MarkComplete(key, name, username); err != nil {
		h.logger.Error("mark complete", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to mark complete"})
		return
	}

	h.broadcast(websocket.NewMessage("completion", "marked"))

	writeJSON(w, http.StatusCreated, map[string]string{"period_key": key})
}

func (h *HabitHandler) Uncomplete(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())
	name := r.PathValue("name")

	habit, err := h.habitStore.GetByName(name, username)
	if err != nil {
		h.logger.Error("get habit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get habit"})
		return
	}
	if habit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "habit not found"})
		return
	}

	key := period.Key(h.now(), habit.Cadence)
	if err := h.habitStore.UnmarkComplete(key, name, username); err != nil {
		h.logger.Error("unmark complete", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to unmark complete"})
		return
	}

	h.broadcast(websocket.NewMessage("completion", "unmarked"))

	w.WriteHeader(http.StatusNoContent)
}

type summaryEntry struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

type summaryResponse struct {
	Name         string         `json:"name"`
	Cadence      period.Cadence `json:"cadence"`
	Streak       int            `json:"streak"`
	CurrentKey   string         `json:"current_key"`
	CompletedNow bool           `json:"completed_now"`
	Window       []summaryEntry `json:"window"`
	Rate         float64        `json:"rate"`
}

func (h *HabitHandler) Summary(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())
	name := r.PathValue("name")

	habit, err := h.habitStore.GetByName(name, username)
	if err != nil {
		h.logger.Error("get habit", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get habit"})
		return
	}
	if habit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "habit not found"})
		return
	}

	done, err := h.habitStore.CompletedKeys(name, username)
	if err != nil {
		h.logger.Error("completion keys", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load completions"})
		return
	}

	today := h.now()
	key := period.Key(today, habit.Cadence)
	window := period.WindowSummary(done, habit.Cadence, today, windowSize(habit.Cadence))

	resp := summaryResponse{
		Name:       habit.Name,
		Cadence:    habit.Cadence,
		Streak:     period.CurrentStreak(done, habit.Cadence, today),
		CurrentKey: key,
		Window:     make([]summaryEntry, len(window)),
		Rate:       period.Rate(window),
	}
	_, resp.CompletedNow = done[key]
	for i, e := range window {
		resp.Window[i] = summaryEntry{Key: e.Key, Label: e.Label, Completed: e.Completed}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
