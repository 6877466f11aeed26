package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mjkeeling/ember/internal/auth"
	"github.com/mjkeeling/ember/internal/period"
	"github.com/mjkeeling/ember/internal/store"
	"github.com/mjkeeling/ember/internal/websocket"
	"github.com/mjkeeling/ember/web"
)

// TemplateHandler serves the dashboard page and the HTMX partials that keep
// the habit board live without a page reload.
type TemplateHandler struct {
	habitStore *store.HabitStore
	hub        *websocket.Hub
	templates  *template.Template
	logger     *slog.Logger
	now        func() time.Time
}

func NewTemplateHandler(hs *store.HabitStore, hub *websocket.Hub, logger *slog.Logger, now func() time.Time) *TemplateHandler {
	if now == nil {
		now = time.Now
	}
	tmpl := template.Must(template.ParseFS(web.Templates, "templates/*.html"))
	return &TemplateHandler{
		habitStore: hs,
		hub:        hub,
		templates:  tmpl,
		logger:     logger,
		now:        now,
	}
}

func (h *TemplateHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type habitView struct {
	Name    string
	Cadence period.Cadence
	Streak  int
	DoneNow bool
	Window  []period.Entry
}

type boardView struct {
	Habits      []habitView
	DoneCount   int
	TotalCount  int
	ProgressPct int
	Error       string
}

type dashboardView struct {
	boardView
	Username  string
	TodayLong string
}

// board assembles the habit table for one user: streaks, current-period
// status and the windowed history strip, all derived from a single
// completions query.
func (h *TemplateHandler) board(username string) (boardView, error) {
	habits, err := h.habitStore.List(username)
	if err != nil {
		return boardView{}, err
	}

	keysByHabit, err := h.habitStore.CompletedKeysForUser(username)
	if err != nil {
		return boardView{}, err
	}

	today := h.now()
	view := boardView{TotalCount: len(habits)}
	for _, habit := range habits {
		done := keysByHabit[habit.Name]
		key := period.Key(today, habit.Cadence)
		_, doneNow := done[key]
		if doneNow {
			view.DoneCount++
		}
		view.Habits = append(view.Habits, habitView{
			Name:    habit.Name,
			Cadence: habit.Cadence,
			Streak:  period.CurrentStreak(done, habit.Cadence, today),
			DoneNow: doneNow,
			Window:  period.WindowSummary(done, habit.Cadence, today, windowSize(habit.Cadence)),
		})
	}
	if view.TotalCount > 0 {
		view.ProgressPct = view.DoneCount * 100 / view.TotalCount
	}
	return view, nil
}

func (h *TemplateHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	username := auth.Username(r.Context())

	board, err := h.board(username)
	if err != nil {
		h.logger.Error("load dashboard", "error", err)
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}

	h.render(w, "dashboard.html", dashboardView{
		boardView: board,
		Username:  username,
		TodayLong: h.now().Format("Monday, January 2, 2006"),
	})
}

func (h *TemplateHandler) HabitBoard(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())

	board, err := h.board(username)
	if err != nil {
		h.logger.Error("load habit board", "error", err)
		http.Error(w, "failed to load habits", http.StatusInternalServerError)
		return
	}

	h.renderPartial(w, "habit-board", board)
}

// renderBoard re-renders the board partial, optionally with a form error
// above the table.
func (h *TemplateHandler) renderBoard(w http.ResponseWriter, username, errMsg string) {
	board, err := h.board(username)
	if err != nil {
		h.logger.Error("load habit board", "error", err)
		http.Error(w, "failed to load habits", http.StatusInternalServerError)
		return
	}
	board.Error = errMsg
	h.renderPartial(w, "habit-board", board)
}

func (h *TemplateHandler) HabitCreate(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		h.renderBoard(w, username, "Habit name is required.")
		return
	}

	cadence, err := period.ParseCadence(r.FormValue("cadence"))
	if err != nil {
		h.renderBoard(w, username, "Cadence must be daily, weekly or monthly.")
		return
	}

	existing, err := h.habitStore.GetByName(name, username)
	if err != nil {
		h.logger.Error("check habit", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		h.renderBoard(w, username, "You already track a habit with that name.")
		return
	}

	if _, err := h.habitStore.Create(name, username, cadence); err != nil {
		h.logger.Error("create habit", "error", err)
		http.Error(w, "failed to create habit", http.StatusInternalServerError)
		return
	}

	h.broadcast(websocket.NewMessage("habit", "created"))

	h.renderBoard(w, username, "")
}

func (h *TemplateHandler) HabitDelete(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())
	name := r.PathValue("name")

	if err := h.habitStore.Delete(name, username); err != nil {
		h.logger.Error("delete habit", "error", err)
		http.Error(w, "failed to delete habit", http.StatusInternalServerError)
		return
	}

	h.broadcast(websocket.NewMessage("habit", "deleted"))

	h.renderBoard(w, username, "")
}

// HabitToggle flips the habit's completion for the current period, whichever
// way it currently stands.
func (h *TemplateHandler) HabitToggle(w http.ResponseWriter, r *http.Request) {
	username := auth.Username(r.Context())
	name := r.PathValue("name")

	habit, err := h.habitStore.GetByName(name, username)
	if err != nil {
		h.logger.Error("get habit", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if habit == nil {
		http.Error(w, "habit not found", http.StatusNotFound)
		return
	}

	done, err := h.habitStore.CompletedKeys(name, username)
	if err != nil {
		h.logger.Error("completion keys", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	key := period.Key(h.now(), habit.Cadence)
	if _, ok := done[key]; ok {
		err = h.habitStore.UnmarkComplete(key, name, username)
	} else {
		err = h.habitStore.MarkComplete(key, name, username)
	}
	if err != nil {
		h.logger.Error("toggle completion", "error", err)
		http.Error(w, "failed to update completion", http.StatusInternalServerError)
		return
	}

	h.broadcast(websocket.NewMessage("completion", "toggled"))

	h.renderBoard(w, username, "")
}

func (h *TemplateHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *TemplateHandler) renderPartial(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render partial", "template", name, "error", err)
		fmt.Fprint(w, `<p class="error">Template error</p>`)
	}
}
