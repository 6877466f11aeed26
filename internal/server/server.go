package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/mjkeeling/ember/internal/backup"
	"github.com/mjkeeling/ember/internal/handler"
	"github.com/mjkeeling/ember/internal/middleware"
	"github.com/mjkeeling/ember/internal/store"
	ws "github.com/mjkeeling/ember/internal/websocket"
	"github.com/mjkeeling/ember/web"
)

type Server struct {
	db              *sql.DB
	hub             *ws.Hub
	authH           *handler.AuthHandler
	habitH          *handler.HabitHandler
	templateHandler *handler.TemplateHandler
	sessionStore    *store.SessionStore
	userStore       *store.UserStore
	accessCodeStore *store.AccessCodeStore
	rateLimiter     *middleware.RateLimiter
	backupManager   *backup.Manager
	logger          *slog.Logger
}

// New wires the stores, handlers and hub together. now is injectable so
// handler tests can pin the clock; pass nil for the wall clock.
func New(db *sql.DB, backupCfg backup.Config, now func() time.Time, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	accessCodeStore := store.NewAccessCodeStore(db)
	sessionStore := store.NewSessionStore(db)
	habitStore := store.NewHabitStore(db)
	backupStore := store.NewBackupStore(db)

	backupMgr := backup.NewManager(backupCfg, db, backupStore, func(s backup.Status) {
		hub.Broadcast(ws.Message{
			Type:   "backup_status",
			Entity: "backup",
			Action: string(s.State),
		})
	}, logger.With("component", "backup"))

	return &Server{
		db:              db,
		hub:             hub,
		authH:           handler.NewAuthHandler(db, userStore, accessCodeStore, sessionStore, logger.With("component", "auth")),
		habitH:          handler.NewHabitHandler(habitStore, hub, logger.With("component", "habit"), now),
		templateHandler: handler.NewTemplateHandler(habitStore, hub, logger.With("component", "template"), now),
		sessionStore:    sessionStore,
		userStore:       userStore,
		accessCodeStore: accessCodeStore,
		rateLimiter:     middleware.NewRateLimiter(),
		backupManager:   backupMgr,
		logger:          logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// AccessCodeStore returns the access code store for invite seeding.
func (s *Server) AccessCodeStore() *store.AccessCodeStore {
	return s.accessCodeStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /login", s.authH.LoginPage)
	outerMux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /register", s.authH.RegisterPage)
	outerMux.HandleFunc("POST /register", s.rateLimitedHandler(s.authH.Register))
	outerMux.Handle("GET /static/", http.FileServerFS(web.Static))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /logout", s.authH.Logout)

	// Habit API routes
	mux.HandleFunc("GET /api/habits", s.habitH.List)
	mux.HandleFunc("POST /api/habits", s.habitH.Create)
	mux.HandleFunc("DELETE /api/habits/{name}", s.habitH.Delete)
	mux.HandleFunc("POST /api/habits/{name}/complete", s.habitH.Complete)
	mux.HandleFunc("DELETE /api/habits/{name}/complete", s.habitH.Uncomplete)
	mux.HandleFunc("GET /api/habits/{name}/summary", s.habitH.Summary)

	// Dashboard page
	mux.HandleFunc("GET /", s.templateHandler.Dashboard)

	// Habit board partials (HTMX)
	mux.HandleFunc("GET /partials/habits", s.templateHandler.HabitBoard)
	mux.HandleFunc("POST /partials/habits", s.templateHandler.HabitCreate)
	mux.HandleFunc("DELETE /partials/habits/{name}", s.templateHandler.HabitDelete)
	mux.HandleFunc("POST /partials/habits/{name}/toggle", s.templateHandler.HabitToggle)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.Handle(s.hub, s.logger.With("component", "websocket")))
}
