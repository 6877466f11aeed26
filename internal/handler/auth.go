package handler

import (
	"database/sql"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mjkeeling/ember/internal/middleware"
	"github.com/mjkeeling/ember/internal/store"
	"github.com/mjkeeling/ember/web"
)

const sessionCookieMaxAge = 30 * 24 * 60 * 60

type AuthHandler struct {
	db              *sql.DB
	userStore       *store.UserStore
	accessCodeStore *store.AccessCodeStore
	sessionStore    *store.SessionStore
	templates       *template.Template
	logger          *slog.Logger
}

func NewAuthHandler(
	db *sql.DB,
	us *store.UserStore,
	acs *store.AccessCodeStore,
	ss *store.SessionStore,
	logger *slog.Logger,
) *AuthHandler {
	tmpl := template.Must(template.ParseFS(web.Templates, "templates/auth_*.html"))
	return &AuthHandler{
		db:              db,
		userStore:       us,
		accessCodeStore: acs,
		sessionStore:    ss,
		templates:       tmpl,
		logger:          logger,
	}
}

type loginPage struct {
	Error string
}

type registerPage struct {
	Error      string
	Username   string
	AccessCode string
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.templates.ExecuteTemplate(w, "auth_login.html", loginPage{})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	// One generic message for every failure mode so the form never
	// reveals whether a username exists.
	fail := func() {
		w.WriteHeader(http.StatusUnauthorized)
		h.templates.ExecuteTemplate(w, "auth_login.html", loginPage{
			Error: "Invalid username or password.",
		})
	}

	if username == "" || password == "" {
		fail()
		return
	}

	user, err := h.userStore.GetByUsername(username)
	if err != nil {
		h.logger.Error("login lookup", "error", err)
		fail()
		return
	}
	if user == nil {
		fail()
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		fail()
		return
	}

	sess, err := h.sessionStore.Create(user.ID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	setSessionCookie(w, r, sess.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.templates.ExecuteTemplate(w, "auth_register.html", registerPage{})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	code := strings.TrimSpace(r.FormValue("access_code"))

	renderError := func(status int, msg string) {
		w.WriteHeader(status)
		h.templates.ExecuteTemplate(w, "auth_register.html", registerPage{
			Error:      msg,
			Username:   username,
			AccessCode: code,
		})
	}

	if username == "" || password == "" || code == "" {
		renderError(http.StatusBadRequest, "Username, password and invite code are required.")
		return
	}

	existing, err := h.userStore.GetByUsername(username)
	if err != nil {
		h.logger.Error("register lookup", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		renderError(http.StatusBadRequest, "That username is taken.")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("hash password", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	// Claim the invite code and create the user in one transaction so a
	// failed registration never burns a code.
	tx, err := h.db.Begin()
	if err != nil {
		h.logger.Error("begin register tx", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	if err := h.accessCodeStore.ClaimTx(tx, code, username); err != nil {
		if errors.Is(err, store.ErrCodeUnavailable) {
			renderError(http.StatusBadRequest, "That invite code is invalid or has already been used.")
			return
		}
		h.logger.Error("claim access code", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	userID, err := h.userStore.CreateTx(tx, username, string(hash))
	if err != nil {
		h.logger.Error("create user", "error", err)
		renderError(http.StatusBadRequest, "That username is taken.")
		return
	}

	if err := tx.Commit(); err != nil {
		h.logger.Error("commit register tx", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	sess, err := h.sessionStore.Create(userID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		// Account exists; send them to the login form.
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	setSessionCookie(w, r, sess.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if sess, err := h.sessionStore.GetByToken(cookie.Value); err == nil && sess != nil {
			h.sessionStore.Delete(sess.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}
