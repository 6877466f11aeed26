package handler

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/mjkeeling/ember/internal/database"
	"github.com/mjkeeling/ember/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupAuthHandler(t *testing.T) (*AuthHandler, *store.UserStore, *store.AccessCodeStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	us := store.NewUserStore(db)
	acs := store.NewAccessCodeStore(db)
	ss := store.NewSessionStore(db)
	return NewAuthHandler(db, us, acs, ss, testLogger()), us, acs
}

func postForm(t *testing.T, h http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRegisterWithValidCode(t *testing.T) {
	h, us, acs := setupAuthHandler(t)

	ac, err := acs.Create()
	if err != nil {
		t.Fatalf("create access code: %v", err)
	}

	rec := postForm(t, h.Register, "/register", url.Values{
		"username":    {"alice"},
		"password":    {"hunter22"},
		"access_code": {ac.Code},
	})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}

	user, err := us.GetByUsername("alice")
	if err != nil || user == nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.PasswordHash == "hunter22" {
		t.Error("password stored in plaintext")
	}

	claimed, err := acs.GetByCode(ac.Code)
	if err != nil {
		t.Fatalf("get code: %v", err)
	}
	if !claimed.Used || claimed.UsedBy == nil || *claimed.UsedBy != "alice" {
		t.Errorf("code not claimed by alice: %+v", claimed)
	}

	// Session cookie should be set.
	cookies := rec.Result().Cookies()
	found := false
	for _, c := range cookies {
		if c.Name == "ember_session" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected session cookie after registration")
	}
}

func TestRegisterWithUsedCode(t *testing.T) {
	h, us, acs := setupAuthHandler(t)

	ac, err := acs.Create()
	if err != nil {
		t.Fatalf("create access code: %v", err)
	}
	if err := acs.Claim(ac.Code, "bob"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	rec := postForm(t, h.Register, "/register", url.Values{
		"username":    {"alice"},
		"password":    {"hunter22"},
		"access_code": {ac.Code},
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	user, err := us.GetByUsername("alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user != nil {
		t.Error("user created despite used code")
	}
}

func TestRegisterWithUnknownCode(t *testing.T) {
	h, us, _ := setupAuthHandler(t)

	rec := postForm(t, h.Register, "/register", url.Values{
		"username":    {"alice"},
		"password":    {"hunter22"},
		"access_code": {"nope"},
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if user, _ := us.GetByUsername("alice"); user != nil {
		t.Error("user created despite unknown code")
	}
}

func TestRegisterDuplicateUsernameKeepsCode(t *testing.T) {
	h, _, acs := setupAuthHandler(t)

	first, err := acs.Create()
	if err != nil {
		t.Fatalf("create access code: %v", err)
	}
	rec := postForm(t, h.Register, "/register", url.Values{
		"username":    {"alice"},
		"password":    {"hunter22"},
		"access_code": {first.Code},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("first registration status = %d", rec.Code)
	}

	// Second registration with the same username must fail and must not
	// burn the fresh code.
	second, err := acs.Create()
	if err != nil {
		t.Fatalf("create access code: %v", err)
	}
	rec = postForm(t, h.Register, "/register", url.Values{
		"username":    {"alice"},
		"password":    {"hunter22"},
		"access_code": {second.Code},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate registration status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	fresh, err := acs.GetByCode(second.Code)
	if err != nil {
		t.Fatalf("get code: %v", err)
	}
	if fresh.Used {
		t.Error("failed registration burned the access code")
	}
}

func TestLoginSuccess(t *testing.T) {
	h, _, acs := setupAuthHandler(t)

	ac, _ := acs.Create()
	rec := postForm(t, h.Register, "/register", url.Values{
		"username":    {"alice"},
		"password":    {"hunter22"},
		"access_code": {ac.Code},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("register status = %d", rec.Code)
	}

	rec = postForm(t, h.Login, "/login", url.Values{
		"username": {"alice"},
		"password": {"hunter22"},
	})

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h, _, acs := setupAuthHandler(t)

	ac, _ := acs.Create()
	postForm(t, h.Register, "/register", url.Values{
		"username":    {"alice"},
		"password":    {"hunter22"},
		"access_code": {ac.Code},
	})

	rec := postForm(t, h.Login, "/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	h, _, _ := setupAuthHandler(t)

	rec := postForm(t, h.Login, "/login", url.Values{
		"username": {"nobody"},
		"password": {"whatever"},
	})

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	// Same body as a wrong password so the form can't be used to
	// enumerate usernames.
	if !strings.Contains(rec.Body.String(), "Invalid username or password.") {
		t.Error("expected the generic login failure message")
	}
}
