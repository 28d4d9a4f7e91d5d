package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserID(r.Context())
		w.Write([]byte(id))
	})
}

func TestMiddlewareIssuesToken(t *testing.T) {
	rec := httptest.NewRecorder()
	Middleware(echoUser()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != CookieName || !c.HttpOnly || c.Path != "/" {
		t.Errorf("cookie = %+v, want HttpOnly %q on /", c, CookieName)
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		t.Errorf("token %q is not a UUID: %v", c.Value, err)
	}
	if got := rec.Body.String(); got != c.Value {
		t.Errorf("user id = %q, want token %q", got, c.Value)
	}
}

func TestMiddlewareKeepsExistingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "existing-user"})
	rec := httptest.NewRecorder()
	Middleware(echoUser()).ServeHTTP(rec, req)

	if n := len(rec.Result().Cookies()); n != 0 {
		t.Errorf("cookies set = %d, want 0 for a known user", n)
	}
	if got := rec.Body.String(); got != "existing-user" {
		t.Errorf("user id = %q, want existing-user", got)
	}
}

func TestNewTokensDiffer(t *testing.T) {
	if NewToken() == NewToken() {
		t.Error("NewToken returned the same token twice")
	}
}

func TestUserIDMissing(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Error("UserID() ok = true on empty context")
	}
}
