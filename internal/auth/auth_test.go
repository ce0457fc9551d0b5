package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenFromRequest_CookieWinsOverHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie-token"})
	r.Header.Set("Authorization", "Bearer header-token")

	if got := TokenFromRequest(r); got != "cookie-token" {
		t.Fatalf("token = %q", got)
	}
}

func TestTokenFromRequest_BearerFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer header-token")

	if got := TokenFromRequest(r); got != "header-token" {
		t.Fatalf("token = %q", got)
	}
}

func TestTokenFromRequest_Empty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("token = %q, want empty", got)
	}
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("non-bearer scheme must not yield a token, got %q", got)
	}
}

func TestSessionCookieRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", time.Hour, true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %v", cookies)
	}
	c := cookies[0]
	if c.Name != CookieName || c.Value != "tok" {
		t.Fatalf("cookie = %+v", c)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookie attributes = %+v", c)
	}
	if c.MaxAge != 3600 {
		t.Fatalf("max-age = %d", c.MaxAge)
	}

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, true)
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("clear cookie = %v", cleared)
	}
}

func TestRequireToken(t *testing.T) {
	var seen string
	h := RequireToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TokenFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: "tok"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != "tok" {
		t.Fatalf("context token = %q", seen)
	}
}
