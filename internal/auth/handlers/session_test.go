package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"universe-server/internal/auth"
	"universe-server/internal/shared/cookies"
)

var testSecret = strings.Repeat("c", auth.MinSecretLength)

type claimsKey struct{}

func claimsFrom(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsKey{}).(*auth.Claims)
	return c
}

func TestLoginSetsCookie(t *testing.T) {
	h := NewSessionHandler(testSecret, cookies.Policy{MaxAge: time.Hour, SameSite: http.SameSiteLaxMode})
	token, _ := auth.GenerateToken(testSecret, "ops", auth.RoleAdmin, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	set := rec.Result().Cookies()
	if len(set) != 1 || set[0].Name != cookies.AuthCookieName || set[0].Value != token {
		t.Fatalf("cookies = %+v", set)
	}

	var resp SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Subject != "ops" || resp.Role != auth.RoleAdmin || resp.ExpiresAt.IsZero() {
		t.Errorf("resp = %+v", resp)
	}
}

func TestLoginRejects(t *testing.T) {
	h := NewSessionHandler(testSecret, cookies.Policy{})

	for _, header := range []string{"", "Bearer ", "Bearer junk", "Basic abc"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/session", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.Login(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d", header, rec.Code)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Errorf("header %q: cookie set", header)
		}
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	h := NewSessionHandler(testSecret, cookies.Policy{})

	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if c := rec.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("cookies = %+v", c)
	}
}

func TestMe(t *testing.T) {
	h := NewSessionHandler(testSecret, cookies.Policy{})
	me := h.Me(claimsFrom)

	rec := httptest.NewRecorder()
	me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(context.WithValue(req.Context(), claimsKey{}, &auth.Claims{Role: auth.RoleViewer}))
	rec = httptest.NewRecorder()
	me(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"role":"viewer"`) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}
