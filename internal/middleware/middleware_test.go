package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

func TestSession_IssuesCookie(t *testing.T) {
	var created []string
	var seen string
	h := Session(func(id string) { created = append(created, id) })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/viewer", nil))

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookie {
		t.Fatalf("cookies=%v", cookies)
	}
	if _, err := uuid.Parse(seen); err != nil || seen != cookies[0].Value {
		t.Fatalf("session=%q cookie=%q", seen, cookies[0].Value)
	}
	if len(created) != 1 || created[0] != seen {
		t.Fatalf("created=%v", created)
	}
}

func TestSession_ReusesValidCookie(t *testing.T) {
	id := uuid.NewString()
	var seen string
	h := Session(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != id {
		t.Fatalf("seen=%q want %q", seen, id)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("cookie re-issued")
	}
}

func TestSession_ReplacesMalformedCookie(t *testing.T) {
	var seen string
	h := Session(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "../../etc"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("seen=%q", seen)
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	h := Recover(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rr.Code)
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("log=%s", buf.String())
	}
}

func TestLogging_WithChi(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Logging(log))
	r.Get("/x", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	out := buf.String()
	if !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"path":"/x"`) {
		t.Fatalf("log=%s", out)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id not echoed")
	}
}
