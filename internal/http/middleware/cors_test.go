package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSTagsListedOrigin(t *testing.T) {
	called := false
	mw := CORS([]string{"https://book.example.com/"})
	req := httptest.NewRequest(http.MethodPost, "/v1/appointments", nil)
	req.Header.Set("Origin", "https://book.example.com")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://book.example.com" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != corsExposedHeaders {
		t.Fatalf("expected exposed headers %q, got %q", corsExposedHeaders, got)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "" {
		t.Fatalf("allow methods belongs on preflight only")
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	mw := CORS([]string{"https://book.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/v1/appointments", nil)
	req.Header.Set("Origin", "https://unknown.example")
	rec := httptest.NewRecorder()

	mw(okHandler(nil)).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Fatalf("expected Vary: Origin on denied responses")
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	mw := CORS([]string{"*"})
	req := httptest.NewRequest(http.MethodOptions, "/v1/appointments", nil)
	req.Header.Set("Origin", "https://random.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()

	mw(okHandler(&called)).ServeHTTP(rec, req)

	if called {
		t.Fatalf("expected handler to not be called on preflight")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != corsAllowedMethods {
		t.Fatalf("expected methods %q, got %q", corsAllowedMethods, got)
	}
}

func TestOriginAllowlist(t *testing.T) {
	if !NewOriginAllowlist(nil).Empty() {
		t.Fatal("expected empty allowlist")
	}
	list := NewOriginAllowlist([]string{" https://a.example ", ""})
	if list.Empty() {
		t.Fatal("expected configured allowlist")
	}
	if !list.Allows("https://a.example/") {
		t.Fatal("expected trailing slash to be ignored")
	}
	if list.Allows("https://b.example") {
		t.Fatal("expected unlisted origin to be denied")
	}
	if !NewOriginAllowlist([]string{"*"}).Allows("https://b.example") {
		t.Fatal("expected wildcard to allow any origin")
	}
}
