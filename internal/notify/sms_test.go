package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func newTestTwilio(t *testing.T, handler http.HandlerFunc) *TwilioSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewTwilioSender(TwilioConfig{AccountSID: "AC123", AuthToken: "secret", FromNumber: "+15550000000"}, nil)
	s.baseURL = srv.URL
	s.httpClient = srv.Client()
	return s
}

func TestTwilioSenderPostsForm(t *testing.T) {
	var got url.Values
	s := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Errorf("missing basic auth")
		}
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	})

	if err := s.SendSMS(context.Background(), "+15551112222", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Get("To") != "+15551112222" || got.Get("From") != "+15550000000" || got.Get("Body") != "hello" {
		t.Fatalf("unexpected form: %v", got)
	}
}

func TestTwilioSenderDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	s := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	})

	err := s.SendSMS(context.Background(), "+1bad", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestTwilioSenderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	s := newTestTwilio(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	if err := s.SendSMS(context.Background(), "+15551112222", "hello"); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestNewTwilioSenderRequiresCredentials(t *testing.T) {
	if NewTwilioSender(TwilioConfig{AccountSID: "AC"}, nil) != nil {
		t.Fatal("expected nil sender without token")
	}
}

func TestFormatTwilioError(t *testing.T) {
	if got := formatTwilioError(500, nil); got != "status 500" {
		t.Fatalf("unexpected: %s", got)
	}
	if got := formatTwilioError(400, []byte(`{"message":"bad"}`)); got != "status 400: bad" {
		t.Fatalf("unexpected: %s", got)
	}
	if got := formatTwilioError(502, []byte("gateway")); got != "status 502: gateway" {
		t.Fatalf("unexpected: %s", got)
	}
}
