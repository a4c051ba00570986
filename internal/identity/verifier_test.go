package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newUserinfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got == "" {
			t.Errorf("missing Authorization header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVerifyMatchesNormalizedEmail(t *testing.T) {
	server := newUserinfoServer(t, http.StatusOK, `{"email":"driver@example.com","sub":"sub-1"}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	if errVerify := verifier.Verify(context.Background(), "token-1", "  Driver@Example.COM "); errVerify != nil {
		t.Fatalf("expected match, got %v", errVerify)
	}
}

func TestVerifyRejectsMismatchedUser(t *testing.T) {
	server := newUserinfoServer(t, http.StatusOK, `{"email":"driver@example.com"}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	errVerify := verifier.Verify(context.Background(), "token-1", "other@example.com")
	if !errors.Is(errVerify, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", errVerify)
	}
}

func TestVerifyRejectsProfileWithoutEmail(t *testing.T) {
	server := newUserinfoServer(t, http.StatusOK, `{"sub":"sub-1"}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	errVerify := verifier.Verify(context.Background(), "token-1", "driver@example.com")
	if !errors.Is(errVerify, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", errVerify)
	}
}

func TestVerifyRejectsProviderFailure(t *testing.T) {
	server := newUserinfoServer(t, http.StatusUnauthorized, `{"error":"invalid_token"}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	errVerify := verifier.Verify(context.Background(), "token-bad", "driver@example.com")
	if !errors.Is(errVerify, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", errVerify)
	}
}

func TestVerifyRejectsEmptyInputs(t *testing.T) {
	server := newUserinfoServer(t, http.StatusOK, `{"email":"driver@example.com"}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	if errVerify := verifier.Verify(context.Background(), "", "driver@example.com"); !errors.Is(errVerify, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty credential, got %v", errVerify)
	}
	if errVerify := verifier.Verify(context.Background(), "token-1", "   "); !errors.Is(errVerify, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for blank user, got %v", errVerify)
	}
}

func TestResolvePrefersEmail(t *testing.T) {
	server := newUserinfoServer(t, http.StatusOK, `{"email":"Driver@Example.com","sub":"sub-1"}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	resolved, errResolve := verifier.Resolve(context.Background(), "token-1")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if resolved != "driver@example.com" {
		t.Fatalf("resolved = %q, want driver@example.com", resolved)
	}
}

func TestResolveFallsBackToSubject(t *testing.T) {
	server := newUserinfoServer(t, http.StatusOK, `{"sub":"sub-42"}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	resolved, errResolve := verifier.Resolve(context.Background(), "token-1")
	if errResolve != nil {
		t.Fatalf("resolve: %v", errResolve)
	}
	if resolved != "sub-42" {
		t.Fatalf("resolved = %q, want sub-42", resolved)
	}
}

func TestResolveRejectsEmptyProfile(t *testing.T) {
	server := newUserinfoServer(t, http.StatusOK, `{}`)
	verifier := NewHTTPVerifier(server.URL, nil)

	if _, errResolve := verifier.Resolve(context.Background(), "token-1"); !errors.Is(errResolve, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", errResolve)
	}
}
