package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubVerifier struct {
	verifyFn func(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

func (s *stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, idToken)
	}
	return nil, errors.New("not implemented")
}

func TestRequireFirebaseAuthRejectsMissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubVerifier{})
	handler := authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run without credentials")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireFirebaseAuthInjectsIdentity(t *testing.T) {
	verifier := &stubVerifier{
		verifyFn: func(_ context.Context, idToken string) (*firebaseauth.Token, error) {
			if idToken != "token-1" {
				t.Fatalf("unexpected token %q", idToken)
			}
			return &firebaseauth.Token{
				UID:    "creative-1",
				Claims: map[string]any{"role": "creative", "email": "c@example.com"},
			}, nil
		},
	}
	authn := NewAuthenticator(verifier)

	var captured *Identity
	handler := authn.RequireFirebaseAuth(RoleCreative)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured, _ = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured == nil || captured.UID != "creative-1" {
		t.Fatalf("identity not injected: %+v", captured)
	}
	if !captured.HasRole("creative") {
		t.Fatalf("expected creative role, got %v", captured.Roles)
	}
}

func TestRequireFirebaseAuthEnforcesRoles(t *testing.T) {
	verifier := &stubVerifier{
		verifyFn: func(context.Context, string) (*firebaseauth.Token, error) {
			return &firebaseauth.Token{UID: "client-1", Claims: map[string]any{"role": "client"}}, nil
		},
	}
	authn := NewAuthenticator(verifier)

	handler := authn.RequireFirebaseAuth(RoleStaff)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for insufficient role")
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
