package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"salesdeck.io/internal/auth"
)

func stubGate(user auth.User, err error) auth.Gate {
	return func(_ context.Context, credential string) (auth.User, error) {
		if credential == "" {
			return auth.User{}, &auth.Denial{Kind: auth.KindInvalidCredential, Reason: auth.ReasonMissingCredential}
		}
		return user, err
	}
}

func TestGatedPassesUserAndToken(t *testing.T) {
	a := &API{}
	var got auth.User
	var tok string
	h := a.gated(stubGate(admin, nil), func(w http.ResponseWriter, r *http.Request, u auth.User) {
		got = u
		tok, _ = auth.TokenFromContext(r.Context())
		if _, ok := auth.UserFromContext(r.Context()); !ok {
			t.Error("user missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "bearer abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent || got.ID != admin.ID || tok != "abc" {
		t.Fatalf("code=%d user=%q token=%q", rr.Code, got.ID, tok)
	}
}

func TestGatedDenialSetsChallenge(t *testing.T) {
	a := &API{}
	called := false
	h := a.gated(stubGate(auth.User{}, nil), func(http.ResponseWriter, *http.Request, auth.User) { called = true })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	if called {
		t.Fatal("handler ran after denial")
	}
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestGatedStoreFailureIs500(t *testing.T) {
	a := &API{}
	h := a.gated(stubGate(auth.User{}, errors.New("db down")), func(http.ResponseWriter, *http.Request, auth.User) {})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") != "" {
		t.Fatal("challenge set for non-denial")
	}
}
