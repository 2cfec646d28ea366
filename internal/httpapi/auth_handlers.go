package httpapi

import (
	"net/http"

	"salesdeck.io/internal/account"
	"salesdeck.io/internal/auth"
)

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	tok, err := a.deps.Accounts.Register(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req account.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	tok, err := a.deps.Accounts.Login(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (a *API) me(w http.ResponseWriter, r *http.Request, user auth.User) {
	writeJSON(w, http.StatusOK, user)
}
