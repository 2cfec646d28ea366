package httpapi

import (
	"net/http"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/prompt"
	"salesdeck.io/internal/validate"
)

func branchParam(r *http.Request) (string, error) {
	id := r.URL.Query().Get("branch_id")
	if id == "" {
		return "", validate.Fail("branch_id", "required", "field required")
	}
	return id, nil
}

func (a *API) createLead(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req lead.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	v, err := a.deps.Leads.Create(r.Context(), user, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) listLeads(w http.ResponseWriter, r *http.Request, user auth.User) {
	branchID, err := branchParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	out, err := a.deps.Leads.List(r.Context(), user, branchID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getLead(w http.ResponseWriter, r *http.Request, user auth.User) {
	v, err := a.deps.Leads.Get(r.Context(), user, r.PathValue("lead_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) updateLead(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req lead.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	v, err := a.deps.Leads.Update(r.Context(), user, r.PathValue("lead_id"), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) deleteLead(w http.ResponseWriter, r *http.Request, user auth.User) {
	res, err := a.deps.Leads.Delete(r.Context(), user, r.PathValue("lead_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) createPrompt(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req prompt.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := a.deps.Prompts.Create(r.Context(), user, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listPrompts(w http.ResponseWriter, r *http.Request, user auth.User) {
	branchID, err := branchParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	out, err := a.deps.Prompts.List(r.Context(), user, branchID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getPrompt(w http.ResponseWriter, r *http.Request, user auth.User) {
	p, err := a.deps.Prompts.Get(r.Context(), user, r.PathValue("prompt_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updatePrompt(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req prompt.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := a.deps.Prompts.Update(r.Context(), user, r.PathValue("prompt_id"), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deletePrompt(w http.ResponseWriter, r *http.Request, user auth.User) {
	res, err := a.deps.Prompts.Delete(r.Context(), user, r.PathValue("prompt_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
