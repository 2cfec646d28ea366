package httpapi

import (
	"net/http"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/validate"
)

type createBranchRequest struct {
	Name string `json:"name" validate:"required"`
}

type createInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

type memberAccessRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

func (a *API) createBranch(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req createBranchRequest
	if err := decodeValid(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	b, err := a.deps.Orgs.CreateBranch(r.Context(), user, req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) listBranches(w http.ResponseWriter, r *http.Request, user auth.User) {
	out, err := a.deps.Orgs.ListBranches(r.Context(), user)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, user auth.User) {
	out, err := a.deps.Orgs.Members(r.Context(), user, r.PathValue("branch_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) setMemberAccess(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req memberAccessRequest
	if err := decodeValid(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	member, err := a.deps.Orgs.SetMemberAccess(r.Context(), user, r.PathValue("branch_id"), r.PathValue("member_id"), *req.IsActive)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (a *API) listInvites(w http.ResponseWriter, r *http.Request, user auth.User) {
	out, err := a.deps.Orgs.Invites(r.Context(), user, r.PathValue("branch_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createInvite(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req createInviteRequest
	if err := decodeValid(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	inv, err := a.deps.Orgs.Invite(r.Context(), user, r.PathValue("branch_id"), req.Email, req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// decodeValid decodes the body and checks its validate tags.
func decodeValid(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
