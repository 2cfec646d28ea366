package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"salesdeck.io/internal/account"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/call"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/outbound"
	"salesdeck.io/internal/prompt"
	"salesdeck.io/internal/validate"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

type mapping struct {
	target  error
	status  int
	message string
}

var errorTable = []mapping{
	{account.ErrBadCredentials, http.StatusBadRequest, "Incorrect email or password"},
	{account.ErrDeactivated, http.StatusForbidden, "User account is deactivated"},
	{auth.ErrEmailTaken, http.StatusBadRequest, "Email already registered"},
	{org.ErrOrganizationNotFound, http.StatusNotFound, "Organization not found"},
	{org.ErrBranchNotFound, http.StatusNotFound, "Branch not found"},
	{org.ErrInviteNotFound, http.StatusBadRequest, "Invite not found"},
	{org.ErrInviteNotPending, http.StatusBadRequest, "Invite already accepted"},
	{org.ErrAlreadyMember, http.StatusBadRequest, "User is already a member of the branch"},
	{org.ErrMemberNotFound, http.StatusNotFound, "Member not found"},
	{org.ErrAccessDenied, http.StatusForbidden, "User does not have permission to modify member access"},
	{lead.ErrNotFound, http.StatusNotFound, "Lead not found"},
	{lead.ErrAgentNotFound, http.StatusNotFound, "Agent not found"},
	{prompt.ErrNotFound, http.StatusNotFound, "Prompt not found"},
	{call.ErrNotFound, http.StatusNotFound, "Call not found"},
	{outbound.ErrUnavailable, http.StatusServiceUnavailable, "Upstream service unavailable"},
}

const (
	msgInvalidCredential = "Failed to validate credentials"
	msgNotAuthorized     = "User not authorized"
	msgValidation        = "Invalid request data. Please check the error details for more information."
	msgUnexpected        = "An unexpected error occurred. Please try again later."
)

var denialMessages = map[string]string{
	auth.ReasonUnknownUser:    "User not found",
	auth.ReasonDeactivated:    "User account is deactivated",
	auth.ReasonRoleUnknown:    msgNotAuthorized,
	auth.ReasonResourceDenied: msgNotAuthorized,
	auth.ReasonActionDenied:   msgNotAuthorized,
}

// classify maps err to the status, message and detail written to the
// client. ok is false for unexpected errors.
func classify(err error) (status int, message string, detail any, ok bool) {
	if d, isDenial := auth.AsDenial(err); isDenial {
		msg, found := denialMessages[d.Reason]
		if !found {
			msg = msgInvalidCredential
		}
		return d.Kind.Status(), msg, d.Reason, true
	}
	var verr *validate.Error
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, msgValidation, verr.Fields, true
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return m.status, m.message, nil, true
		}
	}
	var serr *outbound.StatusError
	if errors.As(err, &serr) {
		return http.StatusBadGateway, "Upstream service error", nil, true
	}
	return http.StatusInternalServerError, msgUnexpected, nil, false
}

// fail writes the error envelope for err. Unexpected errors are logged here
// and nowhere else.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg, detail, ok := classify(err)
	if !ok {
		obs.Logger().Error("request failed",
			zap.String("method", r.Method),
			zap.String("route", obs.RouteLabel(r)),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, msg, detail)
}

func writeError(w http.ResponseWriter, code int, msg string, detail any) {
	writeJSON(w, code, errorBody{Error: errorDetail{Message: msg, Detail: detail}})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON document. Unknown fields are dropped so
// clients may echo back whole records.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return validate.Fail("body", "required", "request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return validate.Fail("body", "max", "request body too large")
		}
		return validate.Fail("body", "json", err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return validate.Fail("body", "json", "unexpected data after JSON body")
	}
	return nil
}
