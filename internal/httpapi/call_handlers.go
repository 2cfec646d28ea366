package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"salesdeck.io/internal/audit"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/call"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/voice"
)

const retellSignatureHeader = "X-Retell-Signature"

func (a *API) startCall(w http.ResponseWriter, r *http.Request, user auth.User) {
	var req call.StartRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	reg, err := a.deps.Calls.Start(r.Context(), user, req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (a *API) listCalls(w http.ResponseWriter, r *http.Request, user auth.User) {
	branchID, err := branchParam(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	out, err := a.deps.Calls.List(r.Context(), user, branchID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getCall(w http.ResponseWriter, r *http.Request, user auth.User) {
	c, err := a.deps.Calls.Get(r.Context(), user, r.PathValue("call_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) callReport(w http.ResponseWriter, r *http.Request, user auth.User) {
	rep, err := a.deps.Calls.Report(r.Context(), user, r.PathValue("call_id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) downloadCall(w http.ResponseWriter, r *http.Request, user auth.User) {
	callID := r.PathValue("call_id")
	doc, err := a.deps.Calls.Download(r.Context(), user, callID)
	if errors.Is(err, call.ErrTranscriptPending) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Transcript not generated yet"})
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="call_%s.txt"`, callID))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

func (a *API) retellWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if a.opts.WebhookSecret != "" && !voice.VerifySignature(a.opts.WebhookSecret, body, r.Header.Get(retellSignatureHeader)) {
		obs.ObserveWebhook("retell", "unknown", "rejected")
		_ = audit.LogEvent(r.Context(), audit.EventWebhookRejected, map[string]any{
			"source":    "retell",
			"remote_ip": clientIP(r),
		})
		writeError(w, http.StatusUnauthorized, "Invalid webhook signature", nil)
		return
	}
	var ev call.RetellEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		obs.ObserveWebhook("retell", "unknown", "invalid")
		writeError(w, http.StatusUnprocessableEntity, msgValidation, err.Error())
		return
	}
	out, err := a.deps.Calls.HandleRetell(r.Context(), ev)
	if err != nil {
		obs.ObserveWebhook("retell", retellEventLabel(ev.Event), "error")
		fail(w, r, err)
		return
	}
	obs.ObserveWebhook("retell", retellEventLabel(ev.Event), string(out))
	writeJSON(w, http.StatusOK, map[string]string{"status": string(out)})
}

// retellEventLabel folds the body-supplied event name into a fixed label set.
func retellEventLabel(name string) string {
	switch name {
	case "call_started", "call_ended", "call_analyzed":
		return name
	}
	return "other"
}

func (a *API) cognicueWebhook(w http.ResponseWriter, r *http.Request) {
	var ev call.CognicueEvent
	if err := decodeJSON(r, &ev); err != nil {
		obs.ObserveWebhook("cognicue", "unknown", "invalid")
		fail(w, r, err)
		return
	}
	out, err := a.deps.Calls.HandleCognicue(r.Context(), ev)
	if err != nil {
		obs.ObserveWebhook("cognicue", "interview", "error")
		fail(w, r, err)
		return
	}
	obs.ObserveWebhook("cognicue", "interview", string(out))
	writeJSON(w, http.StatusOK, map[string]string{"status": string(out)})
}
