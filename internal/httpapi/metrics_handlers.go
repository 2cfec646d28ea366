package httpapi

import (
	"net/http"

	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/reporting"
)

func metricQuery(r *http.Request) reporting.Query {
	q := r.URL.Query()
	return reporting.Query{
		BranchID: q.Get("branch_id"),
		Start:    q.Get("start_date"),
		End:      q.Get("end_date"),
	}
}

func (a *API) metricCounts(w http.ResponseWriter, r *http.Request, user auth.User) {
	out, err := a.deps.Metrics.Counts(r.Context(), user, metricQuery(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) metricGraphs(w http.ResponseWriter, r *http.Request, user auth.User) {
	out, err := a.deps.Metrics.Graphs(r.Context(), user, metricQuery(r), r.URL.Query().Get("granularity"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) funnelTrends(w http.ResponseWriter, r *http.Request, user auth.User) {
	out, err := a.deps.Metrics.FunnelTrends(r.Context(), user, metricQuery(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) callTrends(w http.ResponseWriter, r *http.Request, user auth.User) {
	out, err := a.deps.Metrics.CallTrends(r.Context(), user, metricQuery(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
