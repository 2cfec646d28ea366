package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"net/netip"
	"time"

	"salesdeck.io/internal/account"
	"salesdeck.io/internal/auth"
	"salesdeck.io/internal/call"
	"salesdeck.io/internal/lead"
	"salesdeck.io/internal/obs"
	"salesdeck.io/internal/org"
	"salesdeck.io/internal/prompt"
	"salesdeck.io/internal/reporting"
	"salesdeck.io/internal/voice"
)

const (
	serviceName = "salesdeck-api"
	apiPrefix   = "/api/v1"
)

type readinessChecker interface {
	Check(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the database and, when configured, the dedupe store.
type ReadyProbe struct {
	DB    *sql.DB
	Redis pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		return rp.Redis.Ping(ctx)
	}
	return nil
}

type Accounts interface {
	Register(ctx context.Context, req account.RegisterRequest) (account.Token, error)
	Login(ctx context.Context, req account.LoginRequest) (account.Token, error)
}

type Orgs interface {
	CreateBranch(ctx context.Context, caller auth.User, name string) (org.Branch, error)
	ListBranches(ctx context.Context, caller auth.User) ([]org.Branch, error)
	Members(ctx context.Context, caller auth.User, branchID string) ([]auth.User, error)
	Invites(ctx context.Context, caller auth.User, branchID string) ([]org.Invite, error)
	Invite(ctx context.Context, caller auth.User, branchID, email, name string) (org.Invite, error)
	SetMemberAccess(ctx context.Context, caller auth.User, branchID, memberID string, active bool) (auth.User, error)
}

type Leads interface {
	Create(ctx context.Context, caller auth.User, req lead.CreateRequest) (lead.View, error)
	List(ctx context.Context, caller auth.User, branchID string) ([]lead.View, error)
	Get(ctx context.Context, caller auth.User, leadID string) (lead.View, error)
	Update(ctx context.Context, caller auth.User, leadID string, req lead.UpdateRequest) (lead.View, error)
	Delete(ctx context.Context, caller auth.User, leadID string) (lead.DeleteResult, error)
}

type Prompts interface {
	Create(ctx context.Context, caller auth.User, req prompt.CreateRequest) (prompt.Prompt, error)
	List(ctx context.Context, caller auth.User, branchID string) ([]prompt.Prompt, error)
	Get(ctx context.Context, caller auth.User, id string) (prompt.Prompt, error)
	Update(ctx context.Context, caller auth.User, id string, req prompt.UpdateRequest) (prompt.Prompt, error)
	Delete(ctx context.Context, caller auth.User, id string) (prompt.DeleteResult, error)
}

type Calls interface {
	Start(ctx context.Context, caller auth.User, req call.StartRequest) (voice.Registration, error)
	List(ctx context.Context, caller auth.User, branchID string) ([]call.WithSnapshot, error)
	Get(ctx context.Context, caller auth.User, callID string) (call.Call, error)
	Report(ctx context.Context, caller auth.User, callID string) (call.Report, error)
	Download(ctx context.Context, caller auth.User, callID string) (string, error)
	HandleRetell(ctx context.Context, ev call.RetellEvent) (call.Outcome, error)
	HandleCognicue(ctx context.Context, ev call.CognicueEvent) (call.Outcome, error)
}

type Metrics interface {
	Counts(ctx context.Context, caller auth.User, q reporting.Query) (reporting.Counts, error)
	Graphs(ctx context.Context, caller auth.User, q reporting.Query, granularity string) (reporting.Graph, error)
	FunnelTrends(ctx context.Context, caller auth.User, q reporting.Query) (reporting.FunnelTrends, error)
	CallTrends(ctx context.Context, caller auth.User, q reporting.Query) (reporting.CallTrends, error)
}

// Options tune the outer middleware. Zero values fall back to defaults.
type Options struct {
	Version        string
	WebhookSecret  string
	MaxBodyBytes   int64
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies are the peers whose X-Forwarded-For is honoured.
	TrustedProxies []netip.Prefix
}

// Deps are the services the API routes to.
type Deps struct {
	Guard    *auth.Guard
	Accounts Accounts
	Orgs     Orgs
	Leads    Leads
	Prompts  Prompts
	Calls    Calls
	Metrics  Metrics
	Ready    readinessChecker
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	deps    Deps
	opts    Options
	limiter *RateLimiter
}

func New(deps Deps, opts Options) *API {
	if deps.Ready == nil {
		deps.Ready = ReadyProbe{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 5
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 10
	}
	a := &API{
		mux:     http.NewServeMux(),
		deps:    deps,
		opts:    opts,
		limiter: NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
	a.routes()
	return a
}

func (a *API) routes() {
	g := a.deps.Guard
	limited := a.limiter.Wrap

	a.mux.HandleFunc("GET /health", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.Handle("POST "+apiPrefix+"/register", limited(http.HandlerFunc(a.register)))
	a.mux.Handle("POST "+apiPrefix+"/login", limited(http.HandlerFunc(a.login)))
	a.mux.Handle("GET "+apiPrefix+"/me", a.gated(g.Identify, a.me))

	a.mux.Handle("POST "+apiPrefix+"/branches", a.gated(g.Require(auth.ResourceBranch, auth.ActionWrite), a.createBranch))
	a.mux.Handle("GET "+apiPrefix+"/branches", a.gated(g.Require(auth.ResourceBranch, auth.ActionRead), a.listBranches))
	a.mux.Handle("GET "+apiPrefix+"/branches/{branch_id}/members", a.gated(g.Require(auth.ResourceUser, auth.ActionRead), a.listMembers))
	a.mux.Handle("POST "+apiPrefix+"/branches/{branch_id}/members/{member_id}/access", a.gated(g.Require(auth.ResourceUser, auth.ActionWrite), a.setMemberAccess))
	a.mux.Handle("GET "+apiPrefix+"/branches/{branch_id}/invites", a.gated(g.Require(auth.ResourceInvite, auth.ActionRead), a.listInvites))
	a.mux.Handle("POST "+apiPrefix+"/branches/{branch_id}/invites", a.gated(g.Require(auth.ResourceInvite, auth.ActionWrite), a.createInvite))

	a.mux.Handle("POST "+apiPrefix+"/leads", a.gated(g.Require(auth.ResourceLead, auth.ActionWrite), a.createLead))
	a.mux.Handle("GET "+apiPrefix+"/leads", a.gated(g.Require(auth.ResourceLead, auth.ActionRead), a.listLeads))
	a.mux.Handle("GET "+apiPrefix+"/leads/{lead_id}", a.gated(g.Require(auth.ResourceLead, auth.ActionRead), a.getLead))
	a.mux.Handle("POST "+apiPrefix+"/leads/{lead_id}", a.gated(g.Require(auth.ResourceLead, auth.ActionWrite), a.updateLead))
	a.mux.Handle("DELETE "+apiPrefix+"/leads/{lead_id}", a.gated(g.Require(auth.ResourceLead, auth.ActionWrite), a.deleteLead))

	a.mux.Handle("POST "+apiPrefix+"/prompts", a.gated(g.Require(auth.ResourcePrompt, auth.ActionWrite), a.createPrompt))
	a.mux.Handle("GET "+apiPrefix+"/prompts", a.gated(g.Require(auth.ResourcePrompt, auth.ActionRead), a.listPrompts))
	a.mux.Handle("GET "+apiPrefix+"/prompts/{prompt_id}", a.gated(g.Require(auth.ResourcePrompt, auth.ActionRead), a.getPrompt))
	a.mux.Handle("POST "+apiPrefix+"/prompts/{prompt_id}", a.gated(g.Require(auth.ResourcePrompt, auth.ActionWrite), a.updatePrompt))
	a.mux.Handle("DELETE "+apiPrefix+"/prompts/{prompt_id}", a.gated(g.Require(auth.ResourcePrompt, auth.ActionWrite), a.deletePrompt))

	a.mux.Handle("POST "+apiPrefix+"/calls", a.gated(g.Require(auth.ResourceCall, auth.ActionWrite), a.startCall))
	a.mux.Handle("GET "+apiPrefix+"/calls", a.gated(g.Require(auth.ResourceCall, auth.ActionRead), a.listCalls))
	a.mux.Handle("GET "+apiPrefix+"/calls/{call_id}", a.gated(g.Require(auth.ResourceCall, auth.ActionRead), a.getCall))
	a.mux.Handle("GET "+apiPrefix+"/calls/{call_id}/report", a.gated(g.Require(auth.ResourceCall, auth.ActionRead), a.callReport))
	a.mux.Handle("GET "+apiPrefix+"/calls/{call_id}/download", a.gated(g.Require(auth.ResourceCall, auth.ActionRead), a.downloadCall))

	a.mux.Handle("POST "+apiPrefix+"/webhooks/retell", limited(http.HandlerFunc(a.retellWebhook)))
	a.mux.Handle("POST "+apiPrefix+"/webhooks/cognicue", limited(http.HandlerFunc(a.cognicueWebhook)))

	metric := g.Require(auth.ResourceMetric, auth.ActionRead)
	a.mux.Handle("GET "+apiPrefix+"/metrics/counts", a.gated(metric, a.metricCounts))
	a.mux.Handle("GET "+apiPrefix+"/metrics/graphs", a.gated(metric, a.metricGraphs))
	a.mux.Handle("GET "+apiPrefix+"/metrics/trends/funnel", a.gated(metric, a.funnelTrends))
	a.mux.Handle("GET "+apiPrefix+"/metrics/trends/call", a.gated(metric, a.callTrends))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", nil)
	})
}

// Handler returns the fully wrapped handler. Instrument sits innermost so it
// sees the matched route pattern.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = CORS(a.opts.CORSOrigins)(h)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = Logging(h)
	h = ClientIP(a.opts.TrustedProxies)(h)
	return RequestID(h)
}

// Limiter exposes the rate limiter so the caller can run its sweeper.
func (a *API) Limiter() *RateLimiter { return a.limiter }

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}
