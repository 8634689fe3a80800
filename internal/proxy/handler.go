package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/SGK112/ai-website-builder-sub004/internal/auth"
	"github.com/SGK112/ai-website-builder-sub004/internal/billing"
	"github.com/SGK112/ai-website-builder-sub004/internal/metrics"
	"github.com/SGK112/ai-website-builder-sub004/internal/provider"
	"github.com/SGK112/ai-website-builder-sub004/internal/relay"
	"github.com/SGK112/ai-website-builder-sub004/internal/router"
	"github.com/SGK112/ai-website-builder-sub004/internal/worker"
	"github.com/SGK112/ai-website-builder-sub004/pkg/ratelimit"
)

// ProviderSource resolves the adapter behind a decision.
type ProviderSource interface {
	Get(id string) (provider.Provider, error)
	Snapshot() []provider.Info
}

type CreditGate interface {
	Authorize(ctx context.Context, id auth.Identity, cost int64) (*billing.Authorization, error)
	Balance(ctx context.Context, id auth.Identity) (int64, error)
}

type TranscriptRecorder interface {
	Record(sessionID, userText, assistantText string) bool
}

// Deps wires a Handler. Usage, Recorder, Jobs, Limiter and Tracer are
// optional.
type Deps struct {
	Engine          *router.Engine
	Providers       ProviderSource
	Breakers        *router.Breakers
	Relay           *relay.Relay
	Gate            CreditGate
	Pricing         billing.Pricing
	Usage           billing.Store
	Recorder        TranscriptRecorder
	Jobs            worker.Queue
	Limiter         *ratelimit.Limiter
	Tracer          trace.Tracer
	Logger          *slog.Logger
	UpstreamTimeout time.Duration
}

type Handler struct {
	Deps
	logger *slog.Logger
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Deps: d, logger: logger.With("component", "proxy")}
}

// dispatch is everything decided before the upstream is invoked.
type dispatch struct {
	identity  auth.Identity
	requestID string
	req       *provider.Request
	decision  *router.Decision
	provider  provider.Provider
	auth      *billing.Authorization
	started   time.Time
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	dp, ok := h.prepare(w, r)
	if !ok {
		return
	}
	if dp.req.Stream {
		h.stream(w, r, dp)
		return
	}
	h.buffered(w, r, dp)
}

// prepare runs the steps that may still answer with a plain JSON status:
// identity, validation, rate limit, decision, breaker and credits. Credits
// are debited only when it returns true.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (*dispatch, bool) {
	ctx := r.Context()
	id, ok := auth.GetIdentity(ctx)
	if !ok || id.UserID == "" {
		reject(w, "unauthorized", http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return nil, false
	}

	requestID := auth.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		reject(w, "invalid_request", http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return nil, false
	}
	req, err := body.toProviderRequest()
	if err != nil {
		reject(w, "invalid_request", http.StatusBadRequest, map[string]any{"error": err.Error()})
		return nil, false
	}
	req.CallerID = id.UserID
	req.RequestID = requestID

	if h.Limiter != nil {
		allowed, err := h.Limiter.Allow(ctx, id.UserID, id.RateLimit)
		if err != nil {
			h.logger.Warn("rate limiter unavailable", "request_id", requestID, "error", err)
		}
		if err != nil || !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(ratelimit.Window.Seconds())))
			reject(w, "rate_limited", http.StatusTooManyRequests, map[string]any{
				"error":       "rate limit exceeded",
				"retry_after": int(ratelimit.Window.Seconds()),
			})
			return nil, false
		}
	}

	_, span := h.tracer().Start(ctx, "router.decide")
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("task_type", string(req.TaskType)),
		attribute.String("preferred_provider", req.PreferredProvider),
	)
	decision, err := h.Engine.Decide(req)
	if err == nil && !h.Breakers.Available(decision.Provider) {
		err = errors.New("circuit breaker is open for provider " + decision.Provider)
	}
	var p provider.Provider
	if err == nil {
		p, err = h.Providers.Get(decision.Provider)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no provider")
		span.End()
		h.logger.Info("no provider for request", "request_id", requestID, "task_type", req.TaskType, "error", err)
		reject(w, "provider_unavailable", http.StatusServiceUnavailable, map[string]any{
			"error": relay.Sanitize(router.ErrProviderUnavailable),
			"code":  "provider_unavailable",
		})
		return nil, false
	}
	span.SetAttributes(attribute.String("provider", decision.Provider), attribute.Float64("confidence", decision.Confidence))
	span.End()

	cost := h.Pricing.CostFor(req.TaskType)
	_, span = h.tracer().Start(ctx, "billing.authorize")
	span.SetAttributes(attribute.String("user_id", id.UserID), attribute.Int64("cost", cost))
	authz, err := h.Gate.Authorize(ctx, id, cost)
	span.End()
	if err != nil {
		var ice *billing.InsufficientCreditsError
		if errors.As(err, &ice) {
			reject(w, "insufficient_credits", http.StatusPaymentRequired, map[string]any{
				"error":    "insufficient credits",
				"code":     "insufficient_credits",
				"paywall":  true,
				"balance":  ice.Balance,
				"required": ice.Required,
			})
			return nil, false
		}
		h.logger.Error("credit authorization failed", "request_id", requestID, "user_id", id.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return nil, false
	}

	return &dispatch{
		identity:  id,
		requestID: requestID,
		req:       req,
		decision:  decision,
		provider:  p,
		auth:      authz,
		started:   time.Now(),
	}, true
}

func (h *Handler) buffered(w http.ResponseWriter, r *http.Request, dp *dispatch) {
	ctx, cancel := h.upstreamContext(r.Context())
	defer cancel()

	resp, err := h.Breakers.Execute(ctx, dp.req, dp.provider)
	h.observe(dp, "buffered", err)
	if err != nil {
		h.logger.Error("upstream call failed",
			"request_id", dp.requestID,
			"provider", dp.decision.Provider,
			"error", err,
		)
		h.logUsage(dp, nil, relay.Failed)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": relay.Sanitize(err)})
		return
	}

	h.logUsage(dp, resp, relay.Completed)
	if h.Recorder != nil {
		user, _ := dp.req.LastUserMessage()
		h.Recorder.Record(dp.req.SessionID, user.Content, resp.Content)
	}

	out := map[string]any{
		"success":          true,
		"content":          resp.Content,
		"agent":            dp.decision.Provider,
		"reasoning":        dp.decision.Reasoning,
		"confidence":       dp.decision.Confidence,
		"model":            resp.Model,
		"creditsRemaining": dp.auth.Remaining,
	}
	if dp.req.SessionID != "" {
		out["sessionId"] = dp.req.SessionID
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, dp *dispatch) {
	ctx, cancel := h.upstreamContext(r.Context())

	ctx, span := h.tracer().Start(ctx, "relay.stream")
	span.SetAttributes(attribute.String("provider", dp.decision.Provider), attribute.String("request_id", dp.requestID))
	defer span.End()

	var chunks <-chan *provider.Chunk
	if dp.provider.Capabilities().Streaming {
		ch, err := h.Breakers.ExecuteStream(ctx, dp.req, dp.provider)
		if err != nil {
			chunks = failedStream(err)
		} else {
			chunks = ch
		}
	} else {
		resp, err := h.Breakers.Execute(ctx, dp.req, dp.provider)
		if err != nil {
			chunks = failedStream(err)
		} else {
			chunks = relay.FromText(resp.Content)
		}
	}

	sw := relay.NewWriter(w)
	metrics.ActiveStreams.Inc()
	sw.OnClose(metrics.ActiveStreams.Dec)

	res := h.Relay.Stream(ctx, sw, dp.decision, chunks, cancel, dp.req.SessionID)
	span.SetAttributes(attribute.Int("fragments", res.Fragments), attribute.String("outcome", res.Outcome.String()))

	switch res.Outcome {
	case relay.Completed:
		h.observe(dp, "stream", nil)
		if h.Recorder != nil {
			user, _ := dp.req.LastUserMessage()
			h.Recorder.Record(dp.req.SessionID, user.Content, res.Text)
		}
	case relay.Failed:
		span.SetStatus(codes.Error, "upstream failed")
		h.observe(dp, "stream", res.Err)
	case relay.Canceled:
		metrics.RequestsTotal.WithLabelValues(dp.decision.Provider, "stream", res.Outcome.String()).Inc()
		h.logger.Debug("stream canceled",
			"request_id", dp.requestID,
			"provider", dp.decision.Provider,
			"fragments", res.Fragments,
		)
	}
	h.logUsage(dp, nil, res.Outcome)
}

func (h *Handler) upstreamContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.UpstreamTimeout > 0 {
		return context.WithTimeout(parent, h.UpstreamTimeout)
	}
	return context.WithCancel(parent)
}

func (h *Handler) observe(dp *dispatch, mode string, err error) {
	outcome := relay.Completed
	if err != nil {
		outcome = relay.Failed
	}
	metrics.RequestsTotal.WithLabelValues(dp.decision.Provider, mode, outcome.String()).Inc()
	metrics.UpstreamLatency.WithLabelValues(dp.decision.Provider, mode).Observe(time.Since(dp.started).Seconds())
}

// logUsage queues the usage row. Anonymous callers have no account to
// report against.
func (h *Handler) logUsage(dp *dispatch, resp *provider.Response, outcome relay.Outcome) {
	if h.Usage == nil || h.Jobs == nil || dp.identity.Anonymous {
		return
	}
	entry := &billing.UsageLog{
		TenantID:  dp.identity.UserID,
		RequestID: dp.requestID,
		Provider:  dp.decision.Provider,
		Model:     provider.ModelFor(dp.provider, dp.req.Model),
		TaskType:  string(dp.req.TaskType),
		Credits:   dp.auth.Cost,
		Outcome:   outcome.String(),
		LatencyMs: time.Since(dp.started).Milliseconds(),
	}
	if resp != nil {
		entry.Model = resp.Model
		entry.InputTokens = resp.InputTokens
		entry.OutputTokens = resp.OutputTokens
		entry.CostUSD = float64(resp.InputTokens)*dp.provider.CostPerInputToken() + float64(resp.OutputTokens)*dp.provider.CostPerOutputToken()
	}
	h.Jobs.Submit(worker.NewJob("usage", func(ctx context.Context) error {
		return h.Usage.LogUsage(ctx, entry)
	}))
}

var noopTracer = noop.NewTracerProvider().Tracer("proxy")

func (h *Handler) tracer() trace.Tracer {
	if h.Tracer == nil {
		return noopTracer
	}
	return h.Tracer
}

func (h *Handler) HandleCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.GetIdentity(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	balance, err := h.Gate.Balance(r.Context(), id)
	if err != nil {
		h.logger.Error("balance lookup failed", "user_id", id.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":    id.UserID,
		"balance":   balance,
		"anonymous": id.Anonymous,
	})
}

type providerStatus struct {
	provider.Info
	Available bool `json:"available"`
}

func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	infos := h.Providers.Snapshot()
	out := make([]providerStatus, 0, len(infos))
	for _, info := range infos {
		available := info.Usable()
		if available {
			available = h.Breakers.Available(info.ID)
		}
		out = append(out, providerStatus{Info: info, Available: available})
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := auth.GetIdentity(ctx)
	if !ok || id.Anonymous {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}
	if h.Usage == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "usage reporting is disabled"})
		return
	}

	now := time.Now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid 'from' date format (use RFC3339)"})
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid 'to' date format (use RFC3339)"})
			return
		}
		to = t
	}

	logs, err := h.Usage.GetUsageByTenant(ctx, id.UserID, from, to)
	if err != nil {
		h.logger.Error("usage query failed", "user_id", id.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}
	totalCost, err := h.Usage.GetTotalCostByTenant(ctx, id.UserID, from, to)
	if err != nil {
		h.logger.Error("usage total failed", "user_id", id.UserID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
		return
	}

	var credits int64
	for _, l := range logs {
		credits += l.Credits
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":         id.UserID,
		"total_requests": len(logs),
		"total_credits":  credits,
		"total_cost_usd": totalCost,
		"logs":           logs,
		"from":           from,
		"to":             to,
	})
}

func failedStream(err error) <-chan *provider.Chunk {
	ch := make(chan *provider.Chunk, 1)
	ch <- &provider.Chunk{Err: err}
	close(ch)
	return ch
}

func reject(w http.ResponseWriter, reason string, status int, body map[string]any) {
	metrics.DispatchRejections.WithLabelValues(reason).Inc()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
