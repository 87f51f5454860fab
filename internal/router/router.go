// Package router orchestrates the full request pipeline: cache lookup,
// prompt classification, candidate selection, admission control, credit
// reservation, the provider call and settlement, with bounded fallback
// across ranked candidates.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/CreditRouter/internal/analyzer"
	"github.com/router-for-me/CreditRouter/internal/cache"
	"github.com/router-for-me/CreditRouter/internal/catalog"
	"github.com/router-for-me/CreditRouter/internal/ledger"
	"github.com/router-for-me/CreditRouter/internal/provider"
	"github.com/router-for-me/CreditRouter/internal/ratelimit"
	"github.com/router-for-me/CreditRouter/internal/selector"
	"github.com/router-for-me/CreditRouter/internal/usage"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 3
	defaultCallTimeout = 2 * time.Minute
)

// Request is one routing request.
type Request struct {
	AccountID  string
	Prompt     string
	Preference selector.Preference
	Budget     selector.BudgetTier
}

// Result is the outcome of a successful route.
type Result struct {
	RequestID          string
	Response           string
	ModelUsed          string
	Provider           string
	TokensUsed         int64
	CostMicros         int64
	BalanceAfterMicros int64
	CacheHit           bool
	Attempts           int
	Reasoning          string
}

// Estimate is the side-effect-free cost preview for a request.
type Estimate struct {
	TaskType            analyzer.TaskType
	Complexity          analyzer.Complexity
	EstimatedTokens     int64
	SelectedModel       string
	EstimatedCostMicros int64
	SufficientCredits   bool
	ShortfallMicros     int64
	Reasoning           string
}

// Options wires the router's collaborators.
type Options struct {
	Catalog   *catalog.Catalog
	Analyzer  *analyzer.Analyzer
	Limits    *ratelimit.Registry
	Cache     cache.Store
	Ledger    *ledger.Ledger
	Providers *provider.Registry
	Usage     *usage.Recorder

	// MaxAttempts bounds fallback iteration; zero uses the default.
	MaxAttempts int
	// CallTimeout bounds a single provider call; zero uses the default.
	CallTimeout time.Duration
}

// Router executes the routing pipeline. Safe for concurrent use.
type Router struct {
	catalog     *catalog.Catalog
	analyzer    *analyzer.Analyzer
	limits      *ratelimit.Registry
	cache       cache.Store
	ledger      *ledger.Ledger
	providers   *provider.Registry
	usage       *usage.Recorder
	maxAttempts int
	callTimeout time.Duration
}

// New constructs a router from its collaborators.
func New(opts Options) *Router {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	return &Router{
		catalog:     opts.Catalog,
		analyzer:    opts.Analyzer,
		limits:      opts.Limits,
		cache:       opts.Cache,
		ledger:      opts.Ledger,
		providers:   opts.Providers,
		usage:       opts.Usage,
		maxAttempts: opts.MaxAttempts,
		callTimeout: opts.CallTimeout,
	}
}

// Route runs one request through the pipeline. On failure no credit is
// charged: every reservation taken during fallback is either settled by the
// single successful call or released before the next attempt.
func (r *Router) Route(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	requestID := uuid.NewString()

	fingerprint := requestFingerprint(req)
	if result := r.lookupCache(ctx, requestID, req, fingerprint); result != nil {
		return result, nil
	}

	analysis := r.analyzer.Analyze(req.Prompt)

	balance, err := r.ledger.Balance(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("router: load balance: %w", err)
	}
	available := balance.AvailableMicros
	if ceiling := req.Budget.CeilingMicros(); ceiling < available {
		available = ceiling
	}

	sel := selector.Select(r.catalog, analysis, available, req.Preference, nil)
	if len(sel.Candidates) == 0 {
		log.Infof("router: %s rejected: %s", requestID, sel.Reasoning)
		return nil, &ledger.InsufficientCreditsError{
			AccountID:       req.AccountID,
			ShortfallMicros: sel.ShortfallMicros,
		}
	}

	var failures []AttemptFailure
	attempts := 0
	for _, candidate := range sel.Candidates {
		if attempts >= r.maxAttempts {
			break
		}
		attempts++

		result, failure, errAttempt := r.attempt(ctx, requestID, req, analysis, candidate)
		if errAttempt != nil {
			return nil, errAttempt
		}
		if result != nil {
			result.Attempts = attempts
			result.Reasoning = sel.Reasoning
			r.cacheResponse(ctx, fingerprint, analysis, req.Prompt, result)
			return result, nil
		}
		failures = append(failures, *failure)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	log.Warnf("router: %s exhausted %d candidates for account %s", requestID, attempts, req.AccountID)
	return nil, &ServiceUnavailableError{Failures: failures}
}

// attempt runs one candidate through admission, reservation, the provider
// call and settlement. It returns a Result on success, an AttemptFailure
// when fallback should continue, or a hard error that aborts the request.
func (r *Router) attempt(ctx context.Context, requestID string, req Request, analysis analyzer.Analysis, candidate selector.Candidate) (*Result, *AttemptFailure, error) {
	model := candidate.Model

	if !r.limits.Admit(model.ID) {
		log.Infof("router: %s model %s refused: rate limited", requestID, model.ID)
		return nil, &AttemptFailure{ModelID: model.ID, Reason: "rate limited"}, nil
	}

	reservationID, errReserve := r.ledger.Reserve(ctx, req.AccountID, model.ID, candidate.EstimatedCostMicros)
	if errReserve != nil {
		var insufficient *ledger.InsufficientCreditsError
		if errors.As(errReserve, &insufficient) {
			// A concurrent request consumed the headroom since selection.
			return nil, &AttemptFailure{ModelID: model.ID, Reason: insufficient.Error()}, nil
		}
		return nil, nil, fmt.Errorf("router: reserve: %w", errReserve)
	}

	client, ok := r.providers.Get(model.Provider)
	if !ok {
		r.release(ctx, requestID, reservationID, "provider not registered")
		return nil, &AttemptFailure{ModelID: model.ID, Reason: "provider " + model.Provider + " not registered"}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	start := time.Now()
	resp, errCall := client.Call(callCtx, model.ID, req.Prompt)
	cancel()
	latency := time.Since(start)

	if errCall != nil {
		r.release(ctx, requestID, reservationID, errCall.Error())
		r.usage.Record(ctx, usage.Attempt{
			RequestID: requestID,
			AccountID: req.AccountID,
			Provider:  model.Provider,
			Model:     model.ID,
			Source:    usage.SourceProvider,
			Failed:    true,
			Error:     errCall,
			Latency:   latency,
		})
		log.Warnf("router: %s model %s failed after %s: %v", requestID, model.ID, latency, errCall)
		return nil, &AttemptFailure{ModelID: model.ID, Reason: errCall.Error()}, nil
	}

	actualMicros := selector.EstimateCostMicros(resp.TokensUsed, model)
	balanceAfter, errSettle := r.ledger.Settle(context.WithoutCancel(ctx), reservationID, actualMicros)
	if errSettle != nil {
		return nil, nil, fmt.Errorf("router: settle reservation %s: %w", reservationID, errSettle)
	}
	// The ledger caps the charge at the hold.
	charged := actualMicros
	if charged > candidate.EstimatedCostMicros {
		charged = candidate.EstimatedCostMicros
	}

	r.usage.Record(ctx, usage.Attempt{
		RequestID:    requestID,
		AccountID:    req.AccountID,
		Provider:     model.Provider,
		Model:        model.ID,
		Source:       usage.SourceProvider,
		Latency:      latency,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		TotalTokens:  resp.TokensUsed,
		CostMicros:   charged,
	})
	log.Infof("router: %s served by %s/%s tokens=%d cost=%d latency=%s",
		requestID, model.Provider, model.ID, resp.TokensUsed, charged, latency)

	return &Result{
		RequestID:          requestID,
		Response:           resp.Text,
		ModelUsed:          model.ID,
		Provider:           model.Provider,
		TokensUsed:         resp.TokensUsed,
		CostMicros:         charged,
		BalanceAfterMicros: balanceAfter,
	}, nil, nil
}

// Estimate previews classification, selection and cost without reserving,
// calling or caching anything.
func (r *Router) Estimate(ctx context.Context, req Request) (*Estimate, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	analysis := r.analyzer.Analyze(req.Prompt)

	balance, err := r.ledger.Balance(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("router: load balance: %w", err)
	}
	available := balance.AvailableMicros
	if ceiling := req.Budget.CeilingMicros(); ceiling < available {
		available = ceiling
	}

	sel := selector.Select(r.catalog, analysis, available, req.Preference, nil)
	out := &Estimate{
		TaskType:        analysis.TaskType,
		Complexity:      analysis.Complexity,
		EstimatedTokens: analysis.EstimatedTokens,
		Reasoning:       sel.Reasoning,
	}
	if len(sel.Candidates) == 0 {
		out.ShortfallMicros = sel.ShortfallMicros
		return out, nil
	}
	top := sel.Candidates[0]
	out.SelectedModel = top.Model.ID
	out.EstimatedCostMicros = top.EstimatedCostMicros
	out.SufficientCredits = true
	return out, nil
}

// lookupCache serves the request from cache when possible. Cache errors are
// treated as misses.
func (r *Router) lookupCache(ctx context.Context, requestID string, req Request, fingerprint string) *Result {
	entry, hit, errLookup := r.cache.Lookup(ctx, fingerprint)
	if errLookup != nil {
		log.Warnf("router: %s cache lookup: %v", requestID, errLookup)
		return nil
	}
	if !hit {
		return nil
	}

	r.usage.Record(ctx, usage.Attempt{
		RequestID:   requestID,
		AccountID:   req.AccountID,
		Model:       entry.ModelUsed,
		Source:      usage.SourceCache,
		TotalTokens: entry.TokensUsed,
	})
	log.Infof("router: %s cache hit (model=%s hits=%d)", requestID, entry.ModelUsed, entry.HitCount)

	result := &Result{
		RequestID:  requestID,
		Response:   entry.Response,
		ModelUsed:  entry.ModelUsed,
		TokensUsed: entry.TokensUsed,
		CacheHit:   true,
		Reasoning:  "served from cache",
	}
	if balance, errBalance := r.ledger.Balance(ctx, req.AccountID); errBalance == nil {
		result.BalanceAfterMicros = balance.BalanceMicros
	}
	return result
}

// cacheResponse stores a fresh success. Write failures never fail the
// request.
func (r *Router) cacheResponse(ctx context.Context, fingerprint string, analysis analyzer.Analysis, prompt string, result *Result) {
	errPut := r.cache.Put(ctx, cache.Entry{
		Fingerprint: fingerprint,
		Response:    result.Response,
		ModelUsed:   result.ModelUsed,
		TokensUsed:  result.TokensUsed,
		TTL:         cache.TTLFor(analysis.TaskType, prompt),
	})
	if errPut != nil {
		log.Warnf("router: %s cache put: %v", result.RequestID, errPut)
	}
}

// release drops a reservation, detached from the request context so a
// cancelled caller still gets its hold refunded.
func (r *Router) release(ctx context.Context, requestID, reservationID, reason string) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if errRelease := r.ledger.Release(releaseCtx, reservationID, reason); errRelease != nil {
		log.Errorf("router: %s release reservation %s: %v", requestID, reservationID, errRelease)
	}
}

// requestFingerprint keys the cache on the normalized prompt plus the
// routing parameters. The served model is not part of the key; it is not
// known until after selection, and a hit must short-circuit selection
// entirely. Preference and budget stay in the key because they change which
// model would serve the prompt.
func requestFingerprint(req Request) string {
	return cache.Fingerprint(req.Prompt, "", map[string]string{
		"preference": string(req.Preference),
		"budget":     string(req.Budget),
	})
}

func validate(req Request) error {
	if req.AccountID == "" {
		return fmt.Errorf("router: empty account id")
	}
	if cache.Normalize(req.Prompt) == "" {
		return fmt.Errorf("router: empty prompt")
	}
	return nil
}
