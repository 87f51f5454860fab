package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditRouter/internal/ledger"
	"github.com/router-for-me/CreditRouter/internal/router"
	"github.com/router-for-me/CreditRouter/internal/selector"
	log "github.com/sirupsen/logrus"
)

// statusClientClosedRequest is the nginx convention for a caller that went
// away before the response was ready.
const statusClientClosedRequest = 499

// RouteHandler serves the routing endpoints.
type RouteHandler struct {
	router *router.Router
}

// NewRouteHandler constructs a RouteHandler.
func NewRouteHandler(r *router.Router) *RouteHandler {
	return &RouteHandler{router: r}
}

// routeRequest is the request body for route and estimate.
type routeRequest struct {
	AccountID  string `json:"account_id" binding:"required"`
	Prompt     string `json:"prompt" binding:"required"`
	Preference string `json:"preference"`
	Budget     string `json:"budget"`
}

func (b routeRequest) toRequest() router.Request {
	return router.Request{
		AccountID:  b.AccountID,
		Prompt:     b.Prompt,
		Preference: selector.ParsePreference(b.Preference),
		Budget:     selector.ParseBudgetTier(b.Budget),
	}
}

// Route runs one prompt through the pipeline.
func (h *RouteHandler) Route(c *gin.Context) {
	var body routeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
		return
	}

	result, errRoute := h.router.Route(c.Request.Context(), body.toRequest())
	if errRoute != nil {
		writeRouteError(c, errRoute)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":           result.RequestID,
		"response":             result.Response,
		"model_used":           result.ModelUsed,
		"provider":             result.Provider,
		"tokens_used":          result.TokensUsed,
		"cost_micros":          result.CostMicros,
		"balance_after_micros": result.BalanceAfterMicros,
		"cache_hit":            result.CacheHit,
		"attempts":             result.Attempts,
		"reasoning":            result.Reasoning,
	})
}

// Estimate previews classification and cost without side effects.
func (h *RouteHandler) Estimate(c *gin.Context) {
	var body routeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
		return
	}

	est, errEstimate := h.router.Estimate(c.Request.Context(), body.toRequest())
	if errEstimate != nil {
		writeRouteError(c, errEstimate)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_type":             est.TaskType,
		"complexity":            est.Complexity,
		"estimated_tokens":      est.EstimatedTokens,
		"selected_model":        est.SelectedModel,
		"estimated_cost_micros": est.EstimatedCostMicros,
		"sufficient_credits":    est.SufficientCredits,
		"shortfall_micros":      est.ShortfallMicros,
		"reasoning":             est.Reasoning,
	})
}

// writeRouteError maps pipeline errors to HTTP statuses.
func writeRouteError(c *gin.Context, err error) {
	var insufficient *ledger.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":            "insufficient credits",
			"account_id":       insufficient.AccountID,
			"shortfall_micros": insufficient.ShortfallMicros,
		})
		return
	}

	var unavailable *router.ServiceUnavailableError
	if errors.As(err, &unavailable) {
		failures := make([]gin.H, 0, len(unavailable.Failures))
		for _, f := range unavailable.Failures {
			failures = append(failures, gin.H{"model_id": f.ModelID, "reason": f.Reason})
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "all candidates exhausted",
			"failures": failures,
		})
		return
	}

	if errors.Is(err, context.Canceled) {
		c.JSON(statusClientClosedRequest, gin.H{"error": "request cancelled"})
		return
	}

	log.WithError(err).Error("route request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
