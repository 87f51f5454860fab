package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CreditRouter/internal/ledger"
	"github.com/router-for-me/CreditRouter/internal/models"
	log "github.com/sirupsen/logrus"
)

// AccountsHandler serves balance, history and grant endpoints.
type AccountsHandler struct {
	ledger *ledger.Ledger
}

// NewAccountsHandler constructs an AccountsHandler.
func NewAccountsHandler(l *ledger.Ledger) *AccountsHandler {
	return &AccountsHandler{ledger: l}
}

// Balance returns the current balance snapshot for an account.
func (h *AccountsHandler) Balance(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing account id"})
		return
	}

	balance, errBalance := h.ledger.Balance(c.Request.Context(), accountID)
	if errBalance != nil {
		log.WithError(errBalance).Error("balance lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":                balance.AccountID,
		"balance_micros":            balance.BalanceMicros,
		"reserved_micros":           balance.ReservedMicros,
		"available_micros":          balance.AvailableMicros,
		"lifetime_purchased_micros": balance.LifetimePurchasedMicros,
		"lifetime_spent_micros":     balance.LifetimeSpentMicros,
	})
}

// Transactions returns the newest ledger rows for an account.
func (h *AccountsHandler) Transactions(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing account id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	rows, errFind := h.ledger.Transactions(c.Request.Context(), accountID, limit, offset)
	if errFind != nil {
		log.WithError(errFind).Error("transaction query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

// grantRequest is the admin grant body.
type grantRequest struct {
	AmountMicros int64  `json:"amount_micros" binding:"required"`
	Type         string `json:"type"`
	Reason       string `json:"reason"`
}

// Grant credits an account from a purchase or bonus.
func (h *AccountsHandler) Grant(c *gin.Context) {
	accountID := strings.TrimSpace(c.Param("id"))
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing account id"})
		return
	}

	var body grantRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
		return
	}
	grantType := body.Type
	if grantType == "" {
		grantType = models.TransactionPurchase
	}

	balanceAfter, errGrant := h.ledger.Grant(c.Request.Context(), accountID, body.AmountMicros, grantType, body.Reason)
	if errGrant != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errGrant.Error()})
		return
	}

	log.Infof("admin: granted %d micros (%s) to %s", body.AmountMicros, grantType, accountID)
	c.JSON(http.StatusOK, gin.H{
		"account_id":           accountID,
		"balance_after_micros": balanceAfter,
	})
}
