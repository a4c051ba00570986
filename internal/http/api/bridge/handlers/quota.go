package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	internalhttp "github.com/teslabridge/quotaserver/internal/http"
	"github.com/teslabridge/quotaserver/internal/service"
)

// QuotaHandler handles the public quota endpoints.
type QuotaHandler struct {
	svc *service.Quota
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(svc *service.Quota) *QuotaHandler {
	return &QuotaHandler{svc: svc}
}

// GetBalance returns the remaining balance for a user, provisioning a new
// account when a verifying credential accompanies the request.
func (h *QuotaHandler) GetBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	credential := internalhttp.BearerToken(c.GetHeader("Authorization"))

	if userID == "" && credential == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId query parameter is required"})
		return
	}

	account, errGet := h.svc.GetBalance(c.Request.Context(), userID, credential)
	if errGet != nil {
		respondServiceError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, account)
}

// consumeRequest defines the request body for credit consumption.
type consumeRequest struct {
	UserID string `json:"userId"`
}

// Consume decrements the user's balance by one credit. An exhausted account
// is a no-op that reports the current balance.
func (h *QuotaHandler) Consume(c *gin.Context) {
	var body consumeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	credential := internalhttp.BearerToken(c.GetHeader("Authorization"))
	account, _, errConsume := h.svc.ConsumeCredit(c.Request.Context(), body.UserID, credential)
	if errConsume != nil {
		respondServiceError(c, errConsume)
		return
	}
	c.JSON(http.StatusOK, account)
}

// legacyConsumeRequest defines the request body the pre-split clients send.
type legacyConsumeRequest struct {
	UserID   string `json:"userId"`
	UseQuota *bool  `json:"useQuota"`
}

// ConsumeLegacy serves the original combined quota POST shape. It validates
// the useQuota flag the way deployed clients expect and reports an exhausted
// balance as a conflict instead of a silent no-op.
func (h *QuotaHandler) ConsumeLegacy(c *gin.Context) {
	var body legacyConsumeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if body.UseQuota == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "useQuota must be a boolean"})
		return
	}

	credential := internalhttp.BearerToken(c.GetHeader("Authorization"))
	account, consumed, errConsume := h.svc.ConsumeCredit(c.Request.Context(), body.UserID, credential)
	if errConsume != nil {
		respondServiceError(c, errConsume)
		return
	}
	if !consumed {
		c.JSON(http.StatusConflict, gin.H{
			"userId":  account.UserID,
			"balance": account.Balance,
			"error":   "Quota exhausted",
		})
		return
	}
	c.JSON(http.StatusOK, account)
}

// addCreditsRequest defines the request body for credit additions.
type addCreditsRequest struct {
	UserID  string `json:"userId"`
	Credits int64  `json:"credits"`
}

// AddCredits adds purchased credits to an existing account.
func (h *QuotaHandler) AddCredits(c *gin.Context) {
	var body addCreditsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	credential := internalhttp.BearerToken(c.GetHeader("Authorization"))
	if credential == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
		return
	}

	account, errAdd := h.svc.AddCredits(c.Request.Context(), body.UserID, body.Credits, credential)
	if errAdd != nil {
		respondServiceError(c, errAdd)
		return
	}
	c.JSON(http.StatusOK, account)
}

// respondServiceError maps service errors onto transport status codes without
// leaking internal detail.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or mismatched access token"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "quota record not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process quota request"})
	}
}

// validationMessage strips the sentinel prefix from a validation error.
func validationMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), service.ErrValidation.Error())
	msg = strings.TrimPrefix(msg, ": ")
	if msg == "" {
		return "invalid request"
	}
	return msg
}
