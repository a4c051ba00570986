package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/teslabridge/quotaserver/internal/db"
	"github.com/teslabridge/quotaserver/internal/ledger"
	"github.com/teslabridge/quotaserver/internal/models"
	"github.com/teslabridge/quotaserver/internal/usage"
	"gorm.io/gorm"
)

// AccountHandler handles quota account management endpoints.
type AccountHandler struct {
	db       *gorm.DB
	store    ledger.Ledger
	recorder *usage.Recorder
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(conn *gorm.DB, store ledger.Ledger, recorder *usage.Recorder) *AccountHandler {
	return &AccountHandler{db: conn, store: store, recorder: recorder}
}

// List returns quota accounts, optionally filtered by a user id substring.
func (h *AccountHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	query := h.db.WithContext(c.Request.Context()).Model(&models.QuotaAccount{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		pattern := db.NormalizeLikePattern(h.db, "%"+search+"%")
		query = query.Where(db.CaseInsensitiveLikeExpr(h.db, "user_id"), pattern)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query accounts failed"})
		return
	}

	var accounts []models.QuotaAccount
	if errFind := query.Order("user_id ASC").Limit(limit).Offset(offset).Find(&accounts).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query accounts failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    total,
		"accounts": accounts,
	})
}

// Get returns a single quota account.
func (h *AccountHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	account, errGet := h.store.Get(c.Request.Context(), userID)
	if errGet != nil {
		if errors.Is(errGet, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query account failed"})
		return
	}
	c.JSON(http.StatusOK, account)
}

// setBalanceRequest defines the request body for balance overrides.
type setBalanceRequest struct {
	Balance *int64 `json:"balance"`
}

// SetBalance overwrites the balance of an existing account.
func (h *AccountHandler) SetBalance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	var body setBalanceRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Balance == nil || *body.Balance < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "balance must be a non-negative integer"})
		return
	}

	before, errBefore := h.store.Get(c.Request.Context(), userID)
	if errBefore != nil && !errors.Is(errBefore, ledger.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query account failed"})
		return
	}

	account, errSet := h.store.SetBalance(c.Request.Context(), userID, *body.Balance)
	if errSet != nil {
		if errors.Is(errSet, ledger.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "set balance failed"})
		return
	}

	if h.recorder != nil {
		h.recorder.Record(c.Request.Context(), account.UserID, models.UsageKindAdminAdjust,
			account.Balance-before.Balance, account.Balance, map[string]any{
				"admin": adminUsername(c),
			})
	}
	c.JSON(http.StatusOK, account)
}

// adminUsername extracts the acting admin's username from gin context.
func adminUsername(c *gin.Context) string {
	val, exists := c.Get("adminUsername")
	if !exists {
		return ""
	}
	if username, ok := val.(string); ok {
		return username
	}
	return ""
}
