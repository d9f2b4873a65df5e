package httpapi

import (
	"net/http"
	"time"

	"paircall-platform/internal/audit"
	"paircall-platform/internal/auth"
	"paircall-platform/internal/calls"
	"paircall-platform/internal/coins"
	"paircall-platform/internal/rbac"
	"paircall-platform/internal/reporting"
	"paircall-platform/internal/settings"
	"paircall-platform/internal/users"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Users     users.Directory
	Coins     *coins.Service
	Calls     *calls.Service
	Settings  *settings.Service
	Reporting *reporting.Service
	Audit     *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues an access token for a known user.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	u, ok, err := h.Users.Find(c.Request.Context(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	token, err := h.Auth.IssueAccess(time.Now(), u.ID, u.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "role": u.Role})
}

// --- Coins ---

func (h Handlers) GetBalance(c *gin.Context) {
	if h.Coins == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "coins not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	acct, err := h.Coins.Balance(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, acct)
}

// --- Calls ---

func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	role, _ := auth.Role(c.Request.Context())

	l, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		writeCallError(c, err)
		return
	}
	if !l.Participant(userID) && !rbac.IsAdmin(role) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h Handlers) ListCallHistory(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	from, to, ok := parseWindow(c)
	if !ok {
		return
	}
	rows, err := h.Calls.History(c.Request.Context(), userID, from, to)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

// --- Reporting ---

func (h Handlers) GetCallsSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	from, to, ok := parseWindow(c)
	if !ok {
		return
	}
	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		UserID: userID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetCoinsSummary(c *gin.Context) {
	if h.Reporting == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	from, to, ok := parseWindow(c)
	if !ok {
		return
	}
	out, err := h.Reporting.CoinsSummary(c.Request.Context(), reporting.CoinsSummaryRequest{
		UserID: userID,
		Range:  reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Admin ---

type updateCallSettingsRequest struct {
	CoinPrice       int64 `json:"coin_price"`
	DurationSeconds int   `json:"duration_seconds"`
}

// AdminUpdateCallSettings replaces the platform price sheet. New calls freeze
// the new price; in-flight calls keep the amount captured at creation.
func (h Handlers) AdminUpdateCallSettings(c *gin.Context) {
	if h.Settings == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "settings not configured"})
		return
	}
	adminUserID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req updateCallSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	next, err := h.Settings.Update(c.Request.Context(), req.CoinPrice, req.DurationSeconds, adminUserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_ = h.Audit.LogAdminAction(c.Request.Context(), adminUserID, "call settings updated", "")
	c.JSON(http.StatusOK, next)
}

// --- helpers ---

const defaultHistoryWindow = 30 * 24 * time.Hour

// parseWindow reads optional RFC3339 from/to query params, defaulting to the
// last 30 days. Writes the error response itself when parsing fails.
func parseWindow(c *gin.Context) (from, to time.Time, ok bool) {
	now := time.Now().UTC()
	from, to = now.Add(-defaultHistoryWindow), now

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	if !to.After(from) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func writeCallError(c *gin.Context, err error) {
	switch calls.Classify(err) {
	case calls.ClassNotFound:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case calls.ClassForbidden:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case calls.ClassBadRequest:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
