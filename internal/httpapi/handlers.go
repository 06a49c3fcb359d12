package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"erlessed-biometric/internal/auth"
	"erlessed-biometric/internal/biometric"
	"erlessed-biometric/internal/rbac"
	"erlessed-biometric/internal/reporting"
	"erlessed-biometric/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Action token scopes accepted by the reset resolution routes.
const (
	ActionApproveReset = "approve_reset"
	ActionRejectReset  = "reject_reset"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Biometric *biometric.Service
	Reporting *reporting.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// Login issues an access token.
//
// NOTE: This is a skeleton-only endpoint for non-production environments. Real systems
// must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	if !rbac.IsKnownRole(req.Role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}
	tok, err := h.Auth.IssueAccess(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

type actionTokenRequest struct {
	Action string `json:"action" binding:"required,oneof=approve_reset reject_reset"`
}

// IssueActionToken hands the caller a short-lived token for one privileged follow-up
// action. RBAC: rbac.CapResolveReset.
func (h Handlers) IssueActionToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req actionTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "action must be approve_reset or reject_reset"})
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())

	tok, err := h.Auth.IssueActionToken(time.Now(), uid, role, req.Action)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	logger.FromGin(c).Info("action token issued",
		zap.String("user_id", uid),
		zap.String("role", role),
		zap.String("action", req.Action),
	)
	c.JSON(http.StatusCreated, gin.H{
		"action_token": tok,
		"action":       req.Action,
		"expires_in":   int(h.Auth.ActionTokenTTL().Seconds()),
	})
}

// --- Biometrics ---

type sampleRequest struct {
	RawSample string `json:"raw_sample" binding:"required"`
	DeviceID  string `json:"device_id"`
}

type resetRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

func (h Handlers) Register(c *gin.Context) {
	var body sampleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "raw_sample required"})
		return
	}
	uid, role := identity(c)

	res := h.Biometric.Register(c.Request.Context(), biometric.RegisterRequest{
		PatientID:    c.Param("patient_id"),
		RawSample:    body.RawSample,
		RegisteredBy: uid,
		Role:         role,
		DeviceID:     body.DeviceID,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
	})
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	c.JSON(statusFor(res.Error), res)
}

// Verify always answers 200 for a scored attempt; a mismatch is a verdict, not a
// transport error.
func (h Handlers) Verify(c *gin.Context) {
	var body sampleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "raw_sample required"})
		return
	}
	uid, role := identity(c)

	res := h.Biometric.Verify(c.Request.Context(), biometric.VerifyRequest{
		PatientID: c.Param("patient_id"),
		RawSample: body.RawSample,
		UserID:    uid,
		UserRole:  role,
		DeviceID:  body.DeviceID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if res.Success || res.VerificationScore != nil {
		c.JSON(http.StatusOK, res)
		return
	}
	c.JSON(statusFor(res.Error), res)
}

func (h Handlers) RequestReset(c *gin.Context) {
	var body resetRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}
	uid, role := identity(c)

	res := h.Biometric.RequestReset(c.Request.Context(), biometric.ResetRequestInput{
		PatientID:   c.Param("patient_id"),
		RequestedBy: uid,
		Role:        role,
		Reason:      body.Reason,
		IPAddress:   c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	c.JSON(statusFor(res.Error), res)
}

// ApproveReset archives the active record. Requires an approve_reset action token.
func (h Handlers) ApproveReset(c *gin.Context) {
	req := h.resolveRequest(c)
	h.resolved(c, req, h.Biometric.ApproveReset(c.Request.Context(), req))
}

// RejectReset rejects pending reset requests. Requires a reject_reset action token.
func (h Handlers) RejectReset(c *gin.Context) {
	req := h.resolveRequest(c)
	h.resolved(c, req, h.Biometric.RejectReset(c.Request.Context(), req))
}

func (h Handlers) resolved(c *gin.Context, req biometric.ResolveResetRequest, res biometric.Result) {
	action, _ := auth.AuthorizedAction(c.Request.Context())
	logger.FromGin(c).Info("reset resolution",
		zap.String("patient_id", req.PatientID),
		zap.String("user_id", req.ResetBy),
		zap.String("action", action),
		zap.Bool("success", res.Success),
	)
	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}
	c.JSON(statusFor(res.Error), res)
}

func (h Handlers) resolveRequest(c *gin.Context) biometric.ResolveResetRequest {
	uid, role := identity(c)
	return biometric.ResolveResetRequest{
		PatientID: c.Param("patient_id"),
		ResetBy:   uid,
		Role:      role,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

func (h Handlers) GetFingerprint(c *gin.Context) {
	info, err := h.Biometric.GetFingerprintInfo(c.Request.Context(), c.Param("patient_id"))
	if err != nil {
		logger.FromGin(c).Error("fingerprint lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "fingerprint lookup failed"})
		return
	}
	if info == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": biometric.MsgNotRegistered})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h Handlers) GetAuditLogs(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	entries, err := h.Biometric.GetAuditLogs(c.Request.Context(), c.Param("patient_id"), limit)
	if err != nil {
		logger.FromGin(c).Error("audit lookup failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "audit lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h Handlers) GetAuditSummary(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	var rng reporting.TimeRange
	for key, dst := range map[string]*time.Time{"from": &rng.From, "to": &rng.To} {
		v := c.Query(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
			return
		}
		*dst = t
	}

	out, err := h.Reporting.VerificationSummary(c.Request.Context(), reporting.VerificationSummaryRequest{
		PatientID: c.Param("patient_id"),
		Range:     rng,
		Limit:     limit,
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid summary request"})
			return
		}
		logger.FromGin(c).Error("audit summary failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "audit summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func identity(c *gin.Context) (userID, role string) {
	userID, _ = auth.UserID(c.Request.Context())
	role, _ = auth.Role(c.Request.Context())
	return userID, role
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

// statusFor maps a service failure message to an HTTP status.
func statusFor(msg string) int {
	switch msg {
	case biometric.MsgInvalidRequest:
		return http.StatusBadRequest
	case biometric.MsgAlreadyRegistered, biometric.MsgRegisteredToOther:
		return http.StatusConflict
	case biometric.MsgNotRegistered, biometric.MsgNoPendingReset:
		return http.StatusNotFound
	case biometric.MsgNotAuthorizedToReset:
		return http.StatusForbidden
	case biometric.MsgTooManyAttempts:
		return http.StatusTooManyRequests
	default:
		return http.StatusServiceUnavailable
	}
}
