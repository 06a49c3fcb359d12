package httpapi

import (
	"erlessed-biometric/internal/auth"
	"erlessed-biometric/internal/rbac"

	"github.com/gin-gonic/gin"
)

// RouteOptions toggles environment-dependent routes.
type RouteOptions struct {
	// EnableLogin exposes the skeleton POST /v1/auth/login. Never in production.
	EnableLogin bool
}

// Register wires the /v1 API. Keep this free of business logic; handlers delegate to
// internal modules.
func Register(r gin.IRouter, h Handlers, opts RouteOptions) {
	v1 := r.Group("/v1")

	if opts.EnableLogin {
		v1.POST("/auth/login", h.Login)
	}

	protected := v1.Group("")
	protected.Use(auth.RequireAccessToken(h.Auth))

	protected.POST("/action-tokens",
		rbac.RequireAnyRole(rbac.RoleCareManager, rbac.RoleInsurer),
		h.IssueActionToken,
	)

	bio := protected.Group("/biometrics/:patient_id")
	{
		bio.POST("/register", rbac.RequireCapability(rbac.CapRegister), h.Register)
		bio.POST("/verify", rbac.RequireCapability(rbac.CapVerify), h.Verify)
		bio.POST("/reset-requests", rbac.RequireCapability(rbac.CapRequestReset), h.RequestReset)

		// The service re-checks the capability; the action token binds the call to a
		// prior, deliberate request by the same user.
		bio.POST("/reset-approvals",
			rbac.RequireCapability(rbac.CapResolveReset),
			auth.RequireActionToken(h.Auth, ActionApproveReset),
			h.ApproveReset,
		)
		bio.POST("/reset-rejections",
			rbac.RequireCapability(rbac.CapResolveReset),
			auth.RequireActionToken(h.Auth, ActionRejectReset),
			h.RejectReset,
		)

		bio.GET("/fingerprint", rbac.RequireCapability(rbac.CapVerify), h.GetFingerprint)
		bio.GET("/audit-logs", rbac.RequireCapability(rbac.CapViewAudit), h.GetAuditLogs)
		bio.GET("/audit-summary", rbac.RequireCapability(rbac.CapViewAudit), h.GetAuditSummary)
	}
}
