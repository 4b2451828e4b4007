package httpapi

import (
	"incident-portal/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts the /v1 API on r. authMW verifies access tokens; submitMW
// guards public report submission (rate limiting).
func Register(r gin.IRouter, h Handlers, authMW, submitMW gin.HandlerFunc) {
	v1 := r.Group("/v1")

	// public
	v1.POST("/reports", submitMW, h.SubmitReport)
	v1.GET("/reports/track/:serial", h.TrackReport)

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/password-setup", h.PasswordSetup)
	}

	// authenticated
	protected := v1.Group("")
	protected.Use(authMW)
	protected.GET("/me", h.Me)

	admin := protected.Group("/admin")
	admin.Use(AdminRead()...)
	{
		admin.GET("/reports", h.ListReports)
		admin.GET("/reports/:id", h.GetReport)
		admin.GET("/reports/:id/trail", h.ReportTrail)
		admin.POST("/reports/:id/assign", h.AssignReport)

		admin.POST("/assignments/:id/resolve", h.ResolveAssignment)
		admin.POST("/assignments/:id/return", h.ReturnAssignment)

		admin.GET("/commanders", h.ListCommanders)
		admin.POST("/commanders", h.RegisterCommander)
		admin.POST("/commanders/:id/resend-setup", h.ResendSetup)

		admin.GET("/stats", h.Stats)
		admin.GET("/stream", rbac.RequireAnyRole(rbac.RoleAdmin), h.Stream)
	}

	commander := protected.Group("/commander")
	commander.Use(CommanderOnly()...)
	{
		commander.GET("/assignments", h.MyAssignments)
		commander.POST("/assignments/:id/respond", h.RespondAssignment)
		commander.POST("/assignments/:id/resolution", h.SubmitResolution)
		commander.POST("/assignments/:id/resubmit", h.ResubmitResolution)
	}
}
