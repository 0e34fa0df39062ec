package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/camp-checkin-api/internal/middleware"
	"github.com/noah-isme/camp-checkin-api/internal/models"
)

// Handlers groups the HTTP handlers mounted under the API prefix. Nil
// handlers leave their routes unregistered.
type Handlers struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Attendees *AttendeeHandler
	Payments  *PaymentHandler
	Tickets   *TicketHandler
	CheckIn   *CheckInHandler
	Dashboard *DashboardHandler
	Reports   *ReportHandler
	Metrics   *MetricsHandler
}

// RegisterRoutes mounts every endpoint on api. tokens verifies bearer tokens
// and audit records download events.
func RegisterRoutes(api gin.IRouter, h Handlers, tokens middleware.TokenValidator, audit middleware.AuditWriter) {
	auth := middleware.JWT(tokens)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	if h.Auth != nil {
		api.POST("/auth/login", h.Auth.Login)
		api.POST("/auth/refresh", h.Auth.Refresh)
		api.POST("/auth/logout", auth, h.Auth.Logout)
		api.POST("/auth/change-password", auth, h.Auth.ChangePassword)
		api.GET("/auth/me", auth, h.Auth.Me)
	}

	if h.Attendees != nil {
		api.POST("/registrations", h.Attendees.Register)

		attendees := api.Group("/attendees", auth)
		attendees.GET("", middleware.RequireCapability(models.CapView), h.Attendees.List)
		attendees.POST("", middleware.RequireCapability(models.CapRegisterWalkIn), h.Attendees.RegisterWalkIn)
		attendees.GET("/lookup", middleware.RequireCapability(models.CapView), h.Attendees.Lookup)
		attendees.GET("/:id", middleware.RequireCapability(models.CapView), h.Attendees.Get)
		attendees.PUT("/:id", middleware.RequireCapability(models.CapEditAttendee), h.Attendees.Update)
		attendees.DELETE("/:id", middleware.RequireCapability(models.CapDeleteAttendee), h.Attendees.Delete)
		attendees.GET("/:id/history", middleware.RequireCapability(models.CapEditAttendee), h.Attendees.History)
		if h.Payments != nil {
			attendees.POST("/:id/payments", middleware.RequireCapability(models.CapRecordPayment), h.Payments.Record)
		}
		if h.Tickets != nil {
			attendees.GET("/:id/ticket", middleware.RequireCapability(models.CapView), h.Tickets.Payload)
			attendees.GET("/:id/ticket.png", middleware.RequireCapability(models.CapView), h.Tickets.PNG)
		}
	}

	if h.CheckIn != nil {
		checkin := api.Group("/checkin", auth, middleware.RequireCapability(models.CapCheckIn))
		checkin.POST("/scan", h.CheckIn.Scan)
		checkin.POST("/:id/confirm", h.CheckIn.Confirm)
	}

	if h.Dashboard != nil {
		api.GET("/dashboard", auth, middleware.RequireCapability(models.CapViewDashboard), h.Dashboard.Summary)
	}

	if h.Reports != nil {
		reports := api.Group("/reports", auth, middleware.RequireCapability(models.CapExportReports))
		reports.POST("", h.Reports.Create)
		reports.GET("", h.Reports.List)
		reports.GET("/:id", h.Reports.Status)
		api.GET("/export/:token", middleware.Audit(audit, models.AuditActionReportDownload, "reports"), h.Reports.Download)
	}

	if h.Users != nil {
		users := api.Group("/users", auth)
		users.GET("", admins, h.Users.List)
		users.POST("", admins, h.Users.Create)
		users.GET("/:id", h.Users.Get)
		users.PUT("/:id", admins, h.Users.Update)
		users.DELETE("/:id", admins, h.Users.Delete)
	}

	if h.Metrics != nil {
		api.GET("/metrics/summary", auth, admins, h.Metrics.Summary)
	}
}

// RegisterOps mounts the unauthenticated probes and the Prometheus endpoint
// at the server root.
func RegisterOps(r gin.IRouter, metrics *MetricsHandler) {
	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	r.GET("/metrics", metrics.Prometheus)
}
