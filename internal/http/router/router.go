// Package router assembles the gin engine.
package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/handlers"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/handlers/admin"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/http/middleware"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/auth"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/payments"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/modules/refunds"
)

type Deps struct {
	Logger     *slog.Logger
	DB         *gorm.DB
	Sessions   middleware.SessionResolver
	CookieName string

	Provider payments.Provider
	Webhooks *payments.WebhookService
	Refunds  *refunds.Service

	// Local evidence files are served to admins when set.
	EvidenceDir       string
	EvidenceURLPrefix string
}

func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(d.Logger),
		middleware.ErrorHandler(d.Logger),
		middleware.Recovery(d.Logger),
	)

	r.GET("/healthz", handlers.Healthz(d.DB))

	// signature-authenticated, no session
	wh := handlers.NewWebhookHandler(d.Logger, d.Provider, d.Webhooks)
	r.POST("/webhooks/payments", wh.Handle)

	authed := r.Group("/", middleware.Session(d.Sessions, d.CookieName, d.Logger))

	rh := handlers.NewRefundsHandler(d.Refunds)
	purchaser := authed.Group("/refund-requests", middleware.RequireRole(auth.RoleContractor, auth.RoleAffiliate))
	purchaser.POST("", rh.Create)
	purchaser.GET("", rh.List)
	purchaser.POST("/:id/respond", rh.Respond)
	purchaser.POST("/:id/evidence", rh.UploadEvidence)

	ah := admin.NewRefundsHandler(d.Refunds)
	adm := authed.Group("/admin", middleware.RequireRole(auth.RoleAdmin))
	adm.GET("/refund-requests", ah.List)
	adm.GET("/refund-requests/:id", ah.Detail)
	adm.POST("/refund-requests/:id/approve", ah.Approve)
	adm.POST("/refund-requests/:id/deny", ah.Deny)
	adm.POST("/refund-requests/:id/request-info", ah.RequestInfo)

	if d.EvidenceDir != "" && d.EvidenceURLPrefix != "" {
		authed.Group(d.EvidenceURLPrefix, middleware.RequireRole(auth.RoleAdmin)).
			StaticFS("/", gin.Dir(d.EvidenceDir, false))
	}

	return r
}
