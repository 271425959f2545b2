package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/hooshchat/hooshchat_backend/controllers"
	"github.com/hooshchat/hooshchat_backend/middleware"
)

// RegisterReferralRoutes sets up the admin referral ledger routes
func RegisterReferralRoutes(e *echo.Echo, referralController *controllers.ReferralController) {
	admin := e.Group("/api/referrals")
	admin.Use(middleware.JWTMiddleware())
	admin.Use(middleware.AdminOnly())

	admin.GET("", referralController.ListReferralCodes)
	admin.POST("/seed", referralController.SeedReferralCodes)
	admin.POST("", referralController.UpsertReferralCode)
	admin.PATCH("/:code", referralController.UpdateReferralCode)
	admin.GET("/:code/qrcode", referralController.GenerateReferralQRCode)
}
