package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/hooshchat/hooshchat_backend/controllers"
)

// RegisterAuthRoutes sets up the public phone authentication routes
func RegisterAuthRoutes(e *echo.Echo, otpController *controllers.OtpController) {
	e.POST("/api/auth/otp/request", otpController.RequestOTP)
	e.POST("/api/auth/otp/verify", otpController.VerifyOTP)
}
