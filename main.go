package main

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/hooshchat/hooshchat_backend/config"
	"github.com/hooshchat/hooshchat_backend/controllers"
	"github.com/hooshchat/hooshchat_backend/middleware"
	"github.com/hooshchat/hooshchat_backend/repositories"
	"github.com/hooshchat/hooshchat_backend/routes"
	"github.com/hooshchat/hooshchat_backend/services"
	"github.com/hooshchat/hooshchat_backend/utils"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis (optional, backs the OTP throttle)
	redisClient := config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	e.Validator = &CustomValidator{validator: validator.New()}

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Initialize repositories
	otpRepo := repositories.NewOtpRepository(client)
	referralRepo := repositories.NewReferralRepository(client)
	userRepo := repositories.NewUserRepository(client)

	// Initialize services
	smsService := utils.NewSMSService()
	otpService := services.NewOtpService(otpRepo, smsService)
	referralService := services.NewReferralService(referralRepo)

	// Initialize controllers
	otpController := controllers.NewOtpController(otpService, referralService, userRepo, redisClient)
	referralController := controllers.NewReferralController(referralService)

	// Register routes
	routes.RegisterAuthRoutes(e, otpController)
	routes.RegisterReferralRoutes(e, referralController)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}
