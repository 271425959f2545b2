package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hooshchat/hooshchat_backend/middleware"
	"github.com/hooshchat/hooshchat_backend/models"
	"github.com/hooshchat/hooshchat_backend/services"
	"github.com/hooshchat/hooshchat_backend/utils"
)

// OtpIssuer is the challenge side of the flow, implemented by
// services.OtpService.
type OtpIssuer interface {
	Issue(ctx context.Context, phone, purpose, referralCode string) (time.Duration, error)
	Verify(ctx context.Context, phone, purpose, code string) (*services.VerifyResult, error)
	TTL() time.Duration
}

// ReferralGate is the ledger side of the flow, implemented by
// services.ReferralService.
type ReferralGate interface {
	Validate(ctx context.Context, code string) (*models.ReferralCode, error)
	RecordUsage(ctx context.Context, code string) (*models.ReferralCode, error)
}

// UserStore is the account collaborator, implemented by
// repositories.UserRepository.
type UserStore interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// OtpController handles the phone OTP login/registration flow
type OtpController struct {
	otp       OtpIssuer
	referrals ReferralGate
	users     UserStore
	redis     *redis.Client
	logger    *log.Logger
}

// NewOtpController creates a new OTP controller
func NewOtpController(otp OtpIssuer, referrals ReferralGate, users UserStore, rdb *redis.Client) *OtpController {
	return &OtpController{
		otp:       otp,
		referrals: referrals,
		users:     users,
		redis:     rdb,
		logger:    log.New(os.Stdout, "[OTP] ", log.LstdFlags),
	}
}

func resolveFlow(flow string) string {
	if flow == models.OtpPurposeRegister {
		return models.OtpPurposeRegister
	}
	return models.OtpPurposeLogin
}

// RequestOTP handles POST /api/auth/otp/request. On the register flow the
// referral code is validated before any challenge is issued; on the login
// flow the account must already exist.
func (oc *OtpController) RequestOTP(c echo.Context) error {
	var req models.OtpRequestPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	flow := resolveFlow(req.Flow)
	phone := utils.NormalizePhone(req.Phone)
	if !utils.IsValidPhone(phone) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Phone number must be a valid 11-digit mobile number",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := utils.ValidateOTPAttempts(phone, oc.redis); err != nil {
		if errors.Is(err, utils.ErrTooManyOtpRequests) {
			return c.JSON(http.StatusTooManyRequests, models.Response{
				Status:  http.StatusTooManyRequests,
				Message: "Too many verification requests. Try again later.",
			})
		}
		// Throttle backend being down should not block logins
		oc.logger.Printf("OTP throttle check failed for %s: %v", phone, err)
	}

	referralCode := utils.NormalizeCode(req.ReferralCode)

	if flow == models.OtpPurposeRegister {
		if referralCode == "" {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Referral code is required",
			})
		}

		referral, err := oc.referrals.Validate(ctx, referralCode)
		if err != nil {
			return oc.referralFailure(c, err)
		}
		if referral == nil {
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "Referral code is invalid or inactive",
			})
		}

		existing, err := oc.users.FindByPhone(ctx, phone)
		if err != nil {
			oc.logger.Printf("account lookup failed for %s: %v", phone, err)
			return oc.internalError(c)
		}
		if existing != nil {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "This mobile number is already registered. Please log in instead.",
			})
		}
	} else {
		user, err := oc.users.FindByPhone(ctx, phone)
		if err != nil {
			oc.logger.Printf("account lookup failed for %s: %v", phone, err)
			return oc.internalError(c)
		}
		if user == nil {
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "Account not found. Please register first.",
				Data:    map[string]string{"redirect": "register"},
			})
		}
	}

	ttl, err := oc.otp.Issue(ctx, phone, flow, referralCode)
	if err != nil {
		if errors.Is(err, services.ErrSmsDispatch) {
			return c.JSON(http.StatusServiceUnavailable, models.Response{
				Status:  http.StatusServiceUnavailable,
				Message: "Unable to send verification code. Try again shortly.",
			})
		}
		oc.logger.Printf("OTP issue failed for %s (%s): %v", phone, flow, err)
		return oc.internalError(c)
	}

	return c.JSON(http.StatusOK, models.OtpRequestResponse{
		Message:     "OTP sent",
		ExpiresInMs: ttl.Milliseconds(),
	})
}

// VerifyOTP handles POST /api/auth/otp/verify. A correct code consumes the
// challenge; on the register flow it then creates the account and records the
// referral redemption, in that order, so a failed creation never burns a
// redemption.
func (oc *OtpController) VerifyOTP(c echo.Context) error {
	var req models.OtpVerifyPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	flow := resolveFlow(req.Flow)
	phone := utils.NormalizePhone(req.Phone)
	if !utils.IsValidPhone(phone) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Phone number must be a valid 11-digit mobile number",
		})
	}
	if !utils.IsValidOtp(strings.TrimSpace(req.OTP)) {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Verification code must be 5 digits",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	result, err := oc.otp.Verify(ctx, phone, flow, strings.TrimSpace(req.OTP))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOtpNotFound):
			return c.JSON(http.StatusNotFound, models.Response{
				Status:  http.StatusNotFound,
				Message: "No OTP request found. Please request a code.",
			})
		case errors.Is(err, services.ErrOtpConsumed):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "OTP already used. Request a new code.",
			})
		case errors.Is(err, services.ErrOtpExpired):
			return c.JSON(http.StatusBadRequest, models.Response{
				Status:  http.StatusBadRequest,
				Message: "OTP expired. Please request a new code.",
			})
		case errors.Is(err, services.ErrOtpInvalid):
			return c.JSON(http.StatusUnauthorized, models.Response{
				Status:  http.StatusUnauthorized,
				Message: "Invalid OTP",
			})
		default:
			oc.logger.Printf("OTP verify failed for %s (%s): %v", phone, flow, err)
			return oc.internalError(c)
		}
	}

	if flow == models.OtpPurposeLogin {
		return oc.finishLogin(c, ctx, phone)
	}
	return oc.finishRegistration(c, ctx, phone, result.ReferralCode)
}

func (oc *OtpController) finishLogin(c echo.Context, ctx context.Context, phone string) error {
	user, err := oc.users.FindByPhone(ctx, phone)
	if err != nil {
		oc.logger.Printf("account lookup failed for %s: %v", phone, err)
		return oc.internalError(c)
	}
	if user == nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "User not found",
		})
	}

	updated, err := oc.users.Update(ctx, user.ID, bson.M{"phoneVerified": true})
	if err != nil {
		oc.logger.Printf("account update failed for %s: %v", phone, err)
		updated = user
	}

	return oc.issueSession(c, updated)
}

func (oc *OtpController) finishRegistration(c echo.Context, ctx context.Context, phone, referralCode string) error {
	referral, err := oc.referrals.Validate(ctx, referralCode)
	if err != nil {
		return oc.referralFailure(c, err)
	}
	if referral == nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Referral code is invalid or inactive",
		})
	}

	count, err := oc.users.Count(ctx)
	if err != nil {
		oc.logger.Printf("account count failed: %v", err)
		return oc.internalError(c)
	}

	role := models.RoleUser
	if count == 0 {
		role = models.RoleAdmin
	}

	user := &models.User{
		Phone:            phone,
		Username:         phone,
		Provider:         "phone",
		Role:             role,
		IsActive:         true,
		PhoneVerified:    true,
		ReferralCodeUsed: referral.Code,
	}
	if err := oc.users.Create(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return c.JSON(http.StatusConflict, models.Response{
				Status:  http.StatusConflict,
				Message: "This mobile number is already registered. Please log in instead.",
			})
		}
		oc.logger.Printf("account creation failed for %s: %v", phone, err)
		return oc.internalError(c)
	}

	// The account exists durably, so the redemption may now be recorded.
	// The OTP is already consumed either way; a failure here costs one
	// uncounted redemption, not a broken registration.
	if _, err := oc.referrals.RecordUsage(ctx, referral.Code); err != nil {
		oc.logger.Printf("failed to record referral usage for %s: %v", referral.Code, err)
	}

	ownCode, err := utils.GenerateAccountReferralCode()
	if err != nil {
		oc.logger.Printf("failed to generate account referral code: %v", err)
	} else {
		if updated, err := oc.users.Update(ctx, user.ID, bson.M{"referralCode": ownCode}); err == nil {
			user = updated
		} else {
			oc.logger.Printf("failed to assign account referral code: %v", err)
		}
	}

	oc.logger.Printf("registered %s via referral %s (role=%s)", phone, referral.Code, role)
	return oc.issueSession(c, user)
}

func (oc *OtpController) issueSession(c echo.Context, user *models.User) error {
	if user.TwoFactorEnabled {
		tempToken, err := middleware.Generate2FATempToken(user.ID.Hex())
		if err != nil {
			oc.logger.Printf("failed to generate 2FA temp token: %v", err)
			return oc.internalError(c)
		}
		return c.JSON(http.StatusOK, models.TwoFAPendingResponse{
			TwoFAPending: true,
			TempToken:    tempToken,
		})
	}

	token, err := middleware.GenerateJWT(user.ID.Hex(), user.Phone, user.Role)
	if err != nil {
		oc.logger.Printf("failed to generate session token: %v", err)
		return oc.internalError(c)
	}

	return c.JSON(http.StatusOK, models.AuthResponse{
		Token: token,
		User:  user,
	})
}

func (oc *OtpController) referralFailure(c echo.Context, err error) error {
	if errors.Is(err, services.ErrReferralConfig) {
		oc.logger.Printf("referral manifest error: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Referral codes are not configured",
		})
	}
	oc.logger.Printf("referral validation failed: %v", err)
	return oc.internalError(c)
}

func (oc *OtpController) internalError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, models.Response{
		Status:  http.StatusInternalServerError,
		Message: "Something went wrong",
	})
}
