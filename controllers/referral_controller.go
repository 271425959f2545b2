package controllers

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/labstack/echo/v4"

	"github.com/hooshchat/hooshchat_backend/models"
	"github.com/hooshchat/hooshchat_backend/services"
)

// ReferralAdmin is the administrative ledger surface, implemented by
// services.ReferralService.
type ReferralAdmin interface {
	EnsureSeeded(ctx context.Context, force bool) error
	List(ctx context.Context) ([]models.ReferralCode, error)
	Upsert(ctx context.Context, code, label string, isActive bool, maxUses int) (*models.ReferralCode, error)
	Update(ctx context.Context, code string, patch models.ReferralCodeUpdate) (*models.ReferralCode, error)
}

// ReferralController exposes the admin referral ledger endpoints
type ReferralController struct {
	referrals ReferralAdmin
	logger    *log.Logger
}

// NewReferralController creates a new referral controller
func NewReferralController(referrals ReferralAdmin) *ReferralController {
	return &ReferralController{
		referrals: referrals,
		logger:    log.New(os.Stdout, "[REFERRAL] ", log.LstdFlags),
	}
}

// ListReferralCodes handles GET /api/referrals
func (rc *ReferralController) ListReferralCodes(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	codes, err := rc.referrals.List(ctx)
	if err != nil {
		rc.logger.Printf("list error: %v", err)
		return rc.ledgerFailure(c, err, "Failed to load referral codes")
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Referral codes retrieved successfully",
		Data:    map[string]interface{}{"codes": codes},
	})
}

// SeedReferralCodes handles POST /api/referrals/seed
func (rc *ReferralController) SeedReferralCodes(c echo.Context) error {
	var req models.ReferralSeedPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	force := parseForceFlag(req.Force)
	if !force {
		force = parseForceFlag(c.QueryParam("force"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	if err := rc.referrals.EnsureSeeded(ctx, force); err != nil {
		rc.logger.Printf("seed error: %v", err)
		return rc.ledgerFailure(c, err, "Failed to seed referral codes")
	}

	codes, err := rc.referrals.List(ctx)
	if err != nil {
		rc.logger.Printf("list after seed error: %v", err)
		return rc.ledgerFailure(c, err, "Failed to load referral codes")
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Referral codes seeded successfully",
		Data: map[string]interface{}{
			"codes":  codes,
			"seeded": true,
			"force":  force,
		},
	})
}

// UpsertReferralCode handles POST /api/referrals
func (rc *ReferralController) UpsertReferralCode(c echo.Context) error {
	var req models.ReferralUpsertPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Referral code is required",
		})
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	maxUses := 0
	if req.MaxUses != nil {
		maxUses = *req.MaxUses
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	record, err := rc.referrals.Upsert(ctx, req.Code, req.Label, isActive, maxUses)
	if err != nil {
		rc.logger.Printf("upsert error: %v", err)
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Unable to save referral code",
		})
	}

	return c.JSON(http.StatusCreated, models.Response{
		Status:  http.StatusCreated,
		Message: "Referral code saved successfully",
		Data:    map[string]interface{}{"code": record},
	})
}

// UpdateReferralCode handles PATCH /api/referrals/:code
func (rc *ReferralController) UpdateReferralCode(c echo.Context) error {
	var patch models.ReferralCodeUpdate
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	record, err := rc.referrals.Update(ctx, c.Param("code"), patch)
	if err != nil {
		rc.logger.Printf("update error: %v", err)
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Unable to update referral code",
		})
	}
	if record == nil {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Referral code not found",
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Referral code updated successfully",
		Data:    map[string]interface{}{"code": record},
	})
}

// GenerateReferralQRCode handles GET /api/referrals/:code/qrcode and renders
// the code as a PNG for printed invitations
func (rc *ReferralController) GenerateReferralQRCode(c echo.Context) error {
	referralCode := c.Param("code")
	if referralCode == "" {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Referral code is required",
		})
	}

	content := "hooshchat://referral/" + referralCode

	qrCode, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to generate QR code",
		})
	}

	qrCode, err = barcode.Scale(qrCode, 200, 200)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to scale QR code",
		})
	}

	buffer := new(bytes.Buffer)
	if err := png.Encode(buffer, qrCode); err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to encode QR code as PNG",
		})
	}

	c.Response().Header().Set("Content-Disposition", "inline; filename=referral-"+referralCode+".png")
	return c.Blob(http.StatusOK, "image/png", buffer.Bytes())
}

func (rc *ReferralController) ledgerFailure(c echo.Context, err error, fallback string) error {
	if errors.Is(err, services.ErrReferralConfig) {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Referral codes are not configured",
		})
	}
	return c.JSON(http.StatusInternalServerError, models.Response{
		Status:  http.StatusInternalServerError,
		Message: fallback,
	})
}

// parseForceFlag accepts the boolean-ish shapes admin tooling sends
func parseForceFlag(v interface{}) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		switch value {
		case "true", "1", "yes":
			return true
		}
	}
	return false
}
