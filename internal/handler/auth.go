package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// AuthHandler serves the SMS sign-in flow, admin login and logout.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(a *service.AuthService) *AuthHandler {
	return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type phoneReq struct {
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

type verifyReq struct {
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
	Code        string `json:"code" validate:"required,len=4,numeric"`
}

type adminLoginReq struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// SendCode handles POST /auth/send-code.
func (h *AuthHandler) SendCode(c echo.Context) error {
	var req phoneReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Auth.SendCode(ctx, req.PhoneNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// VerifyCode handles POST /auth/verify-code. A wrong or expired code is a
// 200 with is_verified=false.
func (h *AuthHandler) VerifyCode(c echo.Context) error {
	var req verifyReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	res, err := h.Auth.VerifyCode(ctx, req.PhoneNumber, req.Code)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// CheckRegistration handles POST /auth/check-registration.
func (h *AuthHandler) CheckRegistration(c echo.Context) error {
	var req phoneReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	ok, err := h.Auth.CheckRegistration(ctx, req.PhoneNumber)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"phone_number": req.PhoneNumber, "is_registered": ok})
}

// AdminLogin handles POST /auth/admin/login.
func (h *AuthHandler) AdminLogin(c echo.Context) error {
	var req adminLoginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	tok, _, err := h.Auth.AdminLogin(ctx, req.Login, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Incorrect login or password")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResp{
		AccessToken: tok.Token,
		TokenType:   "bearer",
		ExpiresIn:   h.Auth.Cfg.AccessTokenTTLSeconds(),
	})
}

// Logout handles POST /auth/logout and /auth/admin/logout. Repeating it is
// harmless.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, middleware.CurrentToken(c), middleware.UserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Successfully logged out"})
}
