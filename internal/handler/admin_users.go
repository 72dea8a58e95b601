package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// AdminHandler manages user accounts.
type AdminHandler struct {
	Users *repository.UserRepo
	Auth  *service.AuthService
	Log   zerolog.Logger
}

func NewAdminHandler(users *repository.UserRepo, auth *service.AuthService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{Users: users, Auth: auth, Log: log}
}

// ----- DTOs -----

type createAdminReq struct {
	PhoneNumber string  `json:"phone_number" validate:"required,phone"`
	Fullname    *string `json:"fullname" validate:"omitempty,max=255"`
}

type setAdminReq struct {
	UserID  uint64 `json:"user_id" validate:"required"`
	IsAdmin *bool  `json:"is_admin" validate:"required"`
}

type setBlockedReq struct {
	UserID    uint64 `json:"user_id" validate:"required"`
	IsBlocked *bool  `json:"is_blocked" validate:"required"`
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	isAdmin, err := queryBool(c, "is_admin")
	if err != nil {
		return err
	}
	isBlocked, err := queryBool(c, "is_blocked")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	f := repository.UserFilter{Search: c.QueryParam("search"), IsAdmin: isAdmin, IsBlocked: isBlocked, Skip: p.Skip, Limit: p.Limit}
	items, total, err := h.Users.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, p.Skip, p.Limit))
}

// CreateAdmin handles POST /admin/create-admin. The clear password is in
// this response only.
func (h *AdminHandler) CreateAdmin(c echo.Context) error {
	var req createAdminReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	out, err := h.Auth.CreateAdmin(ctx, req.PhoneNumber, req.Fullname)
	switch {
	case errors.Is(err, service.ErrPhoneTaken):
		return echo.NewHTTPError(http.StatusBadRequest, "User with this phone number already exists")
	case err != nil:
		return err
	}
	h.Log.Info().Uint64("user_id", out.User.ID).Str("login", out.Login).Msg("admin created")
	return c.JSON(http.StatusCreated, out)
}

// DeleteUser handles DELETE /admin/user?user_id=.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := queryUint(c, "user_id")
	if err != nil {
		return err
	}
	if id == nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "user_id: field required")
	}
	if *id == middleware.UserID(c) {
		return echo.NewHTTPError(http.StatusBadRequest, "You cannot delete yourself")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Users.DeleteCascade(ctx, *id); err != nil {
		return storeError(err, "User not found")
	}
	h.Log.Info().Uint64("user_id", *id).Uint64("by", middleware.UserID(c)).Msg("user deleted")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "User deleted"})
}

// SetAdmin handles POST /admin/user/admin.
func (h *AdminHandler) SetAdmin(c echo.Context) error {
	var req setAdminReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.UserID == middleware.UserID(c) && !*req.IsAdmin {
		return echo.NewHTTPError(http.StatusBadRequest, "You cannot revoke your own admin rights")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Users.SetAdmin(ctx, req.UserID, *req.IsAdmin); err != nil {
		return storeError(err, "User not found")
	}
	return h.respondUser(c, req.UserID)
}

// SetBlocked handles POST /admin/user/block.
func (h *AdminHandler) SetBlocked(c echo.Context) error {
	var req setBlockedReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.UserID == middleware.UserID(c) {
		return echo.NewHTTPError(http.StatusBadRequest, "You cannot block yourself")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Users.SetBlocked(ctx, req.UserID, *req.IsBlocked); err != nil {
		return storeError(err, "User not found")
	}
	return h.respondUser(c, req.UserID)
}

func (h *AdminHandler) respondUser(c echo.Context, id uint64) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		return storeError(err, "User not found")
	}
	return c.JSON(http.StatusOK, u)
}
