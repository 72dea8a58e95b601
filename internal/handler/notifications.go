package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/realtime"
	"github.com/iliyamo/autopoint-backend/internal/repository"
)

// NotificationHandler serves the inbox, admin broadcasts and the
// notifications socket.
type NotificationHandler struct {
	Repo *repository.NotificationRepo
	Hub  *realtime.NotificationHub
	Auth middleware.Authenticator
	Log  zerolog.Logger
}

func NewNotificationHandler(repo *repository.NotificationRepo, hub *realtime.NotificationHub,
	auth middleware.Authenticator, log zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{Repo: repo, Hub: hub, Auth: auth, Log: log}
}

// ----- DTOs -----

type createNotificationReq struct {
	Title            string  `json:"title" validate:"required,max=255"`
	Message          string  `json:"message" validate:"required"`
	NotificationType string  `json:"notification_type" validate:"omitempty,oneof=system promo support chat"`
	UserID           *uint64 `json:"user_id"`
}

func notificationFrame(n model.Notification) realtime.Frame {
	return realtime.Frame{"type": "notification", "notification": n}
}

// List handles GET /notifications?unread_only=.
func (h *NotificationHandler) List(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	unread, err := queryBool(c, "unread_only")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.Repo.List(ctx, middleware.UserID(c), unread != nil && *unread, p.Skip, p.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, p.Skip, p.Limit))
}

// Stats handles GET /notifications/stats.
func (h *NotificationHandler) Stats(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	st, err := h.Repo.Stats(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// MarkRead handles PATCH /notifications/:id/read.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.MarkRead(ctx, middleware.UserID(c), id); err != nil {
		return storeError(err, "Notification not found")
	}
	return c.JSON(http.StatusOK, success())
}

// MarkAllRead handles POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.MarkAllRead(ctx, middleware.UserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success())
}

// Delete handles DELETE /notifications/:id. A global notification is only
// hidden for the caller.
func (h *NotificationHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.Delete(ctx, middleware.UserID(c), id); err != nil {
		return storeError(err, "Notification not found")
	}
	return c.JSON(http.StatusOK, success())
}

// DeleteAll handles DELETE /notifications.
func (h *NotificationHandler) DeleteAll(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.DeleteAll(ctx, middleware.UserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, success())
}

// AdminCreate handles POST /admin/notifications and pushes the row to the
// connected recipients.
func (h *NotificationHandler) AdminCreate(c echo.Context) error {
	var req createNotificationReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	n, err := h.Repo.Create(ctx, model.Notification{
		UserID: req.UserID, Title: req.Title, Message: req.Message, NotificationType: req.NotificationType,
	})
	if err != nil {
		return err
	}
	var delivered int
	if n.UserID == nil {
		delivered = h.Hub.SendGlobal(notificationFrame(n))
	} else {
		delivered = h.Hub.SendPersonal(*n.UserID, notificationFrame(n))
	}
	h.Log.Info().Uint64("notification_id", n.ID).Bool("global", n.IsGlobal).Int("delivered", delivered).Msg("notification created")
	return c.JSON(http.StatusCreated, n)
}

// AdminList handles GET /admin/notifications.
func (h *NotificationHandler) AdminList(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.Repo.ListAll(ctx, p.Skip, p.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, p.Skip, p.Limit))
}

// AdminDelete handles DELETE /admin/notifications/:id.
func (h *NotificationHandler) AdminDelete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.AdminDelete(ctx, id); err != nil {
		return storeError(err, "Notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// Socket handles GET /notifications/ws/notifications?token=. Without a token
// the socket only receives global notifications; a bad token is refused
// with 1008.
func (h *NotificationHandler) Socket(c echo.Context) error {
	var user *model.User
	if raw := c.QueryParam("token"); raw != "" {
		u, err := h.Auth.Authenticate(c.Request().Context(), raw)
		if err != nil || !u.CanAct() {
			return realtime.Reject(c, "notifications", "Invalid token", h.Log)
		}
		user = &u
	}
	cl, err := realtime.Upgrade(c, "notifications", h.Log)
	if err != nil {
		return nil
	}
	extra := realtime.Frame{"user_id": nil}
	if user != nil {
		cl.UserID, cl.IsAdmin = user.ID, user.IsAdmin
		extra["user_id"] = user.ID
	}
	h.Hub.Register(cl)
	defer h.Hub.Unregister(cl)
	cl.Send(realtime.Connected(extra))
	cl.ReadLoop(nil)
	return nil
}
