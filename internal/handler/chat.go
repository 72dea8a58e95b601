package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/realtime"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// ChatHandler serves the global chat over HTTP and WebSocket.
type ChatHandler struct {
	Repo    *repository.ChatRepo
	Hub     *realtime.ChatHub
	Auth    middleware.Authenticator
	Uploads *service.Uploader
	Log     zerolog.Logger
	Now     func() time.Time
}

func NewChatHandler(repo *repository.ChatRepo, hub *realtime.ChatHub, auth middleware.Authenticator,
	up *service.Uploader, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{Repo: repo, Hub: hub, Auth: auth, Uploads: up, Log: log, Now: time.Now}
}

// ----- DTOs -----

type chatMessageReq struct {
	MessageType   string             `json:"message_type" validate:"omitempty,oneof=text image video audio file"`
	Message       *string            `json:"message" validate:"omitempty,max=4000"`
	Attachments   []model.Attachment `json:"attachments" validate:"omitempty,max=10,dive"`
	ExtraMetadata map[string]any     `json:"extra_metadata"`
}

// wsFrame is a client frame on the chat socket.
type wsFrame struct {
	Type string `json:"type"`
	chatMessageReq
}

func (r chatMessageReq) toModel(userID uint64) (model.ChatMessage, error) {
	m := model.ChatMessage{
		UserID:        userID,
		MessageType:   r.MessageType,
		Attachments:   r.Attachments,
		ExtraMetadata: r.ExtraMetadata,
	}
	if r.Message != nil {
		if s := strings.TrimSpace(*r.Message); s != "" {
			m.Message = &s
		}
	}
	if m.Message == nil && len(m.Attachments) == 0 {
		return m, unprocessable("message", "message or attachments required")
	}
	if m.MessageType == "" {
		m.MessageType = model.MessageText
		if m.Message == nil {
			m.MessageType = m.Attachments[0].Type
		}
	}
	return m, nil
}

func newMessageFrame(m model.ChatMessage) realtime.Frame {
	return realtime.Frame{"type": "new_message", "message": m}
}

func (h *ChatHandler) post(ctx context.Context, m model.ChatMessage) (model.ChatMessage, error) {
	saved, err := h.Repo.Create(ctx, m)
	if err != nil {
		return saved, err
	}
	h.Hub.Broadcast(newMessageFrame(saved))
	return saved, nil
}

// List handles GET /global-chat/messages?before_id=.
func (h *ChatHandler) List(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	before, err := queryUint(c, "before_id")
	if err != nil {
		return err
	}
	var beforeID uint64
	if before != nil {
		beforeID = *before
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.Repo.List(ctx, middleware.UserID(c), beforeID, p.Skip, p.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, p.Skip, p.Limit))
}

// Create handles POST /global-chat/messages.
func (h *ChatHandler) Create(c echo.Context) error {
	var req chatMessageReq
	if err := bind(c, &req); err != nil {
		return err
	}
	m, err := req.toModel(middleware.UserID(c))
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	saved, err := h.post(ctx, m)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, saved)
}

// Get handles GET /global-chat/messages/:id.
func (h *ChatHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	m, err := h.Repo.Get(ctx, id)
	if err != nil {
		return storeError(err, "Message not found")
	}
	if m.DeletedAt != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Message not found")
	}
	return c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /global-chat/messages/:id. Only the sender may
// delete, and every client is told.
func (h *ChatHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.SoftDelete(ctx, id, middleware.UserID(c), h.Now().UTC()); err != nil {
		return storeError(err, "Message not found")
	}
	h.Hub.Broadcast(realtime.Frame{"type": "message_deleted", "message_id": id})
	return c.NoContent(http.StatusNoContent)
}

// Search handles GET /global-chat/search?q=.
func (h *ChatHandler) Search(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return unprocessable("q", "field required")
	}
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, err := h.Repo.Search(ctx, middleware.UserID(c), q, p.Skip, p.Limit)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.ChatMessage{}
	}
	return c.JSON(http.StatusOK, items)
}

// Block handles POST /global-chat/users/:user_id/block.
func (h *ChatHandler) Block(c echo.Context) error {
	target, err := pathID(c, "user_id")
	if err != nil {
		return err
	}
	if target == middleware.UserID(c) {
		return echo.NewHTTPError(http.StatusBadRequest, "You cannot block yourself")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.Block(ctx, middleware.UserID(c), target); err != nil {
		return storeError(err, "User not found")
	}
	return c.JSON(http.StatusOK, success())
}

// Unblock handles DELETE /global-chat/users/:user_id/block.
func (h *ChatHandler) Unblock(c echo.Context) error {
	target, err := pathID(c, "user_id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.Unblock(ctx, middleware.UserID(c), target); err != nil {
		return storeError(err, "User is not blocked")
	}
	return c.JSON(http.StatusOK, success())
}

// Blocked handles GET /global-chat/blocked.
func (h *ChatHandler) Blocked(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, err := h.Repo.Blocked(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.BlockedUser{}
	}
	return c.JSON(http.StatusOK, items)
}

// Clear handles POST /global-chat/clear: every visible message is hidden
// for the caller only.
func (h *ChatHandler) Clear(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	n, err := h.Repo.ClearHistory(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "hidden": n})
}

// Online handles GET /global-chat/online.
func (h *ChatHandler) Online(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"online_count": h.Hub.Online()})
}

// Upload handles POST /global-chat/upload and returns an attachment the
// client can put into a message.
func (h *ChatHandler) Upload(c echo.Context) error {
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	att, err := h.Uploads.SaveAttachment(strconv.FormatUint(middleware.UserID(c), 10), fh)
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusCreated, att)
}

// Socket handles GET /global-chat/ws?token=. Client frames of type
// "message" are stored and broadcast like HTTP posts.
func (h *ChatHandler) Socket(c echo.Context) error {
	u, err := h.Auth.Authenticate(c.Request().Context(), c.QueryParam("token"))
	if err != nil || !u.CanAct() {
		return realtime.Reject(c, "chat", "Invalid token", h.Log)
	}
	cl, err := realtime.Upgrade(c, "chat", h.Log)
	if err != nil {
		return nil
	}
	cl.UserID, cl.IsAdmin = u.ID, u.IsAdmin
	h.Hub.Join(cl, func(online int) realtime.Frame {
		return realtime.Connected(realtime.Frame{"user_id": u.ID, "online_count": online})
	})
	defer h.Hub.Leave(cl)

	cl.ReadLoop(func(data []byte) {
		var f wsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			cl.Send(realtime.ErrorFrame("invalid frame"))
			return
		}
		if f.Type != "message" {
			cl.Send(realtime.ErrorFrame("unknown frame type"))
			return
		}
		if err := c.Validate(&f.chatMessageReq); err != nil {
			cl.Send(realtime.ErrorFrame(errorText(err)))
			return
		}
		m, err := f.toModel(u.ID)
		if err != nil {
			cl.Send(realtime.ErrorFrame(errorText(err)))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := h.post(ctx, m); err != nil {
			h.Log.Error().Err(err).Uint64("user_id", u.ID).Msg("store chat message")
			cl.Send(realtime.ErrorFrame("message not saved"))
		}
	})
	return nil
}

// errorText extracts the detail of an HTTP error for a socket frame.
func errorText(err error) string {
	if he, ok := err.(*echo.HTTPError); ok {
		if s, ok := he.Message.(string); ok {
			return s
		}
	}
	return err.Error()
}
