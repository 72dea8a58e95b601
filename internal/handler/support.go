package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/realtime"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// SupportHandler serves support tickets for users and admins.
type SupportHandler struct {
	Repo   *repository.SupportRepo
	Hub    *realtime.SupportHub
	Auth   middleware.Authenticator
	Events service.EventPublisher
	Log    zerolog.Logger
	Now    func() time.Time
}

func NewSupportHandler(repo *repository.SupportRepo, hub *realtime.SupportHub, auth middleware.Authenticator,
	events service.EventPublisher, log zerolog.Logger) *SupportHandler {
	if events == nil {
		events = service.NopPublisher{}
	}
	return &SupportHandler{Repo: repo, Hub: hub, Auth: auth, Events: events, Log: log, Now: time.Now}
}

// ----- DTOs -----

type createTicketReq struct {
	Subject     string               `json:"subject" validate:"required,max=255"`
	Message     string               `json:"message" validate:"required,max=4000"`
	Priority    model.TicketPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Attachments []model.Attachment   `json:"attachments" validate:"omitempty,max=10,dive"`
}

type supportMessageReq struct {
	Message     string             `json:"message" validate:"required,max=4000"`
	Attachments []model.Attachment `json:"attachments" validate:"omitempty,max=10,dive"`
}

type ticketStatusReq struct {
	Status model.TicketStatus `json:"status" validate:"required,oneof=open in_progress resolved closed"`
}

type ticketPriorityReq struct {
	Priority model.TicketPriority `json:"priority" validate:"required,oneof=low medium high urgent"`
}

type ticketAssignReq struct {
	AssignedTo *uint64 `json:"assigned_to"`
}

// ticketFor loads a ticket the caller may see: its owner or any admin. For
// anybody else it does not exist.
func (h *SupportHandler) ticketFor(c echo.Context, u model.User, param string) (model.SupportTicket, error) {
	id, err := pathID(c, param)
	if err != nil {
		return model.SupportTicket{}, err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := h.Repo.Get(ctx, id)
	if err != nil {
		return t, storeError(err, "Ticket not found")
	}
	if !u.IsAdmin && t.UserID != u.ID {
		return t, echo.NewHTTPError(http.StatusNotFound, "Ticket not found")
	}
	return t, nil
}

// Create handles POST /support/tickets.
func (h *SupportHandler) Create(c echo.Context) error {
	var req createTicketReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := h.Repo.Create(ctx, u.ID, req.Subject, req.Message, req.Priority, req.Attachments)
	if err != nil {
		return err
	}
	h.Events.Publish(ctx, service.TicketEvent(t))
	h.Log.Info().Uint64("ticket_id", t.ID).Uint64("user_id", u.ID).Msg("support ticket opened")
	return c.JSON(http.StatusCreated, t)
}

// List handles GET /support/tickets. Users see their own tickets; admins
// see all and may filter by status, priority, assignee and unread_only.
func (h *SupportHandler) List(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	f := repository.TicketFilter{Skip: p.Skip, Limit: p.Limit}
	if s := queryString(c, "status"); s != nil {
		st := model.TicketStatus(*s)
		if !st.Valid() {
			return unprocessable("status", "must be one of: open, in_progress, resolved, closed")
		}
		f.Status = &st
	}
	if u.IsAdmin {
		if s := queryString(c, "priority"); s != nil {
			pr := model.TicketPriority(*s)
			if !pr.Valid() {
				return unprocessable("priority", "must be one of: low, medium, high, urgent")
			}
			f.Priority = &pr
		}
		if f.AssignedTo, err = queryUint(c, "assigned_to"); err != nil {
			return err
		}
		unread, err := queryBool(c, "unread_only")
		if err != nil {
			return err
		}
		f.UnreadOnly = unread != nil && *unread
	} else {
		f.UserID = &u.ID
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.Repo.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, p.Skip, p.Limit))
}

// Get handles GET /support/tickets/:id with the full thread.
func (h *SupportHandler) Get(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	t, err := h.ticketFor(c, u, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	full, err := h.Repo.GetWithMessages(ctx, t.ID)
	if err != nil {
		return storeError(err, "Ticket not found")
	}
	if full.Messages == nil {
		full.Messages = []model.SupportMessage{}
	}
	return c.JSON(http.StatusOK, full)
}

// AddMessage handles POST /support/tickets/:id/messages. The message goes
// to everyone watching the ticket and a notice to the other party.
func (h *SupportHandler) AddMessage(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	t, err := h.ticketFor(c, u, "id")
	if err != nil {
		return err
	}
	var req supportMessageReq
	if err := bind(c, &req); err != nil {
		return err
	}
	fromUser := t.UserID == u.ID
	ctx, cancel := withTimeout(c)
	defer cancel()
	msg, ticket, err := h.Repo.AddMessage(ctx, t.ID, u.ID, fromUser, req.Message, req.Attachments)
	if err != nil {
		return storeError(err, "Ticket not found")
	}
	h.Hub.Deliver(ticket.ID, ticket.UserID, !fromUser,
		realtime.Frame{"type": "new_message", "ticket_id": ticket.ID, "message": msg},
		realtime.Frame{"type": "ticket_update", "ticket_id": ticket.ID, "status": ticket.Status, "message": msg})
	return c.JSON(http.StatusCreated, msg)
}

// MarkRead handles POST /support/tickets/:id/read for the caller's side.
func (h *SupportHandler) MarkRead(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	t, err := h.ticketFor(c, u, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	out, err := h.Repo.MarkRead(ctx, t.ID, t.UserID != u.ID)
	if err != nil {
		return storeError(err, "Ticket not found")
	}
	return c.JSON(http.StatusOK, out)
}

// Close handles POST /support/tickets/:id/close by the owner.
func (h *SupportHandler) Close(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	t, err := h.ticketFor(c, u, "id")
	if err != nil {
		return err
	}
	return h.setStatus(c, t.ID, model.TicketClosed)
}

func (h *SupportHandler) setStatus(c echo.Context, id uint64, s model.TicketStatus) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	out, err := h.Repo.SetStatus(ctx, id, s, h.Now().UTC())
	if err != nil {
		return storeError(err, "Ticket not found")
	}
	h.Hub.SendTicket(out.ID, realtime.Frame{"type": "status_changed", "ticket_id": out.ID, "status": out.Status})
	return c.JSON(http.StatusOK, out)
}

// SetStatus handles PATCH /admin/support/tickets/:id/status.
func (h *SupportHandler) SetStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req ticketStatusReq
	if err := bind(c, &req); err != nil {
		return err
	}
	return h.setStatus(c, id, req.Status)
}

// SetPriority handles PATCH /admin/support/tickets/:id/priority.
func (h *SupportHandler) SetPriority(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req ticketPriorityReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	out, err := h.Repo.SetPriority(ctx, id, req.Priority)
	if err != nil {
		return storeError(err, "Ticket not found")
	}
	return c.JSON(http.StatusOK, out)
}

// Assign handles PATCH /admin/support/tickets/:id/assign. A null assignee
// clears it.
func (h *SupportHandler) Assign(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req ticketAssignReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	out, err := h.Repo.Assign(ctx, id, req.AssignedTo)
	if err != nil {
		return storeError(err, "Ticket not found")
	}
	return c.JSON(http.StatusOK, out)
}

// Delete handles DELETE /admin/support/tickets/:id.
func (h *SupportHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Repo.Delete(ctx, id); err != nil {
		return storeError(err, "Ticket not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats handles GET /admin/support/stats.
func (h *SupportHandler) Stats(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	st, err := h.Repo.Stats(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// Socket handles GET /support/ws/ticket/:ticket_id?token=. Only the owner
// and admins may join; everybody else is closed with 1008.
func (h *SupportHandler) Socket(c echo.Context) error {
	u, err := h.Auth.Authenticate(c.Request().Context(), c.QueryParam("token"))
	if err != nil || !u.CanAct() {
		return realtime.Reject(c, "support", "Invalid token", h.Log)
	}
	t, err := h.ticketFor(c, u, "ticket_id")
	if err != nil {
		return realtime.Reject(c, "support", "Access denied", h.Log)
	}
	cl, err := realtime.Upgrade(c, "support", h.Log)
	if err != nil {
		return nil
	}
	cl.UserID, cl.IsAdmin = u.ID, u.IsAdmin
	h.Hub.Join(t.ID, cl)
	defer h.Hub.Leave(t.ID, cl)
	cl.Send(realtime.Connected(realtime.Frame{"ticket_id": t.ID, "user_id": u.ID, "is_admin": u.IsAdmin}))
	cl.ReadLoop(nil)
	return nil
}
