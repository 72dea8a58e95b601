package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autopoint-backend/internal/handler"
	"github.com/iliyamo/autopoint-backend/internal/middleware"
)

// Socket routes authenticate from the token query parameter inside the
// handler, so they carry no guard.

func registerNotifications(api *echo.Group, g *middleware.Guard, h *handler.NotificationHandler) {
	api.GET("/notifications/ws/notifications", h.Socket)

	n := api.Group("/notifications", g.Active())
	n.GET("", h.List)
	n.GET("/stats", h.Stats)
	n.PATCH("/:id/read", h.MarkRead)
	n.POST("/read-all", h.MarkAllRead)
	n.DELETE("/:id", h.Delete)
	n.DELETE("", h.DeleteAll)
}

func registerChat(api *echo.Group, g *middleware.Guard, h *handler.ChatHandler) {
	api.GET("/global-chat/ws", h.Socket)

	c := api.Group("/global-chat", g.Active())
	c.GET("/messages", h.List)
	c.POST("/messages", h.Create)
	c.GET("/messages/:id", h.Get)
	c.DELETE("/messages/:id", h.Delete)
	c.GET("/search", h.Search)
	c.POST("/users/:user_id/block", h.Block)
	c.DELETE("/users/:user_id/block", h.Unblock)
	c.GET("/blocked", h.Blocked)
	c.POST("/clear", h.Clear)
	c.GET("/online", h.Online)
	c.POST("/upload", h.Upload)
}

func registerSupport(api *echo.Group, g *middleware.Guard, h *handler.SupportHandler) {
	api.GET("/support/ws/ticket/:ticket_id", h.Socket)

	s := api.Group("/support/tickets", g.Active())
	s.POST("", h.Create)
	s.GET("", h.List)
	s.GET("/:id", h.Get)
	s.POST("/:id/messages", h.AddMessage)
	s.POST("/:id/read", h.MarkRead)
	s.POST("/:id/close", h.Close)
}

func registerAds(api *echo.Group, d Deps, h *handler.AdHandler) {
	optional := d.Guard.Optional()
	api.GET("/advertisements", h.List, middleware.ResponseCache(d.Cfg.Cache, d.Redis, d.Log))
	api.POST("/advertisements/:id/view", h.View, optional)
	api.POST("/advertisements/:id/click", h.Click, optional)

	a := api.Group("/admin/advertisements", d.Guard.Admin())
	a.GET("", h.AdminList)
	a.POST("", h.Create)
	a.GET("/statistics", h.Statistics)
	a.POST("/upload-image", h.UploadImage)
	a.GET("/:id", h.AdminGet)
	a.PATCH("/:id", h.Update)
	a.DELETE("/:id", h.Delete)
}
