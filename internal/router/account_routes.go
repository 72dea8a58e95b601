package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autopoint-backend/internal/handler"
	"github.com/iliyamo/autopoint-backend/internal/middleware"
)

func registerAuth(api *echo.Group, g *middleware.Guard, h *handler.AuthHandler) {
	a := api.Group("/auth")
	a.POST("/send-code", h.SendCode)
	a.POST("/verify-code", h.VerifyCode)
	a.POST("/check-registration", h.CheckRegistration)
	a.POST("/admin/login", h.AdminLogin)
	// blocked users may still end their session
	a.POST("/logout", h.Logout, g.Authenticated())
	a.POST("/admin/logout", h.Logout, g.Admin())
}

func registerAdmin(api *echo.Group, g *middleware.Guard, h *handler.AdminHandler,
	n *handler.NotificationHandler, s *handler.SupportHandler) {
	// create-admin is open until the first admin exists
	api.POST("/admin/create-admin", h.CreateAdmin, g.AdminBootstrap())

	a := api.Group("/admin", g.Admin())
	a.GET("/users", h.ListUsers)
	a.DELETE("/user", h.DeleteUser)
	a.POST("/user/admin", h.SetAdmin)
	a.POST("/user/block", h.SetBlocked)

	a.GET("/notifications", n.AdminList)
	a.POST("/notifications", n.AdminCreate)
	a.DELETE("/notifications/:id", n.AdminDelete)

	a.GET("/support/stats", s.Stats)
	a.PATCH("/support/tickets/:id/status", s.SetStatus)
	a.PATCH("/support/tickets/:id/priority", s.SetPriority)
	a.PATCH("/support/tickets/:id/assign", s.Assign)
	a.DELETE("/support/tickets/:id", s.Delete)
}

func registerProfile(api *echo.Group, g *middleware.Guard, h *handler.ProfileHandler) {
	p := api.Group("/profile", g.Active())
	p.GET("", h.Get)
	p.PATCH("/name", h.UpdateName)
	p.PATCH("/email", h.UpdateEmail)
	p.PATCH("/notifications", h.UpdateNotifications)
	p.POST("/avatar", h.UploadAvatar)
	p.POST("/passport", h.UploadPassport)
	p.POST("/driving-license", h.UploadDrivingLicense)
	p.GET("/favorites", h.ListFavorites)
	p.POST("/favorites", h.AddFavorite)
	p.DELETE("/favorites/:favorite_type/:place_id", h.RemoveFavorite)
	p.GET("/achievements", h.Achievements)
	p.GET("/statistics", h.Statistics)
	p.GET("/transactions", h.Transactions)
}
