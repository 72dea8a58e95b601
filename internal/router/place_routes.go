package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autopoint-backend/internal/handler"
	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

// registerPlaces mounts the end-user router /<slug> and the admin router
// /admin/<slug> for one place kind.
func registerPlaces(api *echo.Group, g *middleware.Guard, h *handler.PlaceHandler) {
	slug := "/" + h.Kind.Slug

	optional := g.Optional()
	pub := api.Group(slug)
	pub.GET("", h.List, optional)
	pub.GET("/:id", h.Get, optional)
	pub.GET("/:id/reviews", h.ListReviews, optional)

	u := api.Group(slug, g.Active())
	u.POST("", h.Create)
	u.PATCH("/:id", h.Update)
	u.POST("/:id/reviews", h.CreateReview)
	u.PATCH("/:id/reviews/:review_id", h.UpdateReview)
	u.DELETE("/:id/reviews/:review_id", h.DeleteReview)
	mountMedia(u, h)

	a := api.Group("/admin"+slug, g.Admin())
	a.GET("", h.AdminList)
	a.GET("/:id", h.AdminGet)
	a.POST("", h.Create)
	a.PATCH("/:id", h.Update)
	a.DELETE("/:id", h.Delete)
	a.POST("/:id/approve", h.Approve)
	a.POST("/:id/reject", h.Reject)
	a.DELETE("/:id/reviews/:review_id", h.DeleteReview)
	mountMedia(a, h)
}

// mountMedia adds the photo and tariff routes shared by both routers.
// Ownership is checked in the handler.
func mountMedia(r *echo.Group, h *handler.PlaceHandler) {
	r.POST("/:id/photos", h.UploadPhoto)
	r.PATCH("/:id/photos/:photo_id/main", h.SetMainPhoto)
	r.DELETE("/:id/photos/:photo_id", h.DeletePhoto)
	for _, t := range h.Tariffs {
		seg := "/:id/" + handler.Segment(t)
		r.PUT(seg, h.ReplaceTariffs(t))
		r.DELETE(seg+"/:item_id", h.DeleteTariff(t))
	}
	if h.Kind.Slug == model.RestaurantKind.Slug {
		r.POST("/:id/menu-items/:item_id/image", h.UploadMenuItemImage)
	}
}
