package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/queue"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// PlaceHandler serves one place kind. The same handler backs the end-user
// routes and the admin routes; methods prefixed with Admin skip the
// approved-only visibility rule.
type PlaceHandler struct {
	Kind    model.PlaceKind
	Places  *repository.PlaceRepo
	Tariffs []TariffSet
	Uploads *service.Uploader
	Events  service.EventPublisher
	Log     zerolog.Logger
	Now     func() time.Time
}

func NewPlaceHandler(places *repository.PlaceRepo, tariffs []TariffSet, up *service.Uploader,
	events service.EventPublisher, log zerolog.Logger) *PlaceHandler {
	if events == nil {
		events = service.NopPublisher{}
	}
	return &PlaceHandler{
		Kind:    places.Kind,
		Places:  places,
		Tariffs: tariffs,
		Uploads: up,
		Events:  events,
		Log:     log.With().Str("kind", places.Kind.Slug).Logger(),
		Now:     time.Now,
	}
}

// ----- DTOs -----

type reviewReq struct {
	Rating  int     `json:"rating" validate:"required,gte=1,lte=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

func (h *PlaceHandler) notFound() error {
	return echo.NewHTTPError(http.StatusNotFound, "Place not found")
}

func (h *PlaceHandler) publish(ctx context.Context, typ string, p model.Place, actor model.User) {
	h.Events.Publish(ctx, service.PlaceEvent(typ, h.Kind, p, actor.ID, actor.IsAdmin))
}

// visible loads a place an end user may see: approved only.
func (h *PlaceHandler) visible(c echo.Context) (model.Place, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return model.Place{}, err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	p, err := h.Places.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.Status != model.StatusApproved) {
		return model.Place{}, h.notFound()
	}
	return p, err
}

// editable loads a place the caller may modify: its creator or any admin.
func (h *PlaceHandler) editable(c echo.Context) (model.Place, model.User, error) {
	u, _ := middleware.CurrentUser(c)
	id, err := pathID(c, "id")
	if err != nil {
		return model.Place{}, u, err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	p, err := h.Places.Get(ctx, id)
	if err != nil {
		return model.Place{}, u, storeError(err, "Place not found")
	}
	if !u.IsAdmin && !p.IsCreator(u.ID) {
		return model.Place{}, u, echo.NewHTTPError(http.StatusForbidden, "Not enough permissions")
	}
	return p, u, nil
}

// filter builds listing predicates from the query string. Kind attributes
// and features are matched by their column name.
func (h *PlaceHandler) filter(c echo.Context, admin bool) (repository.PlaceFilter, error) {
	p, err := pageOf(c)
	if err != nil {
		return repository.PlaceFilter{}, err
	}
	f := repository.PlaceFilter{
		Attributes: map[string]string{},
		Features:   map[string]bool{},
		Query:      c.QueryParam("q"),
		Skip:       p.Skip,
		Limit:      p.Limit,
	}
	if f.Query == "" {
		f.Query = c.QueryParam("search")
	}
	floats := map[string]**float64{
		"rating_min": &f.RatingMin, "rating_max": &f.RatingMax,
		"price_min": &f.PriceMin, "price_max": &f.PriceMax,
		"latitude": &f.Latitude, "longitude": &f.Longitude, "radius_km": &f.RadiusKm,
	}
	for name, dst := range floats {
		if *dst, err = queryFloat(c, name); err != nil {
			return f, err
		}
	}
	if f.RadiusKm != nil && *f.RadiusKm <= 0 {
		return f, unprocessable("radius_km", "must be greater than 0")
	}
	if (f.Latitude != nil || f.Longitude != nil || f.RadiusKm != nil) &&
		(f.Latitude == nil || f.Longitude == nil || f.RadiusKm == nil) {
		return f, unprocessable("radius_km", "latitude, longitude and radius_km must be given together")
	}
	if f.Is24x7, err = queryBool(c, "is_24_7"); err != nil {
		return f, err
	}
	if f.HasPromotions, err = queryBool(c, "has_promotions"); err != nil {
		return f, err
	}
	for _, a := range h.Kind.Attributes {
		if v := queryString(c, a); v != nil {
			f.Attributes[a] = *v
		}
	}
	for _, name := range h.Kind.Features {
		v, err := queryBool(c, name)
		if err != nil {
			return f, err
		}
		if v != nil {
			f.Features[name] = *v
		}
	}

	if !admin {
		f.Statuses = []model.PlaceStatus{model.StatusApproved}
		return f, nil
	}
	if raw := queryString(c, "status"); raw != nil {
		for _, s := range strings.Split(*raw, ",") {
			st := model.PlaceStatus(strings.TrimSpace(s))
			if !st.Valid() {
				return f, unprocessable("status", "must be one of: pending, approved, rejected, archived")
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	return f, nil
}

func (h *PlaceHandler) list(c echo.Context, admin bool) error {
	f, err := h.filter(c, admin)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.Places.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, f.Skip, f.Limit))
}

// List handles GET /<kind>/. End users only ever see approved places.
func (h *PlaceHandler) List(c echo.Context) error { return h.list(c, false) }

// AdminList handles GET /admin/<kind>/ with an optional status filter.
func (h *PlaceHandler) AdminList(c echo.Context) error { return h.list(c, true) }

func (h *PlaceHandler) detail(c echo.Context, p model.Place) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	d := model.PlaceDetail{Place: p, Tariffs: map[string]any{}}
	var err error
	if d.Photos, err = h.Places.ListPhotos(ctx, p.ID); err != nil {
		return err
	}
	if d.Reviews, err = h.Places.ListReviews(ctx, p.ID, repository.ReviewListLimit); err != nil {
		return err
	}
	for _, t := range h.Tariffs {
		items, err := t.ListAny(ctx, p.ID)
		if err != nil {
			return err
		}
		d.Tariffs[t.Key()] = items
	}
	return c.JSON(http.StatusOK, d)
}

// Get handles GET /<kind>/:id.
func (h *PlaceHandler) Get(c echo.Context) error {
	p, err := h.visible(c)
	if err != nil {
		return err
	}
	return h.detail(c, p)
}

// AdminGet handles GET /admin/<kind>/:id.
func (h *PlaceHandler) AdminGet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	p, err := h.Places.Get(ctx, id)
	if err != nil {
		return storeError(err, "Place not found")
	}
	return h.detail(c, p)
}

// Create handles POST /<kind>/ and POST /admin/<kind>/. A user submission
// starts pending, an admin's is approved immediately.
func (h *PlaceHandler) Create(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	fields, err := placeFields(c, h.Kind, u.IsAdmin, true)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	p, err := h.Places.Create(ctx, repository.PlaceInput{Fields: fields}, u.ID, u.IsAdmin, h.Now().UTC())
	if err != nil {
		return err
	}
	if u.IsAdmin {
		h.publish(ctx, queue.EventPlaceApproved, p, u)
	} else {
		h.publish(ctx, queue.EventPlaceSubmitted, p, u)
	}
	h.Log.Info().Uint64("place_id", p.ID).Uint64("user_id", u.ID).Str("status", string(p.Status)).Msg("place created")
	return c.JSON(http.StatusCreated, p)
}

// Update handles PATCH /<kind>/:id for the creator or an admin.
func (h *PlaceHandler) Update(c echo.Context) error {
	p, u, err := h.editable(c)
	if err != nil {
		return err
	}
	fields, err := placeFields(c, h.Kind, u.IsAdmin, false)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	out, err := h.Places.Update(ctx, p.ID, repository.PlaceInput{Fields: fields})
	if err != nil {
		return storeError(err, "Place not found")
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PlaceHandler) moderate(c echo.Context, status model.PlaceStatus, event string) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	p, err := h.Places.SetStatus(ctx, id, status, h.Now().UTC())
	if err != nil {
		return storeError(err, "Place not found")
	}
	h.publish(ctx, event, p, u)
	h.Log.Info().Uint64("place_id", p.ID).Uint64("admin_id", u.ID).Str("status", string(status)).Msg("place moderated")
	return c.JSON(http.StatusOK, p)
}

// Approve handles POST /admin/<kind>/:id/approve.
func (h *PlaceHandler) Approve(c echo.Context) error {
	return h.moderate(c, model.StatusApproved, queue.EventPlaceApproved)
}

// Reject handles POST /admin/<kind>/:id/reject.
func (h *PlaceHandler) Reject(c echo.Context) error {
	return h.moderate(c, model.StatusRejected, queue.EventPlaceRejected)
}

// Delete handles DELETE /admin/<kind>/:id. Photo files go with the rows.
func (h *PlaceHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	urls, err := h.Places.Delete(ctx, id)
	if err != nil {
		return storeError(err, "Place not found")
	}
	for _, u := range urls {
		h.Uploads.DeleteByURL(u)
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- photos -----

// UploadPhoto handles POST /<kind>/:id/photos (multipart "file", optional
// "is_main").
func (h *PlaceHandler) UploadPhoto(c echo.Context) error {
	p, _, err := h.editable(c)
	if err != nil {
		return err
	}
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	main := false
	if raw := strings.TrimSpace(c.FormValue("is_main")); raw != "" {
		if main, err = cast.ToBoolE(raw); err != nil {
			return unprocessable("is_main", "must be a boolean")
		}
	}
	url, err := h.Uploads.SaveImage(h.Kind.Bucket, strconv.FormatUint(p.ID, 10), fh)
	if err != nil {
		return uploadError(err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	photo, err := h.Places.AddPhoto(ctx, p.ID, url, main)
	if err != nil {
		h.Uploads.DeleteByURL(url)
		return storeError(err, "Place not found")
	}
	return c.JSON(http.StatusCreated, photo)
}

// SetMainPhoto handles PATCH /<kind>/:id/photos/:photo_id/main.
func (h *PlaceHandler) SetMainPhoto(c echo.Context) error {
	p, _, err := h.editable(c)
	if err != nil {
		return err
	}
	photoID, err := pathID(c, "photo_id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Places.SetMainPhoto(ctx, p.ID, photoID); err != nil {
		return storeError(err, "Photo not found")
	}
	photos, err := h.Places.ListPhotos(ctx, p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, photos)
}

// DeletePhoto handles DELETE /<kind>/:id/photos/:photo_id.
func (h *PlaceHandler) DeletePhoto(c echo.Context) error {
	p, _, err := h.editable(c)
	if err != nil {
		return err
	}
	photoID, err := pathID(c, "photo_id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	url, err := h.Places.DeletePhoto(ctx, p.ID, photoID)
	if err != nil {
		return storeError(err, "Photo not found")
	}
	h.Uploads.DeleteByURL(url)
	return c.NoContent(http.StatusNoContent)
}

// ----- reviews -----

// ListReviews handles GET /<kind>/:id/reviews.
func (h *PlaceHandler) ListReviews(c echo.Context) error {
	p, err := h.visible(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, err := h.Places.ListReviews(ctx, p.ID, repository.ReviewListLimit)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.Review{}
	}
	return c.JSON(http.StatusOK, items)
}

// CreateReview handles POST /<kind>/:id/reviews. One review per user and
// place; a second one is a 400.
func (h *PlaceHandler) CreateReview(c echo.Context) error {
	p, err := h.visible(c)
	if err != nil {
		return err
	}
	var req reviewReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	rv, err := h.Places.CreateReview(ctx, p.ID, middleware.UserID(c), req.Rating, req.Comment)
	if errors.Is(err, repository.ErrDuplicate) {
		return echo.NewHTTPError(http.StatusBadRequest, "You have already reviewed this place")
	}
	if err != nil {
		return storeError(err, "Place not found")
	}
	return c.JSON(http.StatusCreated, rv)
}

// UpdateReview handles PATCH /<kind>/:id/reviews/:review_id.
func (h *PlaceHandler) UpdateReview(c echo.Context) error {
	p, err := h.visible(c)
	if err != nil {
		return err
	}
	reviewID, err := pathID(c, "review_id")
	if err != nil {
		return err
	}
	var req reviewReq
	if err := bind(c, &req); err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	rv, err := h.Places.UpdateReview(ctx, p.ID, reviewID, u.ID, u.IsAdmin, req.Rating, req.Comment)
	if err != nil {
		return storeError(err, "Review not found")
	}
	return c.JSON(http.StatusOK, rv)
}

// DeleteReview handles DELETE /<kind>/:id/reviews/:review_id.
func (h *PlaceHandler) DeleteReview(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	var (
		p   model.Place
		err error
	)
	if u.IsAdmin {
		p, _, err = h.editable(c)
	} else {
		p, err = h.visible(c)
	}
	if err != nil {
		return err
	}
	reviewID, err := pathID(c, "review_id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Places.DeleteReview(ctx, p.ID, reviewID, u.ID, u.IsAdmin); err != nil {
		return storeError(err, "Review not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- tariffs -----

// ReplaceTariffs returns the handler for PUT /<kind>/:id/<tariff>. Entries
// absent from the payload are kept.
func (h *PlaceHandler) ReplaceTariffs(t TariffSet) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, u, err := h.editable(c)
		if err != nil {
			return err
		}
		out, err := t.replace(c, p.ID, u.ID)
		if err != nil {
			return storeError(err, "Tariff entry not found")
		}
		return c.JSON(http.StatusOK, echo.Map{t.Key(): out})
	}
}

// DeleteTariff returns the handler for DELETE /<kind>/:id/<tariff>/:item_id.
func (h *PlaceHandler) DeleteTariff(t TariffSet) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := h.editable(c)
		if err != nil {
			return err
		}
		itemID, err := pathID(c, "item_id")
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(c)
		defer cancel()
		if err := t.Delete(ctx, p.ID, itemID); err != nil {
			return storeError(err, "Tariff entry not found")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// UploadMenuItemImage handles POST /restaurants/:id/menu-items/:item_id/image.
func (h *PlaceHandler) UploadMenuItemImage(c echo.Context) error {
	p, _, err := h.editable(c)
	if err != nil {
		return err
	}
	itemID, err := pathID(c, "item_id")
	if err != nil {
		return err
	}
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	url, err := h.Uploads.SaveImage(service.BucketMenuItems, strconv.FormatUint(itemID, 10), fh)
	if err != nil {
		return uploadError(err)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	prev, err := repository.SetMenuItemImage(ctx, h.Places.DB, p.ID, itemID, url)
	if err != nil {
		h.Uploads.DeleteByURL(url)
		return storeError(err, "Menu item not found")
	}
	if prev != nil && *prev != url {
		h.Uploads.DeleteByURL(*prev)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": itemID, "image_url": url})
}
