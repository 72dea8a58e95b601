package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// AdHandler serves ad placements, impression counters and the admin
// console.
type AdHandler struct {
	Ads     *repository.AdRepo
	Uploads *service.Uploader
	// Cache holds the cached public listing; writes drop CachePrefix.
	Cache       *redis.Client
	CachePrefix string
	Log         zerolog.Logger
	Now         func() time.Time
}

func NewAdHandler(ads *repository.AdRepo, up *service.Uploader, cache *redis.Client, prefix string, log zerolog.Logger) *AdHandler {
	return &AdHandler{Ads: ads, Uploads: up, Cache: cache, CachePrefix: prefix, Log: log, Now: time.Now}
}

var adSchema = map[string]fieldKind{
	"title":           textField,
	"description":     nullableText,
	"image_url":       textField,
	"link_url":        nullableText,
	"ad_type":         textField,
	"position":        textField,
	"status":          textField,
	"is_active":       boolField,
	"start_date":      timeField,
	"end_date":        timeField,
	"priority":        intField,
	"display_order":   intField,
	"target_audience": nullableText,
}

var adRequired = []string{"title", "image_url", "position"}

// adFields decodes and checks an admin create or patch body.
func adFields(c echo.Context, create bool) (map[string]any, error) {
	var required []string
	if create {
		required = adRequired
	}
	f, err := decodeFields(c, func(name string) (fieldKind, bool) {
		fk, ok := adSchema[name]
		return fk, ok
	}, required)
	if err != nil {
		return nil, err
	}
	if p, ok := f["position"]; ok && !model.ValidAdPosition(p.(string)) {
		return nil, unprocessable("position", "must be one of: "+strings.Join(model.AdPositions, ", "))
	}
	if s, ok := f["status"]; ok && !model.ValidAdStatus(s.(string)) {
		return nil, unprocessable("status", "must be one of: "+strings.Join(model.AdStatuses, ", "))
	}
	start, _ := f["start_date"].(time.Time)
	end, _ := f["end_date"].(time.Time)
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, unprocessable("end_date", "must not be before start_date")
	}
	return f, nil
}

func (h *AdHandler) invalidate(ctx context.Context) {
	if err := middleware.InvalidateCache(ctx, h.Cache, h.CachePrefix); err != nil {
		h.Log.Warn().Err(err).Msg("ads: cache invalidation failed")
	}
}

// List handles GET /advertisements/?position=&target_audience=.
func (h *AdHandler) List(c echo.Context) error {
	position := strings.TrimSpace(c.QueryParam("position"))
	if position == "" {
		return unprocessable("position", "field required")
	}
	if !model.ValidAdPosition(position) {
		return unprocessable("position", "must be one of: "+strings.Join(model.AdPositions, ", "))
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, err := h.Ads.ListForPosition(ctx, position, queryString(c, "target_audience"), h.Now().UTC())
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.Advertisement{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *AdHandler) event(c echo.Context) (model.AdEvent, error) {
	id, err := pathID(c, "id")
	if err != nil {
		return model.AdEvent{}, err
	}
	ev := model.AdEvent{
		AdvertisementID: id,
		IPAddress:       middleware.ClientIP(c.Request()),
		UserAgent:       c.Request().UserAgent(),
	}
	if u, ok := middleware.CurrentUser(c); ok {
		ev.UserID = &u.ID
	}
	return ev, nil
}

// View handles POST /advertisements/:id/view.
func (h *AdHandler) View(c echo.Context) error {
	ev, err := h.event(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Ads.RecordView(ctx, ev); err != nil {
		return storeError(err, "Advertisement not found")
	}
	return c.JSON(http.StatusOK, success())
}

// Click handles POST /advertisements/:id/click.
func (h *AdHandler) Click(c echo.Context) error {
	ev, err := h.event(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Ads.RecordClick(ctx, ev); err != nil {
		return storeError(err, "Advertisement not found")
	}
	return c.JSON(http.StatusOK, success())
}

// AdminList handles GET /admin/advertisements/ with position, status and
// is_active filters.
func (h *AdHandler) AdminList(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	f := repository.AdFilter{Position: queryString(c, "position"), Status: queryString(c, "status"), Skip: p.Skip, Limit: p.Limit}
	if f.IsActive, err = queryBool(c, "is_active"); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.Ads.List(ctx, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, p.Skip, p.Limit))
}

// AdminGet handles GET /admin/advertisements/:id.
func (h *AdHandler) AdminGet(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	a, err := h.Ads.Get(ctx, id)
	if err != nil {
		return storeError(err, "Advertisement not found")
	}
	return c.JSON(http.StatusOK, a)
}

// Create handles POST /admin/advertisements/.
func (h *AdHandler) Create(c echo.Context) error {
	fields, err := adFields(c, true)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	a, err := h.Ads.Create(ctx, fields, middleware.UserID(c))
	if err != nil {
		return err
	}
	h.invalidate(ctx)
	h.Log.Info().Uint64("ad_id", a.ID).Str("position", a.Position).Msg("advertisement created")
	return c.JSON(http.StatusCreated, a)
}

// Update handles PATCH /admin/advertisements/:id.
func (h *AdHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	fields, err := adFields(c, false)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	a, err := h.Ads.Update(ctx, id, fields)
	if err != nil {
		return storeError(err, "Advertisement not found")
	}
	h.invalidate(ctx)
	return c.JSON(http.StatusOK, a)
}

// Delete handles DELETE /admin/advertisements/:id and unlinks a local
// image.
func (h *AdHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	url, err := h.Ads.Delete(ctx, id)
	if err != nil {
		return storeError(err, "Advertisement not found")
	}
	h.Uploads.DeleteByURL(url)
	h.invalidate(ctx)
	return c.NoContent(http.StatusNoContent)
}

// UploadImage handles POST /admin/advertisements/upload-image and returns
// the URL to put into image_url.
func (h *AdHandler) UploadImage(c echo.Context) error {
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	url, err := h.Uploads.SaveImage(service.BucketAdvertisements, strconv.FormatUint(middleware.UserID(c), 10), fh)
	if err != nil {
		return uploadError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"image_url": url})
}

type adStat struct {
	ID          uint64  `json:"id"`
	Title       string  `json:"title"`
	Position    string  `json:"position"`
	ViewsCount  int64   `json:"views_count"`
	ClicksCount int64   `json:"clicks_count"`
	CTR         float64 `json:"ctr"`
}

// Statistics handles GET /admin/advertisements/statistics.
func (h *AdHandler) Statistics(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	totals, err := h.Ads.Totals(ctx)
	if err != nil {
		return err
	}
	items, total, err := h.Ads.List(ctx, repository.AdFilter{Skip: p.Skip, Limit: p.Limit})
	if err != nil {
		return err
	}
	stats := make([]adStat, len(items))
	for i, a := range items {
		stats[i] = adStat{ID: a.ID, Title: a.Title, Position: a.Position,
			ViewsCount: a.ViewsCount, ClicksCount: a.ClicksCount, CTR: a.CTR()}
	}
	return c.JSON(http.StatusOK, echo.Map{"totals": totals, "ads": model.NewPage(stats, total, p.Skip, p.Limit)})
}
