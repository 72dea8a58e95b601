package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/middleware"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/service"
)

// ProfileHandler serves the signed-in user's own record and its dependents.
type ProfileHandler struct {
	DB          *sql.DB
	Profiles    *repository.ProfileRepo
	Favorites   *repository.FavoriteRepo
	Provisioner *service.Provisioner
	Uploads     *service.Uploader
	Log         zerolog.Logger
	Now         func() time.Time
}

func NewProfileHandler(db *sql.DB, profiles *repository.ProfileRepo, favs *repository.FavoriteRepo,
	prov *service.Provisioner, up *service.Uploader, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{DB: db, Profiles: profiles, Favorites: favs, Provisioner: prov, Uploads: up, Log: log, Now: time.Now}
}

// ----- DTOs -----

type nameReq struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

type emailReq struct {
	Email string `json:"email" validate:"required,max=255"`
}

type notificationsReq struct {
	NotificationsEnabled *bool `json:"notifications_enabled" validate:"required"`
}

type favoriteReq struct {
	FavoriteType model.FavoriteType `json:"favorite_type" validate:"required"`
	PlaceID      uint64             `json:"place_id" validate:"required"`
}

// profileResp flattens the extended record and nests documents and settings.
type profileResp struct {
	model.UserExtended
	IsAdmin       bool                           `json:"is_admin"`
	BalanceInfo   model.BalanceInfo              `json:"balance_info"`
	Profile       model.UserProfile              `json:"profile"`
	Notifications model.UserNotificationSettings `json:"notifications"`
}

// load self-heals missing dependents before reading them.
func (h *ProfileHandler) load(c echo.Context) (profileResp, error) {
	u, _ := middleware.CurrentUser(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	healed, err := h.Provisioner.Ensure(ctx, u.ID, u.PhoneNumber)
	if err != nil {
		return profileResp{}, err
	}
	if healed {
		h.Log.Info().Uint64("user_id", u.ID).Msg("profile dependents restored")
	}
	ext, err := h.Profiles.GetExtended(ctx, u.ID)
	if err != nil {
		return profileResp{}, err
	}
	prof, err := h.Profiles.GetProfile(ctx, u.ID)
	if err != nil {
		return profileResp{}, err
	}
	ns, err := h.Profiles.GetNotificationSettings(ctx, u.ID)
	if err != nil {
		return profileResp{}, err
	}
	return profileResp{
		UserExtended:  ext,
		IsAdmin:       u.IsAdmin,
		BalanceInfo:   model.NewBalanceInfo(ext.Balance),
		Profile:       prof,
		Notifications: ns,
	}, nil
}

func (h *ProfileHandler) respond(c echo.Context) error {
	p, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Get handles GET /profile.
func (h *ProfileHandler) Get(c echo.Context) error { return h.respond(c) }

// UpdateName handles PATCH /profile/name.
func (h *ProfileHandler) UpdateName(c echo.Context) error {
	var req nameReq
	if err := bind(c, &req); err != nil {
		return err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "name: field required")
	}
	if _, err := h.load(c); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Profiles.UpdateName(ctx, middleware.UserID(c), name); err != nil {
		return storeError(err, "Profile not found")
	}
	return h.respond(c)
}

// UpdateEmail handles PATCH /profile/email.
func (h *ProfileHandler) UpdateEmail(c echo.Context) error {
	var req emailReq
	if err := bind(c, &req); err != nil {
		return err
	}
	email := strings.TrimSpace(req.Email)
	if err := model.ValidateEmail(email); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "email: must contain @")
	}
	if _, err := h.load(c); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Profiles.UpdateEmail(ctx, middleware.UserID(c), email); err != nil {
		return storeError(err, "Profile not found")
	}
	return h.respond(c)
}

// UpdateNotifications handles PATCH /profile/notifications. The flag is
// merged into the settings bag and mirrored on the master switch.
func (h *ProfileHandler) UpdateNotifications(c echo.Context) error {
	var req notificationsReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if _, err := h.load(c); err != nil {
		return err
	}
	uid := middleware.UserID(c)
	ctx, cancel := withTimeout(c)
	defer cancel()
	if _, err := h.Profiles.MergeSettings(ctx, uid, map[string]any{"notifications_enabled": *req.NotificationsEnabled}); err != nil {
		return storeError(err, "Profile not found")
	}
	if err := h.Profiles.SetNotificationsEnabled(ctx, uid, *req.NotificationsEnabled); err != nil {
		return storeError(err, "Profile not found")
	}
	return h.respond(c)
}

// UploadAvatar handles POST /profile/avatar. The replaced file is removed.
func (h *ProfileHandler) UploadAvatar(c echo.Context) error {
	return h.upload(c, service.BucketAvatars, func(ctx echo.Context, uid uint64, url string) (*string, error) {
		rctx, cancel := withTimeout(ctx)
		defer cancel()
		return h.Profiles.SetAvatar(rctx, uid, url)
	})
}

// UploadPassport handles POST /profile/passport.
func (h *ProfileHandler) UploadPassport(c echo.Context) error {
	return h.uploadDocument(c, service.BucketPassports, repository.DocPassport)
}

// UploadDrivingLicense handles POST /profile/driving-license.
func (h *ProfileHandler) UploadDrivingLicense(c echo.Context) error {
	return h.uploadDocument(c, service.BucketDrivingLicenses, repository.DocDrivingLicense)
}

func (h *ProfileHandler) uploadDocument(c echo.Context, bucket, doc string) error {
	return h.upload(c, bucket, func(ctx echo.Context, uid uint64, url string) (*string, error) {
		rctx, cancel := withTimeout(ctx)
		defer cancel()
		return h.Profiles.SetDocument(rctx, uid, doc, url, h.Now().UTC())
	})
}

// upload saves the file, stores its URL via set and unlinks the previous
// one. The new file is removed again when the store fails.
func (h *ProfileHandler) upload(c echo.Context, bucket string, set func(echo.Context, uint64, string) (*string, error)) error {
	fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	if _, err := h.load(c); err != nil {
		return err
	}
	uid := middleware.UserID(c)
	url, err := h.Uploads.SaveImage(bucket, strconv.FormatUint(uid, 10), fh)
	if err != nil {
		return uploadError(err)
	}
	prev, err := set(c, uid, url)
	if err != nil {
		h.Uploads.DeleteByURL(url)
		return storeError(err, "Profile not found")
	}
	if prev != nil && *prev != url {
		h.Uploads.DeleteByURL(*prev)
	}
	return h.respond(c)
}

// ListFavorites handles GET /profile/favorites?favorite_type=.
func (h *ProfileHandler) ListFavorites(c echo.Context) error {
	var typ *model.FavoriteType
	if raw := queryString(c, "favorite_type"); raw != nil {
		t := model.FavoriteType(*raw)
		if !t.Valid() {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "favorite_type: unknown favorite type")
		}
		typ = &t
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, err := h.Favorites.List(ctx, middleware.UserID(c), typ)
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.UserFavorite{}
	}
	return c.JSON(http.StatusOK, items)
}

// AddFavorite handles POST /profile/favorites. Adding twice is a no-op.
func (h *ProfileHandler) AddFavorite(c echo.Context) error {
	var req favoriteReq
	if err := bind(c, &req); err != nil {
		return err
	}
	kind, ok := model.KindByFavorite(req.FavoriteType)
	if !ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "favorite_type: unknown favorite type")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := repository.NewPlaceRepo(h.DB, kind).Get(ctx, req.PlaceID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && p.Status != model.StatusApproved) {
		return echo.NewHTTPError(http.StatusNotFound, "Place not found")
	}
	if err != nil {
		return err
	}
	if err := h.Favorites.Add(ctx, middleware.UserID(c), req.FavoriteType, req.PlaceID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, success())
}

// RemoveFavorite handles DELETE /profile/favorites/:favorite_type/:place_id.
func (h *ProfileHandler) RemoveFavorite(c echo.Context) error {
	typ := model.FavoriteType(c.Param("favorite_type"))
	if !typ.Valid() {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "favorite_type: unknown favorite type")
	}
	placeID, err := pathID(c, "place_id")
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Favorites.Remove(ctx, middleware.UserID(c), typ, placeID); err != nil {
		return storeError(err, "Favorite not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// Achievements handles GET /profile/achievements.
func (h *ProfileHandler) Achievements(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, err := h.Profiles.Achievements(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	if items == nil {
		items = []model.UserAchievement{}
	}
	return c.JSON(http.StatusOK, items)
}

// Statistics handles GET /profile/statistics. Counters are rebuilt on read.
func (h *ProfileHandler) Statistics(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	s, err := h.Profiles.RecomputeStatistics(ctx, middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

// Transactions handles GET /profile/transactions.
func (h *ProfileHandler) Transactions(c echo.Context) error {
	p, err := pageOf(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.Profiles.Transactions(ctx, middleware.UserID(c), p.Skip, p.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, model.NewPage(items, total, p.Skip, p.Limit))
}
