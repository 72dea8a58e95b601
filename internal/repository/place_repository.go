package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/utils"
)

// PlaceRepo is the data access layer shared by all five place families.
// The kind descriptor supplies table and column names; every query here is
// built from it, so a gas station and a car wash go through the same code.
type PlaceRepo struct {
	DB   *sql.DB
	Kind model.PlaceKind
}

func NewPlaceRepo(db *sql.DB, kind model.PlaceKind) *PlaceRepo {
	return &PlaceRepo{DB: db, Kind: kind}
}

// baseColumns are present on every place table, in scan order.
var baseColumns = []string{
	"id", "name", "address", "latitude", "longitude", "phone", "website", "description",
	"working_hours", "is_24_7", "rating", "reviews_count", "status", "created_by_user_id",
	"created_by_admin_id", "has_promotions", "approved_at", "created_at", "updated_at",
}

// editableColumns may be written by Create/Update in addition to the
// kind-specific ones.
var editableColumns = map[string]bool{
	"name": true, "address": true, "latitude": true, "longitude": true, "phone": true,
	"website": true, "description": true, "working_hours": true, "is_24_7": true,
	"has_promotions": true,
}

func (r *PlaceRepo) selectList(alias string) string {
	cols := make([]string, 0, len(baseColumns)+len(r.Kind.Attributes)+len(r.Kind.Features))
	for _, c := range baseColumns {
		cols = append(cols, alias+"."+c)
	}
	for _, c := range r.Kind.Attributes {
		cols = append(cols, alias+"."+c)
	}
	for _, c := range r.Kind.Features {
		cols = append(cols, alias+"."+c)
	}
	return strings.Join(cols, ", ")
}

// scanPlace reads one row produced by selectList, optionally followed by
// extra destinations.
func (r *PlaceRepo) scanPlace(row interface{ Scan(...any) error }, extra ...any) (model.Place, error) {
	var p model.Place
	attrs := make([]*string, len(r.Kind.Attributes))
	feats := make([]bool, len(r.Kind.Features))
	dest := []any{
		&p.ID, &p.Name, &p.Address, &p.Latitude, &p.Longitude, &p.Phone, &p.Website, &p.Description,
		&p.WorkingHours, &p.Is24x7, &p.Rating, &p.ReviewsCount, &p.Status, &p.CreatedByUserID,
		&p.CreatedByAdminID, &p.HasPromotions, &p.ApprovedAt, &p.CreatedAt, &p.UpdatedAt,
	}
	for i := range attrs {
		dest = append(dest, &attrs[i])
	}
	for i := range feats {
		dest = append(dest, &feats[i])
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return p, err
	}
	p.Attributes = make(map[string]*string, len(attrs))
	for i, name := range r.Kind.Attributes {
		p.Attributes[name] = attrs[i]
	}
	p.Features = make(map[string]bool, len(feats))
	for i, name := range r.Kind.Features {
		p.Features[name] = feats[i]
	}
	return p, nil
}

// PlaceFilter composes listing predicates with AND. Nil fields are ignored.
type PlaceFilter struct {
	Statuses      []model.PlaceStatus
	Attributes    map[string]string
	Features      map[string]bool
	RatingMin     *float64
	RatingMax     *float64
	PriceMin      *float64
	PriceMax      *float64
	Is24x7        *bool
	HasPromotions *bool
	Query         string
	Latitude      *float64
	Longitude     *float64
	RadiusKm      *float64
	Skip          int
	Limit         int
}

// geo reports whether the filter carries a complete radius triple.
func (f PlaceFilter) geo() bool {
	return f.Latitude != nil && f.Longitude != nil && f.RadiusKm != nil
}

// haversineSQL is the great-circle distance from (?, ?) to the row, in km.
// Placeholders: latitude, latitude, longitude.
const haversineSQL = "(2 * 6371 * ASIN(SQRT(POWER(SIN(RADIANS(p.latitude - ?) / 2), 2) + " +
	"COS(RADIANS(?)) * COS(RADIANS(p.latitude)) * POWER(SIN(RADIANS(p.longitude - ?) / 2), 2))))"

func (r *PlaceRepo) where(f PlaceFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		conds = append(conds, "p.status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	// sorted for deterministic SQL
	attrKeys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		if r.Kind.HasAttribute(k) {
			attrKeys = append(attrKeys, k)
		}
	}
	sort.Strings(attrKeys)
	for _, k := range attrKeys {
		conds = append(conds, "p."+k+" = ?")
		args = append(args, f.Attributes[k])
	}
	featKeys := make([]string, 0, len(f.Features))
	for k := range f.Features {
		if r.Kind.HasFeature(k) {
			featKeys = append(featKeys, k)
		}
	}
	sort.Strings(featKeys)
	for _, k := range featKeys {
		conds = append(conds, "p."+k+" = ?")
		args = append(args, f.Features[k])
	}
	if f.RatingMin != nil {
		conds = append(conds, "p.rating >= ?")
		args = append(args, *f.RatingMin)
	}
	if f.RatingMax != nil {
		conds = append(conds, "p.rating <= ?")
		args = append(args, *f.RatingMax)
	}
	if f.PriceMin != nil || f.PriceMax != nil {
		sub := fmt.Sprintf("EXISTS (SELECT 1 FROM %s t WHERE t.%s = p.id", r.Kind.PriceTable, r.Kind.FK)
		if f.PriceMin != nil {
			sub += fmt.Sprintf(" AND t.%s >= ?", r.Kind.PriceColumn)
			args = append(args, *f.PriceMin)
		}
		if f.PriceMax != nil {
			sub += fmt.Sprintf(" AND t.%s <= ?", r.Kind.PriceColumn)
			args = append(args, *f.PriceMax)
		}
		conds = append(conds, sub+")")
	}
	if f.Is24x7 != nil {
		conds = append(conds, "p.is_24_7 = ?")
		args = append(args, *f.Is24x7)
	}
	if f.HasPromotions != nil {
		conds = append(conds, "p.has_promotions = ?")
		args = append(args, *f.HasPromotions)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		conds = append(conds, "(LOWER(p.name) LIKE ? OR LOWER(p.address) LIKE ?)")
		args = append(args, like, like)
	}
	if f.geo() {
		conds = append(conds, haversineSQL+" <= ?")
		args = append(args, *f.Latitude, *f.Latitude, *f.Longitude, *f.RadiusKm)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PlaceRepo) mainPhotoSQL() string {
	return fmt.Sprintf("(SELECT ph.url FROM %s ph WHERE ph.%s = p.id AND ph.is_main = 1 ORDER BY ph.id LIMIT 1)",
		r.Kind.PhotoTable, r.Kind.FK)
}

// List returns one page of places matching f and the total match count.
// With a radius filter rows are ordered by distance, otherwise newest first.
func (r *PlaceRepo) List(ctx context.Context, f PlaceFilter) ([]model.Place, int, error) {
	cond, args := r.where(f)

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+r.Kind.Table+" p"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	skip, limit := clampPage(f.Skip, f.Limit)
	order := " ORDER BY p.created_at DESC, p.id DESC"
	pageArgs := append([]any{}, args...)
	if f.geo() {
		order = " ORDER BY " + haversineSQL + " ASC, p.id DESC"
		pageArgs = append(pageArgs, *f.Latitude, *f.Latitude, *f.Longitude)
	}
	pageArgs = append(pageArgs, limit, skip)

	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+r.selectList("p")+", "+r.mainPhotoSQL()+" FROM "+r.Kind.Table+" p"+cond+order+" LIMIT ? OFFSET ?",
		pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Place
	for rows.Next() {
		var main *string
		p, err := r.scanPlace(rows, &main)
		if err != nil {
			return nil, 0, err
		}
		p.MainPhotoURL = main
		if f.geo() {
			d := utils.Haversine(*f.Latitude, *f.Longitude, p.Latitude, p.Longitude)
			p.DistanceKm = &d
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Get fetches a place regardless of status.
func (r *PlaceRepo) Get(ctx context.Context, id uint64) (model.Place, error) {
	return r.getTx(ctx, r.DB, id, false)
}

func (r *PlaceRepo) getTx(ctx context.Context, q DBTX, id uint64, lock bool) (model.Place, error) {
	query := "SELECT " + r.selectList("p") + ", " + r.mainPhotoSQL() + " FROM " + r.Kind.Table + " p WHERE p.id = ? LIMIT 1"
	if lock {
		query += " FOR UPDATE"
	}
	var main *string
	p, err := r.scanPlace(q.QueryRowContext(ctx, query, id), &main)
	p.MainPhotoURL = main
	return p, notFound(err)
}

// PlaceInput carries writable columns. Keys of Fields are column names and
// are checked against the kind; unknown keys are rejected.
type PlaceInput struct {
	Fields map[string]any
}

func (r *PlaceRepo) writable(col string) bool {
	return editableColumns[col] || r.Kind.HasAttribute(col) || r.Kind.HasFeature(col)
}

func (r *PlaceRepo) sortedFields(in PlaceInput) ([]string, error) {
	cols := make([]string, 0, len(in.Fields))
	for c := range in.Fields {
		if !r.writable(c) {
			return nil, fmt.Errorf("%s: column %q is not writable", r.Kind.Table, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}

// Create inserts a place. Admin-created places are approved immediately;
// user submissions start pending. The creator id goes to exactly one of the
// two created_by columns.
func (r *PlaceRepo) Create(ctx context.Context, in PlaceInput, creatorID uint64, byAdmin bool, now time.Time) (model.Place, error) {
	cols, err := r.sortedFields(in)
	if err != nil {
		return model.Place{}, err
	}
	args := make([]any, 0, len(cols)+4)
	for _, c := range cols {
		args = append(args, in.Fields[c])
	}
	cols = append(cols, "status", "approved_at", "created_by_user_id", "created_by_admin_id")
	if byAdmin {
		args = append(args, model.StatusApproved, now, nil, creatorID)
	} else {
		args = append(args, model.StatusPending, nil, creatorID, nil)
	}

	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO "+r.Kind.Table+" ("+strings.Join(cols, ", ")+") VALUES ("+placeholders(len(cols))+")",
		args...)
	if err != nil {
		return model.Place{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Place{}, err
	}
	return r.Get(ctx, uint64(id))
}

// Update patches the given columns.
func (r *PlaceRepo) Update(ctx context.Context, id uint64, in PlaceInput) (model.Place, error) {
	cols, err := r.sortedFields(in)
	if err != nil {
		return model.Place{}, err
	}
	if len(cols) == 0 {
		return r.Get(ctx, id)
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c + " = ?"
		args = append(args, in.Fields[c])
	}
	args = append(args, id)
	if err := affected(r.DB.ExecContext(ctx,
		"UPDATE "+r.Kind.Table+" SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)); err != nil {
		return model.Place{}, err
	}
	return r.Get(ctx, id)
}

// SetStatus moves a place through moderation. Approving stamps approved_at
// on the first approval only, so repeating it is a no-op.
func (r *PlaceRepo) SetStatus(ctx context.Context, id uint64, status model.PlaceStatus, now time.Time) (model.Place, error) {
	var err error
	if status == model.StatusApproved {
		err = affected(r.DB.ExecContext(ctx,
			"UPDATE "+r.Kind.Table+" SET status = ?, approved_at = COALESCE(approved_at, ?) WHERE id = ?",
			status, now, id))
	} else {
		err = affected(r.DB.ExecContext(ctx,
			"UPDATE "+r.Kind.Table+" SET status = ? WHERE id = ?", status, id))
	}
	if err != nil {
		return model.Place{}, err
	}
	return r.Get(ctx, id)
}

// Delete hard-deletes the place with its tariffs, photos, reviews and
// favorites. It returns the photo URLs so the caller can unlink the files.
func (r *PlaceRepo) Delete(ctx context.Context, id uint64) ([]string, error) {
	var urls []string
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := r.getTx(ctx, tx, id, true); err != nil {
			return err
		}
		photos, err := r.listPhotos(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, ph := range photos {
			urls = append(urls, ph.URL)
		}
		for _, t := range r.Kind.TariffTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t+" WHERE "+r.Kind.FK+" = ?", id); err != nil {
				return fmt.Errorf("delete %s: %w", t, err)
			}
		}
		for _, t := range []string{r.Kind.PhotoTable, r.Kind.ReviewTable} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t+" WHERE "+r.Kind.FK+" = ?", id); err != nil {
				return fmt.Errorf("delete %s: %w", t, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM user_favorites WHERE favorite_type = ? AND place_id = ?", r.Kind.FavoriteType, id); err != nil {
			return fmt.Errorf("delete favorites: %w", err)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM "+r.Kind.Table+" WHERE id = ?", id)
		return err
	})
	return urls, err
}
