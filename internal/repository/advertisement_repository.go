package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

type AdRepo struct{ DB *sql.DB }

func NewAdRepo(db *sql.DB) *AdRepo { return &AdRepo{DB: db} }

const adColumns = `id, title, description, image_url, link_url, ad_type, position, status, is_active, start_date,
	end_date, priority, display_order, views_count, clicks_count, target_audience, created_by, created_at, updated_at`

func scanAd(row interface{ Scan(...any) error }) (model.Advertisement, error) {
	var a model.Advertisement
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.ImageURL, &a.LinkURL, &a.AdType, &a.Position, &a.Status,
		&a.IsActive, &a.StartDate, &a.EndDate, &a.Priority, &a.DisplayOrder, &a.ViewsCount, &a.ClicksCount,
		&a.TargetAudience, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *AdRepo) query(ctx context.Context, q string, args ...any) ([]model.Advertisement, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Advertisement
	for rows.Next() {
		a, err := scanAd(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListForPosition returns the ads servable at now for one slot, highest
// priority first. With an audience set, ads targeted at another audience
// are skipped.
func (r *AdRepo) ListForPosition(ctx context.Context, position string, audience *string, now time.Time) ([]model.Advertisement, error) {
	q := "SELECT " + adColumns + ` FROM advertisements
		WHERE position = ? AND is_active = 1 AND status = ?
		AND (start_date IS NULL OR start_date <= ?) AND (end_date IS NULL OR end_date >= ?)`
	args := []any{position, model.AdStatusActive, now, now}
	if audience != nil {
		q += " AND (target_audience IS NULL OR target_audience = ?)"
		args = append(args, *audience)
	}
	return r.query(ctx, q+" ORDER BY priority DESC, display_order ASC, id ASC", args...)
}

func (r *AdRepo) Get(ctx context.Context, id uint64) (model.Advertisement, error) {
	a, err := scanAd(r.DB.QueryRowContext(ctx, "SELECT "+adColumns+" FROM advertisements WHERE id = ? LIMIT 1", id))
	return a, notFound(err)
}

// AdFilter narrows the admin listing.
type AdFilter struct {
	Position *string
	Status   *string
	IsActive *bool
	Skip     int
	Limit    int
}

func (r *AdRepo) List(ctx context.Context, f AdFilter) ([]model.Advertisement, int, error) {
	where := " WHERE 1 = 1"
	var args []any
	if f.Position != nil {
		where += " AND position = ?"
		args = append(args, *f.Position)
	}
	if f.Status != nil {
		where += " AND status = ?"
		args = append(args, *f.Status)
	}
	if f.IsActive != nil {
		where += " AND is_active = ?"
		args = append(args, *f.IsActive)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM advertisements"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	skip, limit := clampPage(f.Skip, f.Limit)
	items, err := r.query(ctx, "SELECT "+adColumns+" FROM advertisements"+where+
		" ORDER BY priority DESC, display_order ASC, id DESC LIMIT ? OFFSET ?", append(args, limit, skip)...)
	return items, total, err
}

// adWritable are the columns admins may set.
var adWritable = map[string]bool{
	"title": true, "description": true, "image_url": true, "link_url": true, "ad_type": true,
	"position": true, "status": true, "is_active": true, "start_date": true, "end_date": true,
	"priority": true, "display_order": true, "target_audience": true,
}

func adColumnsOf(fields map[string]any) []string {
	cols := make([]string, 0, len(fields))
	for c := range fields {
		if adWritable[c] {
			cols = append(cols, c)
		}
	}
	sort.Strings(cols)
	return cols
}

// Create inserts an ad from a column map; unknown keys are ignored.
func (r *AdRepo) Create(ctx context.Context, fields map[string]any, createdBy uint64) (model.Advertisement, error) {
	cols := adColumnsOf(fields)
	args := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		args = append(args, fields[c])
	}
	cols = append(cols, "created_by")
	args = append(args, createdBy)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO advertisements ("+strings.Join(cols, ", ")+") VALUES ("+placeholders(len(cols))+")", args...)
	if err != nil {
		return model.Advertisement{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Advertisement{}, err
	}
	return r.Get(ctx, uint64(id))
}

// Update patches the given columns.
func (r *AdRepo) Update(ctx context.Context, id uint64, fields map[string]any) (model.Advertisement, error) {
	cols := adColumnsOf(fields)
	if len(cols) == 0 {
		return r.Get(ctx, id)
	}
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c + " = ?"
		args = append(args, fields[c])
	}
	if err := affected(r.DB.ExecContext(ctx,
		"UPDATE advertisements SET "+strings.Join(sets, ", ")+" WHERE id = ?", append(args, id)...)); err != nil {
		return model.Advertisement{}, err
	}
	return r.Get(ctx, id)
}

// Delete removes the ad with its event logs and returns its image URL.
func (r *AdRepo) Delete(ctx context.Context, id uint64) (string, error) {
	var url string
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, "SELECT image_url FROM advertisements WHERE id = ? FOR UPDATE", id).Scan(&url); err != nil {
			return notFound(err)
		}
		for _, t := range []string{"advertisement_views", "advertisement_clicks"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t+" WHERE advertisement_id = ?", id); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM advertisements WHERE id = ?", id)
		return err
	})
	return url, err
}

func (r *AdRepo) record(ctx context.Context, table, counter string, ev model.AdEvent) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		if err := affected(tx.ExecContext(ctx,
			"UPDATE advertisements SET "+counter+" = "+counter+" + 1 WHERE id = ?", ev.AdvertisementID)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" (advertisement_id, user_id, ip_address, user_agent) VALUES (?, ?, ?, ?)",
			ev.AdvertisementID, ev.UserID, nullIfEmpty(ev.IPAddress), nullIfEmpty(truncate(ev.UserAgent, 500)))
		return err
	})
}

// RecordView logs an impression and bumps views_count atomically.
func (r *AdRepo) RecordView(ctx context.Context, ev model.AdEvent) error {
	return r.record(ctx, "advertisement_views", "views_count", ev)
}

// RecordClick logs a click and bumps clicks_count atomically.
func (r *AdRepo) RecordClick(ctx context.Context, ev model.AdEvent) error {
	return r.record(ctx, "advertisement_clicks", "clicks_count", ev)
}

// AdTotals aggregates counters across every ad.
type AdTotals struct {
	Ads    int     `json:"total_ads"`
	Active int     `json:"active_ads"`
	Views  int64   `json:"total_views"`
	Clicks int64   `json:"total_clicks"`
	CTR    float64 `json:"ctr"`
}

func (r *AdRepo) Totals(ctx context.Context) (AdTotals, error) {
	var t AdTotals
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_active = 1 AND status = 'active'), 0),
		 COALESCE(SUM(views_count), 0), COALESCE(SUM(clicks_count), 0) FROM advertisements`).
		Scan(&t.Ads, &t.Active, &t.Views, &t.Clicks)
	if t.Views > 0 {
		t.CTR = float64(t.Clicks) / float64(t.Views) * 100
	}
	return t, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
