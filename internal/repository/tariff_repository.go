package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

// TariffSchema maps a pricing child type onto its table. Columns are the
// writable columns in the order Values returns them; Dest must return
// pointers for id, FK, Columns, updated_by_user_id and updated_at in that
// order.
type TariffSchema[T any] struct {
	Name       string // key in the place detail payload, e.g. "fuel_prices"
	Table      string
	FK         string
	Columns    []string
	NaturalKey string // upsert key besides the FK; empty means rows are addressed by id
	OrderBy    string
	Values     func(T) []any
	Dest       func(*T) []any
	ID         func(T) uint64
}

// TariffRepo stores one kind of pricing child.
type TariffRepo[T any] struct {
	DB     *sql.DB
	Schema TariffSchema[T]
}

func NewTariffRepo[T any](db *sql.DB, s TariffSchema[T]) *TariffRepo[T] {
	return &TariffRepo[T]{DB: db, Schema: s}
}

func (r *TariffRepo[T]) selectSQL() string {
	cols := append([]string{"id", r.Schema.FK}, r.Schema.Columns...)
	cols = append(cols, "updated_by_user_id", "updated_at")
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + r.Schema.Table
}

func (r *TariffRepo[T]) list(ctx context.Context, q DBTX, placeID uint64) ([]T, error) {
	order := r.Schema.OrderBy
	if order == "" {
		order = "id ASC"
	}
	rows, err := q.QueryContext(ctx, r.selectSQL()+" WHERE "+r.Schema.FK+" = ? ORDER BY "+order, placeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var item T
		if err := rows.Scan(r.Schema.Dest(&item)...); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// List returns every row attached to the place.
func (r *TariffRepo[T]) List(ctx context.Context, placeID uint64) ([]T, error) {
	return r.list(ctx, r.DB, placeID)
}

// Key is the payload key used when embedding the list into a place detail.
func (r *TariffRepo[T]) Key() string { return r.Schema.Name }

// ListAny is List with the element type erased, for detail payloads.
func (r *TariffRepo[T]) ListAny(ctx context.Context, placeID uint64) (any, error) {
	items, err := r.List(ctx, placeID)
	if items == nil {
		items = []T{}
	}
	return items, err
}

// BulkUpsert applies items in one transaction and returns the resulting set.
// With a natural key rows are upserted on (FK, key); otherwise rows with an
// id are updated in place (ErrNotFound if the id belongs elsewhere) and rows
// without one are inserted. Rows missing from items are left alone.
func (r *TariffRepo[T]) BulkUpsert(ctx context.Context, placeID uint64, items []T, editorID uint64) ([]T, error) {
	s := r.Schema
	insertCols := append([]string{s.FK}, s.Columns...)
	insertCols = append(insertCols, "updated_by_user_id")
	insertSQL := "INSERT INTO " + s.Table + " (" + strings.Join(insertCols, ", ") + ") VALUES (" + placeholders(len(insertCols)) + ")"

	sets := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		if c == s.NaturalKey {
			continue
		}
		sets = append(sets, c+" = VALUES("+c+")")
	}
	sets = append(sets, "updated_by_user_id = VALUES(updated_by_user_id)")
	upsertSQL := insertSQL + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")

	assigns := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		assigns = append(assigns, c+" = ?")
	}
	assigns = append(assigns, "updated_by_user_id = ?")
	updateSQL := "UPDATE " + s.Table + " SET " + strings.Join(assigns, ", ") + " WHERE id = ? AND " + s.FK + " = ?"

	var out []T
	err := database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		for _, item := range items {
			vals := s.Values(item)
			switch {
			case s.NaturalKey != "":
				args := append([]any{placeID}, vals...)
				if _, err := tx.ExecContext(ctx, upsertSQL, append(args, editorID)...); err != nil {
					return err
				}
			case s.ID(item) != 0:
				args := append(vals, editorID, s.ID(item), placeID)
				if err := affected(tx.ExecContext(ctx, updateSQL, args...)); err != nil {
					return err
				}
			default:
				args := append([]any{placeID}, vals...)
				if _, err := tx.ExecContext(ctx, insertSQL, append(args, editorID)...); err != nil {
					return err
				}
			}
		}
		var err error
		out, err = r.list(ctx, tx, placeID)
		return err
	})
	return out, err
}

// Delete removes one row of the place.
func (r *TariffRepo[T]) Delete(ctx context.Context, placeID, id uint64) error {
	return affected(r.DB.ExecContext(ctx,
		"DELETE FROM "+r.Schema.Table+" WHERE id = ? AND "+r.Schema.FK+" = ?", id, placeID))
}

// Schemas for every pricing child.
var (
	FuelPriceSchema = TariffSchema[model.FuelPrice]{
		Name: "fuel_prices", Table: "fuel_prices", FK: "gas_station_id",
		Columns:    []string{"fuel_type", "price", "is_available"},
		NaturalKey: "fuel_type",
		OrderBy:    "fuel_type ASC",
		Values:     func(v model.FuelPrice) []any { return []any{v.FuelType, v.Price, v.IsAvailable} },
		Dest: func(v *model.FuelPrice) []any {
			return []any{&v.ID, &v.GasStationID, &v.FuelType, &v.Price, &v.IsAvailable, &v.UpdatedByUserID, &v.UpdatedAt}
		},
		ID: func(v model.FuelPrice) uint64 { return v.ID },
	}
	ChargingPointSchema = TariffSchema[model.ChargingPoint]{
		Name: "charging_points", Table: "charging_points", FK: "electric_station_id",
		Columns: []string{"connector_type", "power_kw", "price_per_kwh", "status"},
		Values: func(v model.ChargingPoint) []any {
			status := v.Status
			if status == "" {
				status = "available"
			}
			return []any{v.ConnectorType, v.PowerKW, v.PricePerKWh, status}
		},
		Dest: func(v *model.ChargingPoint) []any {
			return []any{&v.ID, &v.ElectricStationID, &v.ConnectorType, &v.PowerKW, &v.PricePerKWh, &v.Status, &v.UpdatedByUserID, &v.UpdatedAt}
		},
		ID: func(v model.ChargingPoint) uint64 { return v.ID },
	}
	ServicePriceSchema = TariffSchema[model.ServicePrice]{
		Name: "service_prices", Table: "service_prices", FK: "service_station_id",
		Columns: []string{"service_name", "price", "duration_minutes", "description"},
		Values: func(v model.ServicePrice) []any {
			return []any{v.ServiceName, v.Price, v.DurationMinutes, v.Description}
		},
		Dest: func(v *model.ServicePrice) []any {
			return []any{&v.ID, &v.ServiceStationID, &v.ServiceName, &v.Price, &v.DurationMinutes, &v.Description, &v.UpdatedByUserID, &v.UpdatedAt}
		},
		ID: func(v model.ServicePrice) uint64 { return v.ID },
	}
	WashServiceSchema = TariffSchema[model.WashService]{
		Name: "wash_services", Table: "wash_services", FK: "car_wash_id",
		Columns: []string{"service_name", "price", "duration_minutes", "description"},
		Values: func(v model.WashService) []any {
			return []any{v.ServiceName, v.Price, v.DurationMinutes, v.Description}
		},
		Dest: func(v *model.WashService) []any {
			return []any{&v.ID, &v.CarWashID, &v.ServiceName, &v.Price, &v.DurationMinutes, &v.Description, &v.UpdatedByUserID, &v.UpdatedAt}
		},
		ID: func(v model.WashService) uint64 { return v.ID },
	}
	MenuCategorySchema = TariffSchema[model.MenuCategory]{
		Name: "menu_categories", Table: "menu_categories", FK: "restaurant_id",
		Columns: []string{"name", "sort_order"},
		OrderBy: "sort_order ASC, id ASC",
		Values:  func(v model.MenuCategory) []any { return []any{v.Name, v.Order} },
		Dest: func(v *model.MenuCategory) []any {
			return []any{&v.ID, &v.RestaurantID, &v.Name, &v.Order, &v.UpdatedByUserID, &v.UpdatedAt}
		},
		ID: func(v model.MenuCategory) uint64 { return v.ID },
	}
	MenuItemSchema = TariffSchema[model.MenuItem]{
		Name: "menu_items", Table: "menu_items", FK: "restaurant_id",
		Columns: []string{"category_id", "name", "description", "price", "image_url", "is_available"},
		Values: func(v model.MenuItem) []any {
			return []any{v.CategoryID, v.Name, v.Description, v.Price, v.ImageURL, v.IsAvailable}
		},
		Dest: func(v *model.MenuItem) []any {
			return []any{&v.ID, &v.RestaurantID, &v.CategoryID, &v.Name, &v.Description, &v.Price, &v.ImageURL, &v.IsAvailable, &v.UpdatedByUserID, &v.UpdatedAt}
		},
		ID: func(v model.MenuItem) uint64 { return v.ID },
	}
)

// SetMenuItemImage stores the image of a menu item and returns the previous
// URL so the caller can unlink the old file.
func SetMenuItemImage(ctx context.Context, db *sql.DB, restaurantID, itemID uint64, url string) (*string, error) {
	var prev *string
	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT image_url FROM menu_items WHERE id = ? AND restaurant_id = ? FOR UPDATE",
			itemID, restaurantID).Scan(&prev)
		if err != nil {
			return notFound(err)
		}
		_, err = tx.ExecContext(ctx, "UPDATE menu_items SET image_url = ? WHERE id = ?", url, itemID)
		return err
	})
	return prev, err
}
