package handler

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/repository"
)

const getGas = "FROM gas_stations p WHERE p.id = \\?"

// gasRow is one gas station in the place repository's select order.
func gasRow(id uint64, status model.PlaceStatus, byUser, byAdmin any) *sqlmock.Rows {
	cols := []string{
		"id", "name", "address", "latitude", "longitude", "phone", "website", "description",
		"working_hours", "is_24_7", "rating", "reviews_count", "status", "created_by_user_id",
		"created_by_admin_id", "has_promotions", "approved_at", "created_at", "updated_at",
	}
	cols = append(cols, model.GasKind.Attributes...)
	cols = append(cols, model.GasKind.Features...)
	cols = append(cols, "main_photo_url")

	var approvedAt any
	if status == model.StatusApproved {
		approvedAt = fixedNow
	}
	vals := []driver.Value{
		id, "Shell", "Main 1", 41.3, 69.2, nil, nil, nil,
		nil, false, 0.0, 0, string(status), byUser,
		byAdmin, false, approvedAt, fixedNow, fixedNow,
	}
	for range model.GasKind.Attributes {
		vals = append(vals, "Shell")
	}
	for range model.GasKind.Features {
		vals = append(vals, false)
	}
	vals = append(vals, nil)
	return sqlmock.NewRows(cols).AddRow(vals...)
}

// placeEcho mounts the gas station routers the way the server does.
func placeEcho(db *sql.DB) *echo.Echo {
	e, g := newEcho()
	fuel := Tariffs(repository.NewTariffRepo(db, repository.FuelPriceSchema))
	h := NewPlaceHandler(repository.NewPlaceRepo(db, model.GasKind), []TariffSet{fuel}, nil, nil, zerolog.Nop())
	h.Now = func() time.Time { return fixedNow }

	pub := e.Group("/gas-stations")
	pub.GET("/:id", h.Get, g.Optional())
	pub.GET("/:id/reviews", h.ListReviews, g.Optional())

	u := e.Group("/gas-stations", g.Active())
	u.POST("", h.Create)
	u.PATCH("/:id", h.Update)
	u.POST("/:id/reviews", h.CreateReview)
	u.POST("/:id/photos", h.UploadPhoto)
	u.PUT("/:id/"+Segment(fuel), h.ReplaceTariffs(fuel))

	a := e.Group("/admin/gas-stations", g.Admin())
	a.POST("/:id/approve", h.Approve)
	return e
}

func placeStatus(t *testing.T, body []byte) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	s, _ := m["status"].(string)
	return s
}

func TestPlaceModerationCycle(t *testing.T) {
	db, mock := mockDB(t)
	e := placeEcho(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO gas_stations (address, latitude, longitude, name, status, approved_at, created_by_user_id, created_by_admin_id)")).
		WithArgs("Main 1", 41.3, 69.2, "Shell", model.StatusPending, nil, uint64(1), nil).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, model.StatusPending, int64(1), nil))
	rec := do(e, http.MethodPost, "/gas-stations",
		`{"name":" Shell ","address":"Main 1","latitude":41.3,"longitude":69.2}`, "alice")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", placeStatus(t, rec.Body.Bytes()))

	mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, model.StatusPending, int64(1), nil))
	rec = do(e, http.MethodGet, "/gas-stations/5", "", "bob")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Place not found", detail(t, rec))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE gas_stations SET status = ?, approved_at = COALESCE(approved_at, ?) WHERE id = ?")).
		WithArgs(model.StatusApproved, fixedNow, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, model.StatusApproved, int64(1), nil))
	rec = do(e, http.MethodPost, "/admin/gas-stations/5/approve", "", "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", placeStatus(t, rec.Body.Bytes()))

	mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, model.StatusApproved, int64(1), nil))
	mock.ExpectQuery("FROM gas_station_photos").WithArgs(uint64(5)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM gas_station_reviews").WithArgs(uint64(5), repository.ReviewListLimit).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM fuel_prices").WithArgs(uint64(5)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	rec = do(e, http.MethodGet, "/gas-stations/5", "", "bob")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", placeStatus(t, rec.Body.Bytes()))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceEditsNeedCreatorOrAdmin(t *testing.T) {
	cases := []struct {
		name, method, path, body string
	}{
		{"update", http.MethodPatch, "/gas-stations/5", `{"name":"Mine now"}`},
		{"photo", http.MethodPost, "/gas-stations/5/photos", ""},
		{"tariffs", http.MethodPut, "/gas-stations/5/fuel-prices", `{"items":[]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := mockDB(t)
			e := placeEcho(db)
			mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, model.StatusApproved, int64(1), nil))

			rec := do(e, tc.method, tc.path, tc.body, "bob")
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "Not enough permissions", detail(t, rec))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("admin may edit", func(t *testing.T) {
		db, mock := mockDB(t)
		e := placeEcho(db)
		mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, model.StatusApproved, int64(1), nil))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE gas_stations SET name = ? WHERE id = ?")).
			WithArgs("Renamed", uint64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, model.StatusApproved, int64(1), nil))

		rec := do(e, http.MethodPatch, "/gas-stations/5", `{"name":"Renamed"}`, "admin")
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminSubmissionIsApproved(t *testing.T) {
	db, mock := mockDB(t)
	e := placeEcho(db)

	mock.ExpectExec("INSERT INTO gas_stations").
		WithArgs("Main 1", 41.3, 69.2, "Shell", model.StatusApproved, fixedNow, nil, uint64(9)).
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectQuery(getGas).WithArgs(uint64(6)).WillReturnRows(gasRow(6, model.StatusApproved, nil, int64(9)))

	rec := do(e, http.MethodPost, "/gas-stations",
		`{"name":"Shell","address":"Main 1","latitude":41.3,"longitude":69.2}`, "admin")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", placeStatus(t, rec.Body.Bytes()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewsHiddenUntilApproved(t *testing.T) {
	for _, status := range []model.PlaceStatus{model.StatusPending, model.StatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			db, mock := mockDB(t)
			e := placeEcho(db)

			mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, status, int64(1), nil))
			rec := do(e, http.MethodPost, "/gas-stations/5/reviews", `{"rating":5}`, "bob")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "Place not found", detail(t, rec))

			mock.ExpectQuery(getGas).WithArgs(uint64(5)).WillReturnRows(gasRow(5, status, int64(1), nil))
			rec = do(e, http.MethodGet, "/gas-stations/5/reviews", "", "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
