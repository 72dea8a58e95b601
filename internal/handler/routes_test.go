package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autopoint-backend/internal/realtime"
	"github.com/iliyamo/autopoint-backend/internal/repository"
)

var ticketCols = []string{"id", "user_id", "subject", "status", "priority", "assigned_to", "is_read_by_user",
	"is_read_by_admin", "created_at", "updated_at", "resolved_at", "closed_at"}

func TestSupportTicketHiddenFromOtherUsers(t *testing.T) {
	db, mock := mockDB(t)
	e, g := newEcho()
	hub := realtime.NewSupportHub(zerolog.Nop())
	t.Cleanup(hub.Stop)
	h := NewSupportHandler(repository.NewSupportRepo(db), hub, users, nil, zerolog.Nop())
	e.GET("/support/tickets/:id", h.Get, g.Active())
	e.POST("/support/tickets/:id/close", h.Close, g.Active())

	mock.ExpectQuery("FROM support_tickets WHERE id = \\?").WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows(ticketCols).
			AddRow(5, 2, "Card declined", "open", "medium", nil, true, false, fixedNow, fixedNow, nil, nil))

	rec := do(e, http.MethodGet, "/support/tickets/5", "", "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Ticket not found", detail(t, rec))

	rec = do(e, http.MethodPost, "/support/tickets/abc/close", "", "bob")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "id: must be a positive integer", detail(t, rec))

	rec = do(e, http.MethodGet, "/support/tickets/5", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSupportCreateValidation(t *testing.T) {
	db, _ := mockDB(t)
	e, g := newEcho()
	hub := realtime.NewSupportHub(zerolog.Nop())
	t.Cleanup(hub.Stop)
	h := NewSupportHandler(repository.NewSupportRepo(db), hub, users, nil, zerolog.Nop())
	e.POST("/support/tickets", h.Create, g.Active())

	rec := do(e, http.MethodPost, "/support/tickets", `{"subject":"Help","message":"x","priority":"asap"}`, "alice")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, detail(t, rec), "priority")

	rec = do(e, http.MethodPost, "/support/tickets", `{"subject":"Help"`, "alice")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "body: invalid JSON", detail(t, rec))
}

var adCols = []string{"id", "title", "description", "image_url", "link_url", "ad_type", "position", "status",
	"is_active", "start_date", "end_date", "priority", "display_order", "views_count", "clicks_count",
	"target_audience", "created_by", "created_at", "updated_at"}

func newAdHandler(t *testing.T) (*AdHandler, sqlmock.Sqlmock) {
	db, mock := mockDB(t)
	h := NewAdHandler(repository.NewAdRepo(db), nil, nil, "cache", zerolog.Nop())
	h.Now = func() time.Time { return fixedNow }
	return h, mock
}

func TestAdListForPosition(t *testing.T) {
	h, mock := newAdHandler(t)
	e, _ := newEcho()
	e.GET("/advertisements", h.List)

	rec := do(e, http.MethodGet, "/advertisements", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "position: field required", detail(t, rec))

	rec = do(e, http.MethodGet, "/advertisements?position=sidebar", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	mock.ExpectQuery("FROM advertisements").
		WithArgs("home_top", "active", fixedNow, fixedNow, "drivers").
		WillReturnRows(sqlmock.NewRows(adCols).
			AddRow(3, "Oil change", nil, "http://x/a.png", nil, "banner", "home_top", "active", true,
				nil, nil, 5, 0, 10, 1, "drivers", 9, fixedNow, fixedNow))
	rec = do(e, http.MethodGet, "/advertisements?position=home_top&target_audience=drivers", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Oil change"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdViewAndClick(t *testing.T) {
	h, mock := newAdHandler(t)
	e, g := newEcho()
	e.POST("/advertisements/:id/view", h.View, g.Optional())
	e.POST("/advertisements/:id/click", h.Click, g.Optional())

	t.Run("view records the viewer", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE advertisements SET views_count = views_count \\+ 1 WHERE id = \\?").
			WithArgs(uint64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO advertisement_views").
			WithArgs(uint64(4), uint64(1), "192.0.2.1", nil).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		rec := do(e, http.MethodPost, "/advertisements/4/view", "", "alice")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})

	t.Run("click on a missing ad", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE advertisements SET clicks_count").
			WithArgs(uint64(8)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		rec := do(e, http.MethodPost, "/advertisements/8/click", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Advertisement not found", detail(t, rec))
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminCannotTargetThemselves(t *testing.T) {
	e, g := newEcho()
	h := &AdminHandler{Log: zerolog.Nop()}
	e.POST("/admin/user/block", h.SetBlocked, g.Admin())
	e.POST("/admin/user/admin", h.SetAdmin, g.Admin())
	e.DELETE("/admin/user", h.DeleteUser, g.Admin())

	rec := do(e, http.MethodPost, "/admin/user/block", `{"user_id":9,"is_blocked":true}`, "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You cannot block yourself", detail(t, rec))

	rec = do(e, http.MethodPost, "/admin/user/admin", `{"user_id":9,"is_admin":false}`, "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodDelete, "/admin/user?user_id=9", "", "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodDelete, "/admin/user", "", "admin")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(e, http.MethodPost, "/admin/user/block", `{"user_id":1,"is_blocked":true}`, "alice")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
