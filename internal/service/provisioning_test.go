package service

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/queue"
	"github.com/iliyamo/autopoint-backend/internal/repository"
)

func TestEnsureRepairsMissingDependents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := &Provisioner{Profiles: repository.NewProfileRepo(db), Log: zerolog.Nop()}

	mock.ExpectQuery("SELECT").WithArgs(uint64(9), uint64(9), uint64(9), uint64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(false))
	mock.ExpectBegin()
	for i := 0; i < 4; i++ {
		mock.ExpectExec("INSERT IGNORE INTO").WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()
	mock.ExpectExec("INSERT IGNORE INTO user_achievements").WillReturnResult(sqlmock.NewResult(1, 4))

	repaired, err := p.Ensure(context.Background(), 9, "+998900000009")
	require.NoError(t, err)
	assert.True(t, repaired)

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"ok"}).AddRow(true))
	repaired, err = p.Ensure(context.Background(), 9, "+998900000009")
	require.NoError(t, err)
	assert.False(t, repaired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventBuilders(t *testing.T) {
	ev := PlaceEvent(queue.EventPlaceApproved, model.WashKind,
		model.Place{ID: 3, Name: "Clean", Status: model.StatusApproved}, 1, true)
	assert.Equal(t, "car-washes", ev.Kind)
	assert.Equal(t, uint64(3), ev.EntityID)
	assert.Equal(t, "approved", ev.Status)
	assert.True(t, ev.ActorAdmin)
	assert.NotEmpty(t, ev.OccurredAt)

	tev := TicketEvent(model.SupportTicket{ID: 4, UserID: 8, Subject: "Help", Status: model.TicketOpen})
	assert.Equal(t, queue.EventTicketOpened, tev.Type)
	assert.Equal(t, uint64(8), tev.ActorID)
	assert.False(t, tev.ActorAdmin)
}
