package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatLine(t *testing.T) {
	line := FormatLine(ModerationEvent{
		Type: EventPlaceApproved, Kind: "gas-stations", EntityID: 12, Name: "Shell",
		Status: "approved", ActorID: 1, ActorAdmin: true, OccurredAt: "2025-03-01T12:00:00Z",
	})
	assert.Equal(t, "[2025-03-01T12:00:00Z] place.approved | id=12 | kind=gas-stations | name=\"Shell\" | status=approved | admin_id=1\n", line)

	line = FormatLine(ModerationEvent{Type: EventTicketOpened, EntityID: 3, ActorID: 9, OccurredAt: "t"})
	assert.Equal(t, "[t] support.ticket_opened | id=3 | user_id=9\n", line)
}

func TestConsumerHandle(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{LogDir: dir, Log: zerolog.Nop()}

	body, err := json.Marshal(ModerationEvent{Type: EventPlaceSubmitted, Kind: "car-washes", EntityID: 4, ActorID: 7, OccurredAt: "t1"})
	require.NoError(t, err)
	require.NoError(t, c.Handle(body))
	require.NoError(t, c.Handle(body))

	raw, err := os.ReadFile(filepath.Join(dir, "moderation.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "place.submitted | id=4 | kind=car-washes")

	assert.Error(t, c.Handle([]byte("{")))
	assert.Error(t, c.Handle([]byte(`{"entity_id":1}`)))
}
