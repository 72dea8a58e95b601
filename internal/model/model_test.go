package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketApplyMessage(t *testing.T) {
	cases := []struct {
		name     string
		from     TicketStatus
		fromUser bool
		want     TicketStatus
	}{
		{"user on closed reopens", TicketClosed, true, TicketOpen},
		{"user on resolved reopens", TicketResolved, true, TicketOpen},
		{"user on in_progress stays", TicketInProgress, true, TicketInProgress},
		{"admin on open starts work", TicketOpen, false, TicketInProgress},
		{"admin on resolved stays", TicketResolved, false, TicketResolved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := SupportTicket{Status: tc.from, IsReadByUser: true, IsReadByAdmin: true}.ApplyMessage(tc.fromUser)
			assert.Equal(t, tc.want, next.Status)
			if tc.fromUser {
				assert.False(t, next.IsReadByAdmin)
				assert.True(t, next.IsReadByUser)
			} else {
				assert.False(t, next.IsReadByUser)
				assert.True(t, next.IsReadByAdmin)
			}
		})
	}
}

func TestTicketApplyStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r := SupportTicket{Status: TicketOpen}.ApplyStatus(TicketResolved, now)
	require.NotNil(t, r.ResolvedAt)
	assert.Equal(t, now, *r.ResolvedAt)
	assert.Nil(t, r.ClosedAt)

	c := r.ApplyStatus(TicketClosed, now)
	require.NotNil(t, c.ClosedAt)
	assert.Equal(t, TicketClosed, c.Status)
}

func TestBalanceInfo(t *testing.T) {
	b := NewBalanceInfo(decimal.RequireFromString("1234567.5"))
	assert.Equal(t, int64(1234567), b.Whole)
	assert.Equal(t, int64(50), b.Fraction)
	assert.Equal(t, "1 234 567.50", b.Formatted)

	zero := NewBalanceInfo(decimal.Zero)
	assert.Equal(t, "0.00", zero.Formatted)

	neg := NewBalanceInfo(decimal.RequireFromString("-12.07"))
	assert.Equal(t, int64(-12), neg.Whole)
	assert.Equal(t, "-12.07", neg.Formatted)
}

func TestAdvertisementServable(t *testing.T) {
	now := time.Now().UTC()
	past, future := now.Add(-time.Hour), now.Add(time.Hour)
	drivers := "drivers"
	other := "other"

	base := Advertisement{IsActive: true, Status: AdStatusActive}
	assert.True(t, base.Servable(now, nil))

	inactive := base
	inactive.IsActive = false
	assert.False(t, inactive.Servable(now, nil))

	paused := base
	paused.Status = AdStatusPaused
	assert.False(t, paused.Servable(now, nil))

	notStarted := base
	notStarted.StartDate = &future
	assert.False(t, notStarted.Servable(now, nil))

	ended := base
	ended.EndDate = &past
	assert.False(t, ended.Servable(now, nil))

	targeted := base
	targeted.TargetAudience = &drivers
	assert.True(t, targeted.Servable(now, &drivers))
	assert.False(t, targeted.Servable(now, &other))
	assert.True(t, targeted.Servable(now, nil))
}

func TestPlaceJSONFlattensKindColumns(t *testing.T) {
	brand := "UzNeft"
	url := "http://x/uploads/gas_stations/a.jpg"
	p := Place{
		ID:         1,
		Name:       "A",
		Status:     StatusApproved,
		Attributes: map[string]*string{"brand": &brand},
		Features:   map[string]bool{"has_cafe": true},
	}
	d := PlaceDetail{Place: p, Tariffs: map[string]any{"fuel_prices": []FuelPrice{}}}
	d.Place.MainPhotoURL = &url

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, "UzNeft", got["brand"])
	assert.Equal(t, true, got["has_cafe"])
	assert.Equal(t, "approved", got["status"])
	assert.Equal(t, url, got["main_photo_url"])
	assert.Equal(t, []any{}, got["photos"])
	assert.Contains(t, got, "fuel_prices")
}

func TestSettingsBagScan(t *testing.T) {
	var s SettingsBag
	require.NoError(t, s.Scan([]byte(`{"language":"uz","theme":"dark"}`)))
	assert.Equal(t, "uz", s["language"])
	assert.Equal(t, "dark", s["theme"])

	v, err := DefaultSettings().Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"notifications_enabled":true,"language":"ru"}`, v.(string))
}
