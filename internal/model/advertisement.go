package model

import "time"

// Advertisement placement slots.
const (
	PositionHomeTop    = "home_top"
	PositionHomeMiddle = "home_middle"
	PositionHomeBottom = "home_bottom"
	PositionMap        = "map"
	PositionList       = "list"
	PositionDetail     = "detail"
	PositionProfile    = "profile"
)

// Advertisement statuses. Only "active" rows are served.
const (
	AdStatusDraft    = "draft"
	AdStatusActive   = "active"
	AdStatusPaused   = "paused"
	AdStatusArchived = "archived"
)

// AdPositions lists every placement slot.
var AdPositions = []string{PositionHomeTop, PositionHomeMiddle, PositionHomeBottom, PositionMap,
	PositionList, PositionDetail, PositionProfile}

// AdStatuses lists every lifecycle status.
var AdStatuses = []string{AdStatusDraft, AdStatusActive, AdStatusPaused, AdStatusArchived}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func ValidAdPosition(p string) bool { return oneOf(p, AdPositions) }

func ValidAdStatus(s string) bool { return oneOf(s, AdStatuses) }

type Advertisement struct {
	ID             uint64     `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	ImageURL       string     `json:"image_url"`
	LinkURL        *string    `json:"link_url"`
	AdType         string     `json:"ad_type"`
	Position       string     `json:"position"`
	Status         string     `json:"status"`
	IsActive       bool       `json:"is_active"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	Priority       int        `json:"priority"`
	DisplayOrder   int        `json:"display_order"`
	ViewsCount     int64      `json:"views_count"`
	ClicksCount    int64      `json:"clicks_count"`
	TargetAudience *string    `json:"target_audience"`
	CreatedBy      *uint64    `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Servable reports whether the ad may be shown at now to audience.
// A nil audience on either side matches.
func (a Advertisement) Servable(now time.Time, audience *string) bool {
	if !a.IsActive || a.Status != AdStatusActive {
		return false
	}
	if a.StartDate != nil && a.StartDate.After(now) {
		return false
	}
	if a.EndDate != nil && a.EndDate.Before(now) {
		return false
	}
	if audience != nil && a.TargetAudience != nil && *a.TargetAudience != *audience {
		return false
	}
	return true
}

// CTR is clicks per view as a percentage, zero when there are no views.
func (a Advertisement) CTR() float64 {
	if a.ViewsCount == 0 {
		return 0
	}
	return float64(a.ClicksCount) / float64(a.ViewsCount) * 100
}

// AdEvent is a view or click impression row.
type AdEvent struct {
	AdvertisementID uint64
	UserID          *uint64
	IPAddress       string
	UserAgent       string
}
