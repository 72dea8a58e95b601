package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// balances and prices are emitted as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	DefaultLanguage = "ru"
	DefaultLevel    = "Новичок"
)

// UserExtended is the per-user profile record created lazily on first use.
type UserExtended struct {
	ID             uint64          `json:"id"`
	UserID         uint64          `json:"user_id"`
	Phone          string          `json:"phone"`
	Name           *string         `json:"name"`
	Email          *string         `json:"email"`
	Avatar         *string         `json:"avatar"`
	Language       string          `json:"language"`
	Balance        decimal.Decimal `json:"balance"`
	Level          string          `json:"level"`
	Rating         float64         `json:"rating"`
	TotalReviews   int             `json:"total_reviews"`
	TotalFavorites int             `json:"total_favorites"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// DocumentInfo describes one uploaded identity document.
type DocumentInfo struct {
	ImageURL   *string    `json:"image_url"`
	Verified   bool       `json:"verified"`
	UploadedAt *time.Time `json:"uploaded_at"`
}

// SettingsBag is the semi-structured settings column. Unknown keys are kept.
type SettingsBag map[string]any

// DefaultSettings returns the settings stored for a freshly provisioned user.
func DefaultSettings() SettingsBag {
	return SettingsBag{"notifications_enabled": true, "language": DefaultLanguage}
}

// Value implements driver.Valuer.
func (s SettingsBag) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *SettingsBag) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("settings: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

// UserProfile holds documents and settings (user_profiles).
type UserProfile struct {
	ID             uint64       `json:"id"`
	UserID         uint64       `json:"user_id"`
	Passport       DocumentInfo `json:"passport"`
	DrivingLicense DocumentInfo `json:"driving_license"`
	Settings       SettingsBag  `json:"settings"`
}

// UserNotificationSettings is the master switch plus per-category toggles.
type UserNotificationSettings struct {
	UserID         uint64 `json:"user_id"`
	Enabled        bool   `json:"enabled"`
	SystemEnabled  bool   `json:"system_enabled"`
	PromoEnabled   bool   `json:"promo_enabled"`
	SupportEnabled bool   `json:"support_enabled"`
	ChatEnabled    bool   `json:"chat_enabled"`
}

// UserStatistics is a denormalized counter row; it can always be recomputed.
type UserStatistics struct {
	UserID         uint64    `json:"user_id"`
	ReviewsCount   int       `json:"reviews_count"`
	FavoritesCount int       `json:"favorites_count"`
	PlacesAdded    int       `json:"places_added"`
	MessagesSent   int       `json:"messages_sent"`
	TicketsCount   int       `json:"tickets_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type FavoriteType string

const (
	FavoriteFuelStation     FavoriteType = "fuel_station"
	FavoriteRestaurant      FavoriteType = "restaurant"
	FavoriteCarService      FavoriteType = "car_service"
	FavoriteCarWash         FavoriteType = "car_wash"
	FavoriteChargingStation FavoriteType = "charging_station"
)

// Valid reports whether t is one of the known favorite types.
func (t FavoriteType) Valid() bool {
	switch t {
	case FavoriteFuelStation, FavoriteRestaurant, FavoriteCarService, FavoriteCarWash, FavoriteChargingStation:
		return true
	}
	return false
}

type UserFavorite struct {
	ID           uint64       `json:"id"`
	UserID       uint64       `json:"user_id"`
	FavoriteType FavoriteType `json:"favorite_type"`
	PlaceID      uint64       `json:"place_id"`
	CreatedAt    time.Time    `json:"created_at"`
}

// SeedAchievements are created locked for every new user.
var SeedAchievements = []string{"first_refuel", "star_driver", "lover", "premium"}

type UserAchievement struct {
	ID              uint64     `json:"id"`
	UserID          uint64     `json:"user_id"`
	AchievementType string     `json:"achievement_type"`
	Unlocked        bool       `json:"unlocked"`
	UnlockedAt      *time.Time `json:"unlocked_at"`
}

// Transaction is an append-only ledger row with a signed amount.
type Transaction struct {
	ID          uint64          `json:"id"`
	UserID      uint64          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"transaction_type"`
	Description *string         `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BalanceInfo breaks a decimal balance into display parts.
type BalanceInfo struct {
	Amount    decimal.Decimal `json:"amount"`
	Whole     int64           `json:"whole"`
	Fraction  int64           `json:"fraction"`
	Formatted string          `json:"formatted"`
}

// NewBalanceInfo splits d at two decimal places. Whole and Fraction share
// the sign of d.
func NewBalanceInfo(d decimal.Decimal) BalanceInfo {
	d = d.Round(2)
	whole := d.Truncate(0)
	frac := d.Sub(whole).Shift(2).IntPart()
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	absFrac := frac
	if absFrac < 0 {
		absFrac = -absFrac
	}
	return BalanceInfo{
		Amount:    d,
		Whole:     whole.IntPart(),
		Fraction:  frac,
		Formatted: fmt.Sprintf("%s%s.%02d", sign, groupThousands(whole.Abs().String()), absFrac),
	}
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// ErrInvalidEmail is returned when an email lacks an "@".
var ErrInvalidEmail = errors.New("invalid email")

// ValidateEmail performs the minimal presence check used by the profile API.
func ValidateEmail(email string) error {
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	return nil
}
