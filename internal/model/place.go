package model

import (
	"encoding/json"
	"time"
)

// PlaceStatus is the moderation state of a place.
type PlaceStatus string

const (
	StatusPending  PlaceStatus = "pending"
	StatusApproved PlaceStatus = "approved"
	StatusRejected PlaceStatus = "rejected"
	StatusArchived PlaceStatus = "archived"
)

func (s PlaceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusArchived:
		return true
	}
	return false
}

// PlaceKind describes one of the five moderated place families: which
// tables back it and which kind-specific columns it carries. Everything
// that differs between gas stations, restaurants and the rest is data here.
type PlaceKind struct {
	Slug         string       // URL segment, e.g. "gas-stations"
	Table        string       // main table
	FK           string       // foreign key column in child tables
	PhotoTable   string
	ReviewTable  string
	Bucket       string       // upload directory under UPLOAD_DIR
	FavoriteType FavoriteType // favorite_type used by user_favorites
	Attributes   []string     // nullable string columns
	Features     []string     // boolean columns
	PriceTable   string       // tariff table used by price_min/price_max
	PriceColumn  string
	TariffTables []string     // every child pricing table, removed with the place
}

var (
	GasKind = PlaceKind{
		Slug: "gas-stations", Table: "gas_stations", FK: "gas_station_id",
		PhotoTable: "gas_station_photos", ReviewTable: "gas_station_reviews",
		Bucket: "gas_stations", FavoriteType: FavoriteFuelStation,
		Attributes:   []string{"brand"},
		Features:     []string{"has_shop", "has_cafe", "has_toilet", "has_atm", "has_car_wash", "has_tire_service", "has_parking"},
		PriceTable:   "fuel_prices",
		PriceColumn:  "price",
		TariffTables: []string{"fuel_prices"},
	}
	ElectricKind = PlaceKind{
		Slug: "electric-stations", Table: "electric_stations", FK: "electric_station_id",
		PhotoTable: "electric_station_photos", ReviewTable: "electric_station_reviews",
		Bucket: "electric_stations", FavoriteType: FavoriteChargingStation,
		Attributes:   []string{"operator"},
		Features:     []string{"has_parking", "has_cafe", "has_wifi", "has_toilet", "is_free"},
		PriceTable:   "charging_points",
		PriceColumn:  "price_per_kwh",
		TariffTables: []string{"charging_points"},
	}
	RestaurantKind = PlaceKind{
		Slug: "restaurants", Table: "restaurants", FK: "restaurant_id",
		PhotoTable: "restaurant_photos", ReviewTable: "restaurant_reviews",
		Bucket: "restaurants", FavoriteType: FavoriteRestaurant,
		Attributes:   []string{"cuisine_type", "price_range"},
		Features:     []string{"has_parking", "has_wifi", "has_delivery", "has_takeaway", "has_kids_zone", "has_terrace"},
		PriceTable:   "menu_items",
		PriceColumn:  "price",
		TariffTables: []string{"menu_items", "menu_categories"},
	}
	ServiceKind = PlaceKind{
		Slug: "service-stations", Table: "service_stations", FK: "service_station_id",
		PhotoTable: "service_station_photos", ReviewTable: "service_station_reviews",
		Bucket: "service_stations", FavoriteType: FavoriteCarService,
		Attributes:   []string{"specialization"},
		Features:     []string{"has_parking", "has_waiting_room", "has_wifi", "accepts_cards", "has_tow_truck"},
		PriceTable:   "service_prices",
		PriceColumn:  "price",
		TariffTables: []string{"service_prices"},
	}
	WashKind = PlaceKind{
		Slug: "car-washes", Table: "car_washes", FK: "car_wash_id",
		PhotoTable: "car_wash_photos", ReviewTable: "car_wash_reviews",
		Bucket: "car_washes", FavoriteType: FavoriteCarWash,
		Attributes:   []string{"wash_type"},
		Features:     []string{"has_parking", "has_waiting_room", "has_cafe", "accepts_cards", "is_self_service"},
		PriceTable:   "wash_services",
		PriceColumn:  "price",
		TariffTables: []string{"wash_services"},
	}
)

// Kinds lists every place family in routing order.
var Kinds = []PlaceKind{GasKind, ElectricKind, RestaurantKind, ServiceKind, WashKind}

// KindByFavorite maps a favorite type back to its place family.
func KindByFavorite(t FavoriteType) (PlaceKind, bool) {
	for _, k := range Kinds {
		if k.FavoriteType == t {
			return k, true
		}
	}
	return PlaceKind{}, false
}

// HasAttribute reports whether name is a kind-specific string column.
func (k PlaceKind) HasAttribute(name string) bool { return contains(k.Attributes, name) }

// HasFeature reports whether name is a kind-specific boolean column.
func (k PlaceKind) HasFeature(name string) bool { return contains(k.Features, name) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Place is the shared shape of every moderated point of interest. Kind
// specific columns live in Attributes and Features and are flattened into
// the JSON object.
type Place struct {
	ID               uint64
	Name             string
	Address          string
	Latitude         float64
	Longitude        float64
	Phone            *string
	Website          *string
	Description      *string
	WorkingHours     *string
	Is24x7           bool
	Rating           float64
	ReviewsCount     int
	Status           PlaceStatus
	CreatedByUserID  *uint64
	CreatedByAdminID *uint64
	HasPromotions    bool
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Attributes map[string]*string
	Features   map[string]bool

	MainPhotoURL *string  // list projection only
	DistanceKm   *float64 // set when a radius filter was applied
}

// IsCreator reports whether userID submitted the place.
func (p Place) IsCreator(userID uint64) bool {
	return (p.CreatedByUserID != nil && *p.CreatedByUserID == userID) ||
		(p.CreatedByAdminID != nil && *p.CreatedByAdminID == userID)
}

// Fields returns the flat JSON representation.
func (p Place) Fields() map[string]any {
	m := map[string]any{
		"id":                  p.ID,
		"name":                p.Name,
		"address":             p.Address,
		"latitude":            p.Latitude,
		"longitude":           p.Longitude,
		"phone":               p.Phone,
		"website":             p.Website,
		"description":         p.Description,
		"working_hours":       p.WorkingHours,
		"is_24_7":             p.Is24x7,
		"rating":              p.Rating,
		"reviews_count":       p.ReviewsCount,
		"status":              p.Status,
		"created_by_user_id":  p.CreatedByUserID,
		"created_by_admin_id": p.CreatedByAdminID,
		"has_promotions":      p.HasPromotions,
		"approved_at":         p.ApprovedAt,
		"created_at":          p.CreatedAt,
		"updated_at":          p.UpdatedAt,
	}
	for k, v := range p.Attributes {
		m[k] = v
	}
	for k, v := range p.Features {
		m[k] = v
	}
	if p.MainPhotoURL != nil {
		m["main_photo_url"] = *p.MainPhotoURL
	}
	if p.DistanceKm != nil {
		m["distance_km"] = *p.DistanceKm
	}
	return m
}

func (p Place) MarshalJSON() ([]byte, error) { return json.Marshal(p.Fields()) }

// PlacePhoto is one image of a place; at most one per place has IsMain.
type PlacePhoto struct {
	ID        uint64    `json:"id"`
	PlaceID   uint64    `json:"place_id"`
	URL       string    `json:"url"`
	IsMain    bool      `json:"is_main"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// Review is a 1-5 star rating left by one user on one place.
type Review struct {
	ID        uint64    `json:"id"`
	PlaceID   uint64    `json:"place_id"`
	UserID    uint64    `json:"user_id"`
	UserName  *string   `json:"user_name"`
	Rating    int       `json:"rating"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlaceDetail is the detail payload: the place plus its children.
type PlaceDetail struct {
	Place   Place
	Photos  []PlacePhoto
	Reviews []Review
	Tariffs map[string]any // e.g. "fuel_prices" -> []FuelPrice
}

func (d PlaceDetail) MarshalJSON() ([]byte, error) {
	m := d.Place.Fields()
	m["photos"] = nonNil(d.Photos)
	m["reviews"] = nonNil(d.Reviews)
	for k, v := range d.Tariffs {
		m[k] = v
	}
	return json.Marshal(m)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Page is the envelope returned by every paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// NewPage normalizes a nil slice to an empty JSON array.
func NewPage[T any](items []T, total, skip, limit int) Page[T] {
	return Page[T]{Items: nonNil(items), Total: total, Skip: skip, Limit: limit}
}
