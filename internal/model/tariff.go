package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FuelPrice is unique per (gas_station_id, fuel_type).
type FuelPrice struct {
	ID              uint64          `json:"id"`
	GasStationID    uint64          `json:"gas_station_id"`
	FuelType        string          `json:"fuel_type" validate:"required,max=32"`
	Price           decimal.Decimal `json:"price"`
	IsAvailable     bool            `json:"is_available"`
	UpdatedByUserID *uint64         `json:"updated_by_user_id"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ChargingPoint is one connector of an electric station.
type ChargingPoint struct {
	ID                uint64          `json:"id"`
	ElectricStationID uint64          `json:"electric_station_id"`
	ConnectorType     string          `json:"connector_type" validate:"required,max=32"`
	PowerKW           float64         `json:"power_kw" validate:"gte=0"`
	PricePerKWh       decimal.Decimal `json:"price_per_kwh"`
	Status            string          `json:"status" validate:"omitempty,oneof=available occupied out_of_service"`
	UpdatedByUserID   *uint64         `json:"updated_by_user_id"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ServicePrice struct {
	ID               uint64          `json:"id"`
	ServiceStationID uint64          `json:"service_station_id"`
	ServiceName      string          `json:"service_name" validate:"required,max=255"`
	Price            decimal.Decimal `json:"price"`
	DurationMinutes  *int            `json:"duration_minutes" validate:"omitempty,gte=0"`
	Description      *string         `json:"description"`
	UpdatedByUserID  *uint64         `json:"updated_by_user_id"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type WashService struct {
	ID              uint64          `json:"id"`
	CarWashID       uint64          `json:"car_wash_id"`
	ServiceName     string          `json:"service_name" validate:"required,max=255"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes *int            `json:"duration_minutes" validate:"omitempty,gte=0"`
	Description     *string         `json:"description"`
	UpdatedByUserID *uint64         `json:"updated_by_user_id"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type MenuCategory struct {
	ID              uint64    `json:"id"`
	RestaurantID    uint64    `json:"restaurant_id"`
	Name            string    `json:"name" validate:"required,max=255"`
	Order           int       `json:"order"`
	UpdatedByUserID *uint64   `json:"updated_by_user_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type MenuItem struct {
	ID              uint64          `json:"id"`
	RestaurantID    uint64          `json:"restaurant_id"`
	CategoryID      *uint64         `json:"category_id"`
	Name            string          `json:"name" validate:"required,max=255"`
	Description     *string         `json:"description"`
	Price           decimal.Decimal `json:"price"`
	ImageURL        *string         `json:"image_url"`
	IsAvailable     bool            `json:"is_available"`
	UpdatedByUserID *uint64         `json:"updated_by_user_id"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
