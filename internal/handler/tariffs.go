package handler

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/autopoint-backend/internal/repository"
)

// TariffSet is one pricing child mounted under a place, e.g. fuel prices.
type TariffSet interface {
	Key() string
	ListAny(ctx context.Context, placeID uint64) (any, error)
	Delete(ctx context.Context, placeID, id uint64) error
	replace(c echo.Context, placeID, editorID uint64) (any, error)
}

type tariffs[T any] struct {
	*repository.TariffRepo[T]
}

// Tariffs exposes a tariff repository to the place routes.
func Tariffs[T any](r *repository.TariffRepo[T]) TariffSet { return tariffs[T]{r} }

type bulkReq[T any] struct {
	Items []T `json:"items" validate:"required,dive"`
}

func (t tariffs[T]) replace(c echo.Context, placeID, editorID uint64) (any, error) {
	var req bulkReq[T]
	if err := bind(c, &req); err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	out, err := t.BulkUpsert(ctx, placeID, req.Items, editorID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Segment is the URL form of a payload key: fuel_prices -> fuel-prices.
func Segment(t TariffSet) string { return strings.ReplaceAll(t.Key(), "_", "-") }
