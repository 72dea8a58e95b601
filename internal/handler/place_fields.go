package handler

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/iliyamo/autopoint-backend/internal/model"
)

type fieldKind int

const (
	textField fieldKind = iota
	nullableText
	boolField
	latField
	lonField
	intField
	timeField
)

// baseFields are writable on every kind. Kind attributes are nullable text
// and kind features are booleans.
var baseFields = map[string]fieldKind{
	"name":          textField,
	"address":       textField,
	"latitude":      latField,
	"longitude":     lonField,
	"phone":         nullableText,
	"website":       nullableText,
	"description":   nullableText,
	"working_hours": nullableText,
	"is_24_7":       boolField,
}

// adminOnlyFields extend the schema for admins.
var adminOnlyFields = map[string]fieldKind{
	"has_promotions": boolField,
}

var requiredOnCreate = []string{"name", "address", "latitude", "longitude"}

const maxTextLen = 1000

func fieldKindOf(kind model.PlaceKind, name string, admin bool) (fieldKind, bool) {
	if fk, ok := baseFields[name]; ok {
		return fk, true
	}
	if fk, ok := adminOnlyFields[name]; ok && admin {
		return fk, true
	}
	if kind.HasAttribute(name) {
		return nullableText, true
	}
	if kind.HasFeature(name) {
		return boolField, true
	}
	return 0, false
}

// placeFields decodes a create or patch body into column values, rejecting
// unknown keys and values of the wrong shape with 422.
func placeFields(c echo.Context, kind model.PlaceKind, admin, create bool) (map[string]any, error) {
	var required []string
	if create {
		required = requiredOnCreate
	}
	return decodeFields(c, func(name string) (fieldKind, bool) {
		return fieldKindOf(kind, name, admin)
	}, required)
}

func decodeFields(c echo.Context, lookup func(string) (fieldKind, bool), required []string) (map[string]any, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, "body: invalid JSON")
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(raw))
	for _, k := range keys {
		fk, ok := lookup(k)
		if !ok {
			return nil, unprocessable(k, "field not permitted")
		}
		var v any
		if err := json.Unmarshal(raw[k], &v); err != nil {
			return nil, unprocessable(k, "invalid value")
		}
		val, err := convertField(fk, v)
		if err != nil {
			return nil, unprocessable(k, err.Error())
		}
		out[k] = val
	}
	for _, k := range required {
		if _, ok := out[k]; !ok {
			return nil, unprocessable(k, "field required")
		}
	}
	return out, nil
}

func convertField(fk fieldKind, v any) (any, error) {
	if v == nil {
		if fk == nullableText || fk == timeField {
			return nil, nil
		}
		return nil, fmt.Errorf("must not be null")
	}
	switch fk {
	case textField, nullableText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		s = strings.TrimSpace(s)
		if fk == textField && s == "" {
			return nil, fmt.Errorf("must not be empty")
		}
		if len(s) > maxTextLen {
			return nil, fmt.Errorf("must have at most %d characters", maxTextLen)
		}
		if fk == nullableText && s == "" {
			return nil, nil
		}
		return s, nil
	case boolField:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil
	case latField, lonField:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("must be a number")
		}
		limit := 90.0
		if fk == lonField {
			limit = 180
		}
		if f < -limit || f > limit {
			return nil, fmt.Errorf("must be between %v and %v", -limit, limit)
		}
		return f, nil
	case intField:
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("must be an integer")
		}
		return int64(f), nil
	case timeField:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a datetime")
		}
		t, err := cast.ToTimeE(s)
		if err != nil {
			return nil, fmt.Errorf("must be a datetime")
		}
		return t.UTC(), nil
	}
	return nil, fmt.Errorf("unsupported field")
}

func unprocessable(field, cause string) error {
	return echo.NewHTTPError(http.StatusUnprocessableEntity, field+": "+cause)
}
