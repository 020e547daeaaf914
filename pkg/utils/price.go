package utils

import (
	"math"
	"strconv"
	"strings"

	"cruisesync-service/internal/domain/entity"
)

// ParsePrice extracts a usable price from a raw JSON value. Providers send
// prices as numbers or strings depending on line and feed version.
// Non-numeric, empty, zero and negative values are absent, never zero.
func ParsePrice(v interface{}) *float64 {
	var price float64
	switch val := v.(type) {
	case float64:
		price = val
	case int:
		price = float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		price = parsed
	default:
		return nil
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil
	}
	return &price
}

// PriceField reads a price from a value that is either the price itself or a
// sub-object carrying it in a "price" or "total" field.
func PriceField(v interface{}) *float64 {
	if sub, ok := v.(map[string]interface{}); ok {
		if p := ParsePrice(sub["price"]); p != nil {
			return p
		}
		return ParsePrice(sub["total"])
	}
	return ParsePrice(v)
}

// RoundMinor rounds to the currency's minor unit. Every provider currency
// observed so far uses two minor digits.
func RoundMinor(v float64) float64 {
	return math.Round(v*100) / 100
}

// CabinCategoryFromType maps a provider cabin type string to a canonical
// category. Matching is on the lower-cased string.
func CabinCategoryFromType(s string) (entity.CabinCategory, bool) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch {
	case t == "":
		return "", false
	case strings.Contains(t, "suite"):
		return entity.CategorySuite, true
	case strings.Contains(t, "balcony") || strings.Contains(t, "verandah"):
		return entity.CategoryBalcony, true
	case strings.Contains(t, "outside") || strings.Contains(t, "oceanview") || strings.Contains(t, "ocean view") || strings.Contains(t, "outer"):
		return entity.CategoryOceanview, true
	case strings.Contains(t, "inside") || strings.Contains(t, "interior"):
		return entity.CategoryInterior, true
	}
	return "", false
}
