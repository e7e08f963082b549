package units

import (
	"regexp"
	"strconv"
	"strings"
)

// packageSizePattern matches sizes like "16 oz", "1.5 lb", "64 fl oz", "12 ct", "1 gal"
var packageSizePattern = regexp.MustCompile(
	`(?i)(\d+(?:\.\d+)?)\s*(fl\.?\s*oz|fluid\s+ounces?|oz|ounces?|lbs?|pounds?|kg|g|grams?|ml|l|liters?|ct|count|each|ea|gal(?:lons?)?|qt|quarts?|pt|pints?)\b`,
)

// multiPackPattern matches "6 x 12 oz" style multipacks
var multiPackPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(?:x|ct\s*/|pk\s*/)\s*`)

// ParsePackageSize extracts the quantity and canonical unit from a package size label.
// "6 x 12 fl oz" yields (72, "fl-oz").
func ParsePackageSize(label string) (float64, string, bool) {
	multiplier := 1.0
	rest := label
	if m := multiPackPattern.FindStringSubmatch(label); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil && n > 0 {
			multiplier = n
			rest = label[len(m[0]):]
		}
	}

	m := packageSizePattern.FindStringSubmatch(rest)
	if m == nil {
		return 0, "", false
	}
	qty, err := strconv.ParseFloat(m[1], 64)
	if err != nil || qty <= 0 {
		return 0, "", false
	}
	unit := Normalize(strings.ReplaceAll(m[2], ".", ""))
	if strings.HasPrefix(unit, "fl") {
		unit = "fl-oz"
	}
	return qty * multiplier, unit, true
}

// PerUnitPrice converts the price of a whole package into a price per target unit.
// The boolean is false when the package unit cannot be related to target.
func (c *Converter) PerUnitPrice(packagePrice, quantity float64, packageUnit, target, ingredient string) (float64, bool) {
	if quantity <= 0 {
		return 0, false
	}
	return c.ConvertFor(packagePrice/quantity, packageUnit, target, ingredient)
}
