// Package units normalizes grocery unit spellings and converts per-unit prices between them.
//
// Conversions inside the weight and volume families are exact. Count-like units and
// cross-family conversions rely on approximate calibration values (reference package
// weight, reference container volume, liquid density) kept in Calibration.
package units

import (
	"strings"
)

// Family groups units that convert into each other with fixed ratios
type Family int

const (
	Unknown Family = iota
	Weight
	Volume
	Count
)

func (f Family) String() string {
	switch f {
	case Weight:
		return "weight"
	case Volume:
		return "volume"
	case Count:
		return "count"
	default:
		return "unknown"
	}
}

// gramsPer holds the size of each weight unit in grams
var gramsPer = map[string]float64{
	"g":  1.0,
	"kg": 1000.0,
	"lb": 453.592,
	"oz": 28.3495,
}

// millilitersPer holds the size of each volume unit in milliliters
var millilitersPer = map[string]float64{
	"ml":     1.0,
	"l":      1000.0,
	"fl-oz":  29.5735,
	"cup":    236.588,
	"tbsp":   14.7868,
	"tsp":    4.92892,
	"pint":   473.176,
	"quart":  946.353,
	"gallon": 3785.41,
}

// wholeItemUnits denote one whole item or package
var wholeItemUnits = map[string]bool{
	"each": true, "ct": true, "count": true, "piece": true, "item": true,
}

// sliceUnits are pieces cut from one whole item
var sliceUnits = map[string]bool{"slice": true, "wedge": true}

// smallUnits are small pieces pulled off one whole item
var smallUnits = map[string]bool{"clove": true, "sprig": true, "leaf": true}

// otherCountUnits are count-like but carry no heuristic ratio
var otherCountUnits = map[string]bool{"stalk": true}

var aliases = map[string]string{
	"lbs": "lb", "pound": "lb", "pounds": "lb",
	"ounce": "oz", "ounces": "oz",
	"gram": "g", "grams": "g", "gr": "g",
	"kilogram": "kg", "kilograms": "kg", "kgs": "kg",
	"milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
	"liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"fl.-oz": "fl-oz", "floz": "fl-oz", "fl.oz": "fl-oz", "fluid-ounce": "fl-oz", "fluid-ounces": "fl-oz",
	"cups": "cup", "c": "cup",
	"tablespoon": "tbsp", "tablespoons": "tbsp", "tbs": "tbsp", "tbl": "tbsp",
	"teaspoon": "tsp", "teaspoons": "tsp",
	"pints": "pint", "pt": "pint",
	"quarts": "quart", "qt": "quart",
	"gallons": "gallon", "gal": "gallon",
	"ea": "each", "counts": "count", "pieces": "piece", "pc": "piece", "pcs": "piece", "items": "item",
	"slices": "slice", "wedges": "wedge",
	"cloves": "clove", "sprigs": "sprig", "leaves": "leaf", "stalks": "stalk",
}

// Normalize returns the canonical form of unit: trimmed, lower-case, inner spaces replaced
// by hyphens, with common spellings folded onto one token ("Fl Oz" → "fl-oz", "lbs" → "lb").
func Normalize(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.Join(strings.Fields(u), "-")
	if canonical, ok := aliases[u]; ok {
		return canonical
	}
	return u
}

// FamilyOf returns the family of unit
func FamilyOf(unit string) Family {
	u := Normalize(unit)
	switch {
	case gramsPer[u] > 0:
		return Weight
	case millilitersPer[u] > 0:
		return Volume
	case isCountLike(u):
		return Count
	default:
		return Unknown
	}
}

func isCountLike(u string) bool {
	return wholeItemUnits[u] || sliceUnits[u] || smallUnits[u] || otherCountUnits[u]
}

// Calibration holds the approximate constants behind cross-family conversions.
// They are estimates, not physical truths.
type Calibration struct {
	// EachGrams is the reference weight of one "each" package
	EachGrams float64
	// EachMilliliters is the reference volume of one "each" container
	EachMilliliters float64
	// Density is the default g/ml used for weight ↔ volume conversions
	Density float64
	// SlicesPerEach is the number of slices or wedges cut from one item
	SlicesPerEach float64
	// PiecesPerEach is the number of cloves, sprigs or leaves on one item
	PiecesPerEach float64
	// CupsPerCan is the volume of one canned "ct" in cups
	CupsPerCan float64
	// Densities maps an ingredient keyword to its density in g/ml
	Densities map[string]float64
}

// DefaultCalibration returns the calibration used when none is configured
func DefaultCalibration() Calibration {
	return Calibration{
		EachGrams:       300.0,
		EachMilliliters: 473.0,
		Density:         1.0,
		SlicesPerEach:   5.0,
		PiecesPerEach:   9.0,
		CupsPerCan:      1.5,
		Densities: map[string]float64{
			"milk":    1.03,
			"water":   1.0,
			"juice":   1.05,
			"oil":     0.92,
			"vinegar": 1.01,
			"wine":    0.99,
			"beer":    1.01,
			"soda":    1.04,
		},
	}
}

// Converter converts per-unit prices using a calibration
type Converter struct {
	cal Calibration
}

// NewConverter creates a converter, filling zero calibration fields with defaults
func NewConverter(cal Calibration) *Converter {
	def := DefaultCalibration()
	if cal.EachGrams <= 0 {
		cal.EachGrams = def.EachGrams
	}
	if cal.EachMilliliters <= 0 {
		cal.EachMilliliters = def.EachMilliliters
	}
	if cal.Density <= 0 {
		cal.Density = def.Density
	}
	if cal.SlicesPerEach <= 0 {
		cal.SlicesPerEach = def.SlicesPerEach
	}
	if cal.PiecesPerEach <= 0 {
		cal.PiecesPerEach = def.PiecesPerEach
	}
	if cal.CupsPerCan <= 0 {
		cal.CupsPerCan = def.CupsPerCan
	}
	if cal.Densities == nil {
		cal.Densities = def.Densities
	}
	return &Converter{cal: cal}
}

var defaultConverter = NewConverter(DefaultCalibration())

// ConvertPrice converts a per-unit price with the default calibration.
// The boolean is false when no rule relates the two units.
func ConvertPrice(price float64, fromUnit, toUnit string) (float64, bool) {
	return defaultConverter.Convert(price, fromUnit, toUnit)
}

// Calibration returns the converter's calibration
func (c *Converter) Calibration() Calibration {
	return c.cal
}

// Convert converts a price per fromUnit into a price per toUnit
func (c *Converter) Convert(price float64, fromUnit, toUnit string) (float64, bool) {
	return c.convert(price, Normalize(fromUnit), Normalize(toUnit), c.cal.Density)
}

// ConvertFor converts like Convert but uses the liquid density of ingredient when one is known
func (c *Converter) ConvertFor(price float64, fromUnit, toUnit, ingredient string) (float64, bool) {
	return c.convert(price, Normalize(fromUnit), Normalize(toUnit), c.DensityOf(ingredient))
}

// DensityOf returns the density in g/ml for the first density keyword contained in ingredient
func (c *Converter) DensityOf(ingredient string) float64 {
	name := strings.ToLower(ingredient)
	best, bestLen := c.cal.Density, 0
	for keyword, density := range c.cal.Densities {
		if len(keyword) > bestLen && strings.Contains(name, keyword) {
			best, bestLen = density, len(keyword)
		}
	}
	return best
}

func (c *Converter) convert(price float64, f, t string, density float64) (float64, bool) {
	if f == t {
		return price, true
	}

	// Sub-item heuristics: whole item ↔ slices, cloves and the like
	switch {
	case f == "each" && sliceUnits[t]:
		return price / c.cal.SlicesPerEach, true
	case sliceUnits[f] && t == "each":
		return price * c.cal.SlicesPerEach, true
	case f == "each" && smallUnits[t]:
		return price / c.cal.PiecesPerEach, true
	case smallUnits[f] && t == "each":
		return price * c.cal.PiecesPerEach, true
	}

	// Remaining count-like pairs are treated as equivalent
	if isCountLike(f) && isCountLike(t) {
		return price, true
	}

	if gramsPer[f] > 0 && gramsPer[t] > 0 {
		return price * gramsPer[t] / gramsPer[f], true
	}
	if millilitersPer[f] > 0 && millilitersPer[t] > 0 {
		return price * millilitersPer[t] / millilitersPer[f], true
	}

	// Canned goods: one can holds about 1.5 cups
	if f == "ct" && t == "cup" {
		return price / c.cal.CupsPerCan, true
	}
	if f == "cup" && t == "ct" {
		return price * c.cal.CupsPerCan, true
	}

	// Sub-items reach other families through one whole item
	if sliceUnits[f] || smallUnits[f] {
		if perEach, ok := c.convert(price, f, "each", density); ok {
			return c.convert(perEach, "each", t, density)
		}
	}
	if sliceUnits[t] || smallUnits[t] {
		if perEach, ok := c.convert(price, f, "each", density); ok {
			return c.convert(perEach, "each", t, density)
		}
	}

	// Whole items ↔ volume through the reference container
	if wholeItemUnits[f] && millilitersPer[t] > 0 {
		return price * millilitersPer[t] / c.cal.EachMilliliters, true
	}
	if millilitersPer[f] > 0 && wholeItemUnits[t] {
		return price * c.cal.EachMilliliters / millilitersPer[f], true
	}

	// Whole items ↔ weight through the reference package
	if wholeItemUnits[f] && gramsPer[t] > 0 {
		return price * gramsPer[t] / c.cal.EachGrams, true
	}
	if gramsPer[f] > 0 && wholeItemUnits[t] {
		return price * c.cal.EachGrams / gramsPer[f], true
	}

	// Weight ↔ volume through density (g/ml)
	if gramsPer[f] > 0 && millilitersPer[t] > 0 {
		perGram := price / gramsPer[f]
		return perGram * density * millilitersPer[t], true
	}
	if millilitersPer[f] > 0 && gramsPer[t] > 0 {
		perMilliliter := price / millilitersPer[f]
		return perMilliliter / density * gramsPer[t], true
	}

	return 0, false
}
