package usecase

import (
	"strings"

	"github.com/cartcost/backend/internal/units"
)

// suspiciousPrices are round numbers that broken scrapers emit for every product
var suspiciousPrices = map[float64]bool{
	1.00:  true,
	3.00:  true,
	5.00:  true,
	10.00: true,
}

// expensiveKeywords mark ingredients that legitimately cost more per unit
var expensiveKeywords = []string{
	"saffron", "truffle", "vanilla bean", "pine nut", "macadamia", "cashew",
	"steak", "beef", "lamb", "veal", "salmon", "tuna", "shrimp", "lobster", "crab", "scallop",
	"prosciutto", "parmesan", "parmigiano", "brie", "manchego",
	"avocado", "mango", "pineapple", "melon", "watermelon", "cauliflower",
	"maple syrup", "honey", "olive oil",
}

// largePackageKeywords mark ingredients usually sold in bags, boxes or jugs
var largePackageKeywords = []string{
	"rice", "flour", "sugar", "oats", "pasta", "cereal", "coffee", "bread",
	"milk", "juice", "oil", "eggs", "potatoes", "onions", "bag", "box", "jug", "bulk",
}

// ceilings are the maximum plausible prices per canonical unit
var ceilings = map[string]float64{
	"lb": 8.00, "kg": 8.00,
	"g": 0.50, "oz": 0.50,
	"ml": 0.02, "fl-oz": 0.02,
	"l": 5.00, "cup": 5.00,
	"slice": 1.00, "wedge": 1.00,
	"clove": 0.25, "sprig": 0.25, "leaf": 0.25,
}

// eachUnits share the per-item ceiling
var eachUnits = map[string]bool{
	"each": true, "piece": true, "item": true, "ct": true, "count": true,
}

const (
	eachCeiling          = 3.00
	expensiveEachCeiling = 6.00
	defaultCeiling       = 5.00
)

// IsRealistic reports whether price per unit is plausible for ingredient.
// Within a unit class it only bounds prices from above, apart from the suspicious round prices.
func IsRealistic(price float64, ingredient, unit string) bool {
	if price <= 0 {
		return false
	}

	name := strings.ToLower(ingredient)
	expensive := containsAny(name, expensiveKeywords)

	if suspiciousPrices[price] && !expensive && !containsAny(name, largePackageKeywords) {
		return false
	}

	return price <= ceilingFor(units.Normalize(unit), expensive)
}

func ceilingFor(unit string, expensive bool) float64 {
	if eachUnits[unit] {
		if expensive {
			return expensiveEachCeiling
		}
		return eachCeiling
	}
	if c, ok := ceilings[unit]; ok {
		return c
	}
	return defaultCeiling
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
