package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRealistic(t *testing.T) {
	tests := []struct {
		name       string
		price      float64
		ingredient string
		unit       string
		want       bool
	}{
		{"zero price", 0, "banana", "each", false},
		{"negative price", -1.25, "banana", "each", false},
		{"banana each", 0.35, "banana", "each", true},
		{"garlic clove scraped as 5.00", 5.00, "garlic", "clove", false},
		{"garlic clove", 0.12, "garlic", "clove", true},
		{"uniform price on cheap item", 3.00, "carrots", "lb", false},
		{"uniform price on large package", 3.00, "long grain rice", "lb", true},
		{"uniform price on expensive item", 5.00, "ribeye steak", "each", true},
		{"each ceiling", 3.50, "lemon", "each", false},
		{"expensive each ceiling", 5.50, "avocado", "each", true},
		{"pound ceiling", 8.50, "chicken thighs", "lb", false},
		{"gram ceiling", 0.02, "cheddar", "g", true},
		{"ounce ceiling", 0.75, "cheddar", "oz", false},
		{"milliliter ceiling", 0.03, "milk", "ml", false},
		{"fluid ounce", 0.015, "milk", "Fl Oz", true},
		{"cup", 0.40, "rolled oats", "cup", true},
		{"slice ceiling", 1.20, "bread", "slice", false},
		{"unknown unit default", 4.99, "parsley", "bunch", true},
		{"unknown unit above default", 5.50, "parsley", "bunch", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRealistic(tt.price, tt.ingredient, tt.unit))
		})
	}
}

func TestIsRealistic_MonotoneWithinUnitClass(t *testing.T) {
	cases := []struct {
		ingredient string
		unit       string
	}{
		{"banana", "each"},
		{"avocado", "each"},
		{"chicken breast", "lb"},
		{"cheddar", "oz"},
		{"milk", "ml"},
		{"garlic", "clove"},
		{"parsley", "bunch"},
	}

	const step = 0.01
	for _, c := range cases {
		for p := step; p < 12; p += step {
			if suspiciousPrices[p] || !IsRealistic(p, c.ingredient, c.unit) {
				continue
			}
			lower := p - step/2
			if suspiciousPrices[lower] {
				continue
			}
			assert.True(t, IsRealistic(lower, c.ingredient, c.unit),
				"%s/%s realistic at %.4f but not at %.4f", c.ingredient, c.unit, p, lower)
		}
	}
}
