package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"LB", "lb"},
		{" lbs ", "lb"},
		{"Fl Oz", "fl-oz"},
		{"fluid ounces", "fl-oz"},
		{"Cups", "cup"},
		{"tablespoons", "tbsp"},
		{"Cloves", "clove"},
		{"each", "each"},
		{"bunch of things", "bunch-of-things"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, Weight, FamilyOf("Pounds"))
	assert.Equal(t, Volume, FamilyOf("fl oz"))
	assert.Equal(t, Volume, FamilyOf("gallon"))
	assert.Equal(t, Count, FamilyOf("sprigs"))
	assert.Equal(t, Count, FamilyOf("ct"))
	assert.Equal(t, Unknown, FamilyOf("bunch"))
	assert.Equal(t, "weight", Weight.String())
	assert.Equal(t, "unknown", Unknown.String())
}

func TestConvertPrice_Identity(t *testing.T) {
	for _, u := range []string{"g", "lb", "ml", "cup", "each", "clove", "bunch", "Fl Oz"} {
		for _, x := range []float64{0, 0.01, 1.5, 42} {
			got, ok := ConvertPrice(x, u, u)
			require.True(t, ok, u)
			assert.Equal(t, x, got, u)
		}
	}
}

func TestConvertPrice_RoundTripWithinFamily(t *testing.T) {
	families := [][]string{
		{"g", "kg", "lb", "oz"},
		{"ml", "l", "fl-oz", "cup", "tbsp", "tsp", "gallon"},
		{"each", "slice", "clove", "ct", "stalk"},
	}

	for _, family := range families {
		for _, u1 := range family {
			for _, u2 := range family {
				x := 3.21
				there, ok := ConvertPrice(x, u1, u2)
				require.True(t, ok, "%s->%s", u1, u2)
				back, ok := ConvertPrice(there, u2, u1)
				require.True(t, ok, "%s->%s", u2, u1)
				assert.InDelta(t, x, back, 1e-9, "%s<->%s", u1, u2)
			}
		}
	}
}

func TestConvertPrice_SameFamily(t *testing.T) {
	// $4.00/lb is $0.25/oz
	got, ok := ConvertPrice(4.0, "lb", "oz")
	require.True(t, ok)
	assert.InDelta(t, 0.25, got, 1e-4)

	// $0.40/cup in teaspoons
	got, ok = ConvertPrice(0.40, "cup", "tsp")
	require.True(t, ok)
	assert.InDelta(t, 0.40*(4.92892/236.588), got, 1e-9)
	assert.InDelta(t, 0.00833, got, 1e-5)

	// $0.40/cup in tablespoons: 16 tbsp per cup
	got, ok = ConvertPrice(0.40, "cup", "tbsp")
	require.True(t, ok)
	assert.InDelta(t, 0.025, got, 1e-4)
}

func TestConvertPrice_SubItemHeuristics(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		from, to string
		want     float64
	}{
		{"each to slice", 2.50, "each", "slice", 0.50},
		{"wedges to each", 0.20, "wedges", "each", 1.00},
		{"each to clove", 0.90, "each", "cloves", 0.10},
		{"sprig to each", 0.10, "sprig", "each", 0.90},
		{"count units are equivalent", 1.25, "ct", "piece", 1.25},
		{"stalk is equivalent to each", 0.75, "stalk", "each", 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ConvertPrice(tt.price, tt.from, tt.to)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestConvertPrice_CrossFamilyFallbacks(t *testing.T) {
	// each ↔ weight through a 300 g package
	got, ok := ConvertPrice(3.00, "each", "g")
	require.True(t, ok)
	assert.InDelta(t, 0.01, got, 1e-9)

	got, ok = ConvertPrice(0.01, "g", "each")
	require.True(t, ok)
	assert.InDelta(t, 3.00, got, 1e-9)

	// each ↔ volume through a 473 ml container
	got, ok = ConvertPrice(4.73, "each", "ml")
	require.True(t, ok)
	assert.InDelta(t, 0.01, got, 1e-9)

	// weight ↔ volume at unit density: 1 kg of water is 1 l
	got, ok = ConvertPrice(2.00, "kg", "l")
	require.True(t, ok)
	assert.InDelta(t, 2.00, got, 1e-9)

	// canned goods: one can is 1.5 cups
	got, ok = ConvertPrice(1.50, "ct", "cup")
	require.True(t, ok)
	assert.InDelta(t, 1.00, got, 1e-9)

	// sub-items reach weight through one whole item
	got, ok = ConvertPrice(0.10, "clove", "g")
	require.True(t, ok)
	assert.InDelta(t, 0.10*9/300, got, 1e-9)
}

func TestConvertPrice_Unknown(t *testing.T) {
	_, ok := ConvertPrice(1.0, "bunch", "g")
	assert.False(t, ok)

	_, ok = ConvertPrice(1.0, "lb", "handful")
	assert.False(t, ok)

	_, ok = ConvertPrice(1.0, "clove", "pinch")
	assert.False(t, ok)
}

func TestConverter_ConvertForUsesDensity(t *testing.T) {
	c := NewConverter(Calibration{})

	water, ok := c.ConvertFor(1.00, "kg", "l", "water")
	require.True(t, ok)
	oil, ok := c.ConvertFor(1.00, "kg", "l", "olive oil")
	require.True(t, ok)

	assert.InDelta(t, 1.00, water, 1e-9)
	assert.InDelta(t, 0.92, oil, 1e-9)
	assert.InDelta(t, 1.03, c.DensityOf("Whole Milk"), 1e-9)
	assert.InDelta(t, 1.0, c.DensityOf("flour"), 1e-9)
}

func TestNewConverter_CustomCalibration(t *testing.T) {
	c := NewConverter(Calibration{EachGrams: 500})

	got, ok := c.Convert(5.00, "each", "g")
	require.True(t, ok)
	assert.InDelta(t, 0.01, got, 1e-9)
	assert.Equal(t, 473.0, c.Calibration().EachMilliliters)
}
