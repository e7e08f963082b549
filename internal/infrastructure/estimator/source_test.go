package estimator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	src := New(nil)

	tests := []struct {
		name string
		want float64
	}{
		{"banana", 0.79},
		{"  Olive Oil ", 7.99},
		{"boneless chicken breast", 5.99}, // two of three words shared
		{"almond milk unsweetened", 4.49},
		{"bananas", 0.79},           // substring
		{"fresh dill", 2.49},        // produce category
		{"pork shoulder", 6.99},     // meat category
		{"dairy creamer", 3.99},     // dairy category
		{"curry spice blend", 3.49}, // pantry category
		{"jarred artichokes", 1.99}, // canned category
		{"xanthan gum", defaultPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, src.Estimate(tt.name))
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("milk", "milk"))
	assert.InDelta(t, 1.0/3.0, similarity("chicken thigh", "chicken breast"), 1e-9)
	assert.Equal(t, 0.5, similarity("tomatoes", "tomato"))
	assert.Equal(t, 0.0, similarity("quinoa", "rice"))
}

func TestFetchPrice_AlwaysFound(t *testing.T) {
	src := New([]Estimate{{"saffron", 12.5}})

	q := src.FetchPrice(context.Background(), "S1", "saffron", "g")
	assert.True(t, q.Found)
	assert.Equal(t, 12.5, q.Price)
	assert.Equal(t, "g", q.Unit)

	q = src.FetchPrice(context.Background(), "S1", "unobtainium", "each")
	assert.True(t, q.Found)
	assert.Equal(t, defaultPrice, q.Price)

	id, ok := src.LookupStoreID(context.Background(), 0, 0, 10)
	assert.True(t, ok)
	assert.Equal(t, DefaultStoreID, id)
	assert.Equal(t, "safeway_fallback", src.SourceName())
}

func TestEstimate_BlankNameUsesDefault(t *testing.T) {
	src := New(nil)

	for _, name := range []string{"", "   ", "\t"} {
		assert.Equal(t, defaultPrice, src.Estimate(name), "name %q", name)
	}
	assert.Equal(t, defaultPrice, src.FetchPrice(context.Background(), DefaultStoreID, " ", "each").Price)
}
