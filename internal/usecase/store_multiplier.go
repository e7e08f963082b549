package usecase

import (
	"sort"
	"strings"
)

// RegionTier groups metro areas sharing a cost-of-living multiplier
type RegionTier struct {
	Name       string
	Multiplier float64
	Areas      []string
}

// MultiplierData is the curated research behind store price multipliers.
// All multipliers are relative to the baseline retailer (Kroger = 1.00).
type MultiplierData struct {
	// ConsumerReports is a 50-item basket study across 25 metro areas
	ConsumerReports map[string]float64
	// MarketSampling is a 10-item basket sampled monthly across 15 stores
	MarketSampling map[string]float64
	// Supplementary covers chains absent from both studies
	Supplementary map[string]float64
	// ChainAliases maps regional banners onto their parent chain
	ChainAliases map[string]string
	Regions      []RegionTier
}

// DefaultMultiplierData returns the bundled research tables
func DefaultMultiplierData() MultiplierData {
	return MultiplierData{
		ConsumerReports: map[string]float64{
			"whole foods":   1.34,
			"safeway":       1.02,
			"kroger":        1.00,
			"giant":         1.05,
			"harris teeter": 1.12,
			"publix":        1.09,
			"walmart":       0.87,
			"target":        1.08,
			"aldi":          0.76,
			"costco":        0.91,
			"trader joes":   0.94,
		},
		MarketSampling: map[string]float64{
			"whole foods":          1.37,
			"sprouts":              1.18,
			"fresh market":         1.22,
			"safeway":              1.04,
			"kroger":               1.00,
			"walmart":              0.85,
			"walmart neighborhood": 0.88,
			"target":               1.06,
			"aldi":                 0.74,
			"costco":               0.89,
			"sam's club":           0.87,
			"trader joes":          0.92,
			"food lion":            0.93,
			"giant":                1.07,
			"stop & shop":          1.08,
		},
		Supplementary: map[string]float64{
			"cvs":                 1.40,
			"walgreens":           1.38,
			"7-eleven":            1.50,
			"wawa":                1.35,
			"food 4 less":         0.80,
			"winco":               0.78,
			"h-e-b":               0.95,
			"meijer":              0.98,
			"bj's":                0.92,
			"united supermarkets": 1.02,
		},
		ChainAliases: map[string]string{
			"albertsons":          "safeway",
			"vons":                "safeway",
			"pavilions":           "safeway",
			"tom thumb":           "safeway",
			"randalls":            "safeway",
			"fred meyer":          "kroger",
			"ralph":               "kroger",
			"king soopers":        "kroger",
			"smith":               "kroger",
			"neighborhood market": "walmart",
			"supercenter":         "walmart",
		},
		Regions: []RegionTier{
			{Name: "high_cost", Multiplier: 1.15, Areas: []string{"san francisco", "new york", "seattle", "boston", "washington dc"}},
			{Name: "medium_cost", Multiplier: 1.00, Areas: []string{"chicago", "denver", "atlanta", "dallas", "phoenix"}},
			{Name: "low_cost", Multiplier: 0.88, Areas: []string{"kansas city", "memphis", "oklahoma city", "birmingham"}},
		},
	}
}

// MultiplierTable maps store display names to price multipliers
type MultiplierTable struct {
	data MultiplierData

	// keys ordered longest first so partial matching is deterministic
	crKeys    []string
	msKeys    []string
	suppKeys  []string
	aliasKeys []string
}

// NewMultiplierTable creates a multiplier table over data
func NewMultiplierTable(data MultiplierData) *MultiplierTable {
	return &MultiplierTable{
		data:      data,
		crKeys:    sortedKeys(data.ConsumerReports),
		msKeys:    sortedKeys(data.MarketSampling),
		suppKeys:  sortedKeys(data.Supplementary),
		aliasKeys: sortedKeys(data.ChainAliases),
	}
}

// MultiplierFor returns the price multiplier for a store display name, 1.0 when unknown.
// Lookup order: research studies (averaged when both match), supplementary chains,
// then banner aliases resolved through the parent chain.
func (t *MultiplierTable) MultiplierFor(storeName string) float64 {
	name := strings.ToLower(strings.TrimSpace(storeName))
	if name == "" {
		return 1.0
	}

	if m, ok := t.research(name); ok {
		return m
	}

	if m, ok := t.data.Supplementary[name]; ok {
		return m
	}
	if key, ok := partialMatch(name, t.suppKeys); ok {
		return t.data.Supplementary[key]
	}

	for _, banner := range t.aliasKeys {
		if strings.Contains(name, banner) {
			if m, ok := t.research(t.data.ChainAliases[banner]); ok {
				return m
			}
		}
	}

	return 1.0
}

// AdjustPrice scales a baseline price to the store's typical price level
func (t *MultiplierTable) AdjustPrice(basePrice float64, storeName string) float64 {
	return basePrice * t.MultiplierFor(storeName)
}

// RegionalMultiplier returns the cost-of-living multiplier of a metro area, 1.0 when unknown
func (t *MultiplierTable) RegionalMultiplier(metro string) float64 {
	m := strings.ToLower(metro)
	if m == "" {
		return 1.0
	}
	for _, tier := range t.data.Regions {
		for _, area := range tier.Areas {
			if strings.Contains(m, area) {
				return tier.Multiplier
			}
		}
	}
	return 1.0
}

// AdjustPriceInRegion composes the store and regional multipliers
func (t *MultiplierTable) AdjustPriceInRegion(basePrice float64, storeName, metro string) float64 {
	return basePrice * t.MultiplierFor(storeName) * t.RegionalMultiplier(metro)
}

func (t *MultiplierTable) research(name string) (float64, bool) {
	cr, crOK := lookup(name, t.data.ConsumerReports, t.crKeys)
	ms, msOK := lookup(name, t.data.MarketSampling, t.msKeys)

	switch {
	case crOK && msOK:
		return (cr + ms) / 2, true
	case crOK:
		return cr, true
	case msOK:
		return ms, true
	default:
		return 0, false
	}
}

func lookup(name string, table map[string]float64, keys []string) (float64, bool) {
	if m, ok := table[name]; ok {
		return m, true
	}
	if key, ok := partialMatch(name, keys); ok {
		return table[key], true
	}
	return 0, false
}

// partialMatch finds a key contained in name, or a key containing name
func partialMatch(name string, keys []string) (string, bool) {
	for _, key := range keys {
		if strings.Contains(name, key) || strings.Contains(key, name) {
			return key, true
		}
	}
	return "", false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}
