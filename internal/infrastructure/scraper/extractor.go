// Package scraper extracts product prices from retailer search pages.
//
// Extraction tries, in order: JSON-LD product data, known script-tag JSON blobs,
// CSS price selectors and finally raw regex patterns. The first price inside the
// configured band wins.
package scraper

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// DefaultBlobPatterns match script-tag JSON blobs embedded by common storefronts
var DefaultBlobPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)window\.__INITIAL_STATE__\s*=\s*(\{.*?\});`),
	regexp.MustCompile(`(?s)window\.__PRODUCT_DATA__\s*=\s*(\{.*?\});`),
	regexp.MustCompile(`(?s)var\s+productData\s*=\s*(\{.*?\});`),
	regexp.MustCompile(`(?s)window\.productInfo\s*=\s*(\{.*?\});`),
}

// DefaultSelectors are CSS selectors commonly carrying a price
var DefaultSelectors = []string{
	".price",
	".product-price",
	".current-price",
	".sale-price",
	".regular-price",
	"[data-price]",
	".price-value",
	".price-current",
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`price["']:\s*["']?\$?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`regularPrice["']:\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`currentPrice["']:\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`"price":\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`data-price="(\d+(?:\.\d+)?)"`),
}

var priceTextPattern = regexp.MustCompile(`\$?\s*(\d+(?:\.\d+)?)`)

// priceFields are the object keys searched inside JSON blobs, in priority order
var priceFields = []string{"price", "regularPrice", "currentPrice", "salePrice", "displayPrice"}

// Extractor finds a plausible price in an HTML document
type Extractor struct {
	MinPrice     float64
	MaxPrice     float64
	BlobPatterns []*regexp.Regexp
	Selectors    []string
}

// NewExtractor creates an extractor with the default strategies and the given price band
func NewExtractor(minPrice, maxPrice float64) *Extractor {
	return &Extractor{
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		BlobPatterns: DefaultBlobPatterns,
		Selectors:    DefaultSelectors,
	}
}

// Strategy names reported by Extract
const (
	StrategyStructuredData = "json_ld"
	StrategyScriptBlob     = "script_blob"
	StrategySelector       = "selector"
	StrategyRegex          = "regex"
)

// Extract returns the first in-band price and the strategy that found it
func (e *Extractor) Extract(html string) (float64, string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		if p, ok := e.fromStructuredData(doc); ok {
			return p, StrategyStructuredData, true
		}
	}
	if p, ok := e.fromScriptBlobs(html); ok {
		return p, StrategyScriptBlob, true
	}
	if err == nil {
		if p, ok := e.fromSelectors(doc); ok {
			return p, StrategySelector, true
		}
	}
	if p, ok := e.fromRegex(html); ok {
		return p, StrategyRegex, true
	}
	return 0, "", false
}

func (e *Extractor) fromStructuredData(doc *goquery.Document) (float64, bool) {
	var (
		price float64
		found bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true
		}
		price, found = e.productOfferPrice(data)
		return !found
	})
	return price, found
}

// productOfferPrice reads offers.price from a schema.org Product, a list of nodes or an @graph
func (e *Extractor) productOfferPrice(data interface{}) (float64, bool) {
	switch v := data.(type) {
	case []interface{}:
		for _, item := range v {
			if p, ok := e.productOfferPrice(item); ok {
				return p, true
			}
		}
	case map[string]interface{}:
		if graph, ok := v["@graph"]; ok {
			return e.productOfferPrice(graph)
		}
		if !isProductType(v["@type"]) {
			return 0, false
		}
		switch offers := v["offers"].(type) {
		case map[string]interface{}:
			return e.inBand(offers["price"])
		case []interface{}:
			for _, o := range offers {
				if m, ok := o.(map[string]interface{}); ok {
					if p, ok := e.inBand(m["price"]); ok {
						return p, true
					}
				}
			}
		}
	}
	return 0, false
}

// isProductType accepts "@type": "Product" and multi-typed nodes such as ["Product", "Thing"]
func isProductType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return v == "Product"
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) fromScriptBlobs(html string) (float64, bool) {
	for _, pattern := range e.BlobPatterns {
		for _, m := range pattern.FindAllStringSubmatch(html, -1) {
			var data interface{}
			if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
				continue
			}
			if p, ok := e.FindPrice(data); ok {
				return p, true
			}
		}
	}
	return 0, false
}

// FindPrice searches decoded JSON depth-first for the first in-band price field.
// Object keys are visited in sorted order so results are deterministic.
func (e *Extractor) FindPrice(data interface{}) (float64, bool) {
	switch v := data.(type) {
	case map[string]interface{}:
		for _, field := range priceFields {
			if raw, ok := v[field]; ok {
				if p, ok := e.inBand(raw); ok {
					return p, true
				}
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if p, ok := e.FindPrice(v[k]); ok {
				return p, true
			}
		}
	case []interface{}:
		for _, item := range v {
			if p, ok := e.FindPrice(item); ok {
				return p, true
			}
		}
	}
	return 0, false
}

func (e *Extractor) fromSelectors(doc *goquery.Document) (float64, bool) {
	for _, selector := range e.Selectors {
		var (
			price float64
			found bool
		)
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if p, ok := e.ParsePriceText(strings.TrimSpace(s.Text())); ok {
				price, found = p, true
				return false
			}
			for _, attr := range []string{"data-price", "data-value", "content"} {
				if val, exists := s.Attr(attr); exists {
					if p, ok := e.ParsePriceText(val); ok {
						price, found = p, true
						return false
					}
				}
			}
			return true
		})
		if found {
			return price, true
		}
	}
	return 0, false
}

func (e *Extractor) fromRegex(html string) (float64, bool) {
	for _, pattern := range pricePatterns {
		m := pattern.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		if p, ok := e.parseDecimal(m[1]); ok {
			return p, true
		}
	}
	return 0, false
}

// ParsePriceText reads the first amount in text ("$2.99", "2.49 /lb") when it is in band
func (e *Extractor) ParsePriceText(text string) (float64, bool) {
	m := priceTextPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return e.parseDecimal(m[1])
}

func (e *Extractor) parseDecimal(s string) (float64, bool) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return e.band(d)
}

func (e *Extractor) inBand(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return e.band(decimal.NewFromFloat(v))
	case string:
		return e.ParsePriceText(v)
	}
	return 0, false
}

func (e *Extractor) band(d decimal.Decimal) (float64, bool) {
	if d.LessThan(decimal.NewFromFloat(e.MinPrice)) || d.GreaterThan(decimal.NewFromFloat(e.MaxPrice)) {
		return 0, false
	}
	return d.Round(2).InexactFloat64(), true
}
