// Package walmart scrapes walmart.com search results and the public store finder.
package walmart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/infrastructure/httpfetch"
	"github.com/cartcost/backend/internal/obs"
	"github.com/cartcost/backend/internal/units"
)

// SourceName identifies Walmart quotes in the price cache
const SourceName = "walmart_web"

const reduxMarker = "window.__WML_REDUX_INITIAL_STATE__"

// Config configures the Walmart source
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Source implements domain.PriceSource and domain.StoreLocator for walmart.com
type Source struct {
	baseURL   string
	client    *httpfetch.Client
	converter *units.Converter
	logger    *slog.Logger
}

// New creates a Walmart source. converter may be nil to keep package prices as reported.
func New(cfg Config, converter *units.Converter) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.walmart.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Source{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: httpfetch.New(httpfetch.Options{
			Name:              SourceName,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: 2,
			Burst:             4,
		}),
		converter: converter,
		logger:    obs.Component("walmart"),
	}
}

// SourceName implements domain.PriceSource
func (s *Source) SourceName() string {
	return SourceName
}

type searchResult struct {
	ItemStacks []struct {
		Items []searchItem `json:"items"`
	} `json:"itemStacks"`
}

type searchItem struct {
	Name      string          `json:"name"`
	Price     json.RawMessage `json:"price"`
	PriceInfo struct {
		CurrentPrice struct {
			Price float64 `json:"price"`
		} `json:"currentPrice"`
	} `json:"priceInfo"`
}

// price reads the item price from either {"price":..,"minPrice":..}, a bare number or priceInfo
func (it searchItem) price() float64 {
	if len(it.Price) > 0 {
		var obj struct {
			Price    float64 `json:"price"`
			MinPrice float64 `json:"minPrice"`
		}
		if err := json.Unmarshal(it.Price, &obj); err == nil {
			if obj.Price > 0 {
				return obj.Price
			}
			if obj.MinPrice > 0 {
				return obj.MinPrice
			}
		}
		var n float64
		if err := json.Unmarshal(it.Price, &n); err == nil && n > 0 {
			return n
		}
	}
	return it.PriceInfo.CurrentPrice.Price
}

// FetchPrice implements domain.PriceSource. externalStoreID is a numeric Walmart store id.
func (s *Source) FetchPrice(ctx context.Context, externalStoreID, ingredientName, unit string) domain.Quote {
	params := url.Values{}
	params.Set("q", ingredientName)
	params.Set("store", externalStoreID)
	params.Set("facet", "store_availability:1")

	body, err := s.client.Get(ctx, s.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		s.logger.Debug("search page request failed", "ingredient", ingredientName, "store", externalStoreID, "error", err)
		return domain.NotFound(unit)
	}

	item, ok := firstItem(string(body))
	if !ok {
		return domain.NotFound(unit)
	}
	price := item.price()
	if price <= 0 {
		return domain.NotFound(unit)
	}

	if s.converter != nil {
		if qty, pkgUnit, ok := units.ParsePackageSize(item.Name); ok {
			if perUnit, ok := s.converter.PerUnitPrice(price, qty, pkgUnit, unit, ingredientName); ok {
				return domain.Found(perUnit, unit)
			}
		}
	}
	return domain.Found(price, unit)
}

// firstItem returns the first priced search result embedded in a search page.
// The legacy redux state blob is tried before the Next.js data island.
func firstItem(html string) (searchItem, bool) {
	if result, ok := reduxSearchResult(html); ok {
		if item, ok := firstPriced(result); ok {
			return item, true
		}
	}
	if result, ok := nextDataSearchResult(html); ok {
		return firstPriced(result)
	}
	return searchItem{}, false
}

func firstPriced(result searchResult) (searchItem, bool) {
	if len(result.ItemStacks) == 0 {
		return searchItem{}, false
	}
	for _, item := range result.ItemStacks[0].Items {
		if item.price() > 0 {
			return item, true
		}
	}
	return searchItem{}, false
}

func reduxSearchResult(html string) (searchResult, bool) {
	idx := strings.Index(html, reduxMarker)
	if idx < 0 {
		return searchResult{}, false
	}
	rest := html[idx+len(reduxMarker):]
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return searchResult{}, false
	}

	// the decoder stops after one value, so trailing script text is ignored
	var state struct {
		Search struct {
			SearchResult searchResult `json:"searchResult"`
		} `json:"search"`
	}
	if err := json.NewDecoder(strings.NewReader(rest[eq+1:])).Decode(&state); err != nil {
		return searchResult{}, false
	}
	return state.Search.SearchResult, true
}

func nextDataSearchResult(html string) (searchResult, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return searchResult{}, false
	}
	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return searchResult{}, false
	}

	var data struct {
		Props struct {
			PageProps struct {
				InitialData struct {
					SearchResult searchResult `json:"searchResult"`
				} `json:"initialData"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return searchResult{}, false
	}
	return data.Props.PageProps.InitialData.SearchResult, true
}

type storeFinderResponse struct {
	Stores []struct {
		ID interface{} `json:"id"`
	} `json:"stores"`
}

// LookupStoreID implements domain.StoreLocator using the store finder JSON
func (s *Source) LookupStoreID(ctx context.Context, lat, lon float64, radiusMiles int) (string, bool) {
	reqURL := fmt.Sprintf("%s/store/finder/v3/data?latitude=%s&longitude=%s&distance=%d",
		s.baseURL,
		strconv.FormatFloat(lat, 'f', 6, 64),
		strconv.FormatFloat(lon, 'f', 6, 64),
		radiusMiles,
	)

	var resp storeFinderResponse
	if err := s.client.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		s.logger.Warn("store lookup failed", "error", err)
		return "", false
	}
	if len(resp.Stores) == 0 {
		return "", false
	}

	switch id := resp.Stores[0].ID.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	}
	return "", false
}
