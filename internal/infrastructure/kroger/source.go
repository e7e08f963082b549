// Package kroger implements a price source over the public Kroger product API.
package kroger

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/infrastructure/httpfetch"
	"github.com/cartcost/backend/internal/obs"
	"github.com/cartcost/backend/internal/units"
)

// SourceName identifies Kroger API prices in the cache
const SourceName = "kroger_api"

// Config holds Kroger API credentials and endpoints
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Timeout      time.Duration
}

// Source fetches prices and store locations from the Kroger API
type Source struct {
	baseURL   string
	tokenURL  string
	auth      string
	enabled   bool
	client    *httpfetch.Client
	tokens    *tokenCell
	converter *units.Converter
	logger    *slog.Logger
}

// New creates a Kroger source. Without credentials the source is inert: Err reports
// domain.ErrSourceDisabled and every lookup returns not found.
func New(cfg Config, converter *units.Converter) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.kroger.com"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = cfg.BaseURL + "/v1/connect/oauth2/token"
	}
	if converter == nil {
		converter = units.NewConverter(units.DefaultCalibration())
	}

	s := &Source{
		baseURL:  cfg.BaseURL,
		tokenURL: cfg.TokenURL,
		enabled:  cfg.ClientID != "" && cfg.ClientSecret != "",
		auth:     base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret)),
		client: httpfetch.New(httpfetch.Options{
			Name:              SourceName,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: 10,
			Burst:             10,
		}),
		converter: converter,
		logger:    obs.Component("kroger"),
	}
	s.tokens = newTokenCell(s.requestToken)
	return s
}

// Err reports whether the source is usable
func (s *Source) Err() error {
	if !s.enabled {
		return fmt.Errorf("%w: kroger client id or secret missing", domain.ErrSourceDisabled)
	}
	return nil
}

// SourceName implements domain.PriceSource
func (s *Source) SourceName() string {
	return SourceName
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *Source) requestToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"product.compact"},
	}
	var resp tokenResponse
	err := s.client.PostForm(ctx, s.tokenURL, form, map[string]string{"Authorization": "Basic " + s.auth}, &resp)
	if err != nil {
		return "", 0, err
	}
	if resp.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty kroger access token", domain.ErrSourceUnavailable)
	}
	return resp.AccessToken, time.Duration(resp.ExpiresIn) * time.Second, nil
}

type productsResponse struct {
	Data []struct {
		Description string `json:"description"`
		Items       []struct {
			Size  string `json:"size"`
			Price struct {
				Regular float64 `json:"regular"`
				Promo   float64 `json:"promo"`
			} `json:"price"`
		} `json:"items"`
	} `json:"data"`
}

// FetchPrice implements domain.PriceSource. externalStoreID is a Kroger locationId.
// Package prices are turned into a price per unit when the package size is parseable
// and convertible, otherwise the package price is returned per "each".
func (s *Source) FetchPrice(ctx context.Context, externalStoreID, ingredientName, unit string) domain.Quote {
	if s.Err() != nil {
		return domain.NotFound(unit)
	}

	token, err := s.tokens.Get(ctx)
	if err != nil {
		s.logger.Warn("token request failed", "error", err)
		return domain.NotFound(unit)
	}

	params := url.Values{}
	params.Set("filter.locationId", externalStoreID)
	params.Set("filter.term", ingredientName)
	params.Set("filter.limit", "1")

	var resp productsResponse
	reqURL := fmt.Sprintf("%s/v1/products?%s", s.baseURL, params.Encode())
	if err := s.client.GetJSON(ctx, reqURL, bearer(token), &resp); err != nil {
		s.logger.Debug("product lookup failed", "ingredient", ingredientName, "location_id", externalStoreID, "error", err)
		return domain.NotFound(unit)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Items) == 0 {
		return domain.NotFound(unit)
	}

	item := resp.Data[0].Items[0]
	price := item.Price.Regular
	if item.Price.Promo > 0 && (price <= 0 || item.Price.Promo < price) {
		price = item.Price.Promo
	}
	if price <= 0 {
		return domain.NotFound(unit)
	}

	if qty, pkgUnit, ok := units.ParsePackageSize(item.Size); ok {
		if perUnit, ok := s.converter.PerUnitPrice(price, qty, pkgUnit, unit, ingredientName); ok {
			return domain.Found(perUnit, unit)
		}
	}
	return domain.Found(price, "each")
}

type locationsResponse struct {
	Data []struct {
		LocationID string `json:"locationId"`
		Chain      string `json:"chain"`
	} `json:"data"`
}

// LookupStoreID implements domain.StoreLocator and returns the nearest Kroger-family locationId
func (s *Source) LookupStoreID(ctx context.Context, lat, lon float64, radiusMiles int) (string, bool) {
	if s.Err() != nil {
		return "", false
	}

	token, err := s.tokens.Get(ctx)
	if err != nil {
		s.logger.Warn("token request failed", "error", err)
		return "", false
	}

	params := url.Values{}
	params.Set("filter.latLong", strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lon, 'f', 6, 64))
	params.Set("filter.radiusInMiles", strconv.Itoa(radiusMiles))
	params.Set("filter.limit", "1")

	var resp locationsResponse
	reqURL := fmt.Sprintf("%s/v1/locations?%s", s.baseURL, params.Encode())
	if err := s.client.GetJSON(ctx, reqURL, bearer(token), &resp); err != nil {
		s.logger.Warn("location lookup failed", "lat", lat, "lon", lon, "error", err)
		return "", false
	}
	if len(resp.Data) == 0 || resp.Data[0].LocationID == "" {
		return "", false
	}
	return resp.Data[0].LocationID, true
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
