package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cartcost/backend/internal/domain"
	"github.com/cartcost/backend/internal/obs"
	"github.com/cartcost/backend/internal/units"
	"github.com/cartcost/backend/internal/usecase"
)

// PriceResolver resolves cached ingredient prices for a set of stores
type PriceResolver interface {
	Resolve(ctx context.Context, storeIDs []string, ingredient, unit string) (usecase.Resolution, bool)
	CoverageFor(ctx context.Context, storeIDs []string) (map[string]bool, error)
}

// Refresher runs the price refresh pipeline
type Refresher interface {
	RunRefresh(ctx context.Context) (domain.RefreshReport, error)
	Running() bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	resolver    PriceResolver
	refresher   Refresher
	multipliers *usecase.MultiplierTable
	converter   *units.Converter
}

// NewHandler creates a new HTTP handler. A nil resolver or refresher disables its endpoints.
func NewHandler(resolver PriceResolver, refresher Refresher, multipliers *usecase.MultiplierTable, converter *units.Converter) *Handler {
	if multipliers == nil {
		multipliers = usecase.NewMultiplierTable(usecase.DefaultMultiplierData())
	}
	if converter == nil {
		converter = units.NewConverter(units.DefaultCalibration())
	}
	return &Handler{
		resolver:    resolver,
		refresher:   refresher,
		multipliers: multipliers,
		converter:   converter,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "cartcost-backend",
		"version": "1.0.0",
	})
}

// ResolvePriceResponse is the body of a price resolution
type ResolvePriceResponse struct {
	usecase.Resolution
	Ingredient string `json:"ingredient"`
}

// ResolvePrice handles GET /api/v1/prices/resolve?store=..&ingredient=..&unit=..[&default=..]
func (h *Handler) ResolvePrice(c *gin.Context) {
	if h.resolver == nil {
		respondError(c, http.StatusServiceUnavailable, "price resolution not configured")
		return
	}

	ingredient := strings.TrimSpace(c.Query("ingredient"))
	unit := strings.TrimSpace(c.Query("unit"))
	if ingredient == "" || unit == "" {
		respondError(c, http.StatusBadRequest, "ingredient and unit are required")
		return
	}

	var def *float64
	if raw := c.Query("default"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			respondError(c, http.StatusBadRequest, "default must be a non-negative number")
			return
		}
		def = &v
	}

	res, ok := h.resolver.Resolve(c.Request.Context(), storeIDs(c), ingredient, unit)
	if !ok {
		if def == nil {
			respondError(c, http.StatusNotFound, domain.ErrPriceNotFound.Error())
			return
		}
		res = usecase.Resolution{Price: *def, Unit: unit, Outcome: usecase.OutcomeDefault}
	}

	c.JSON(http.StatusOK, ResolvePriceResponse{Resolution: res, Ingredient: ingredient})
}

// ConvertUnits handles GET /api/v1/units/convert?price=..&from=..&to=..[&ingredient=..]
func (h *Handler) ConvertUnits(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	price, err := strconv.ParseFloat(c.Query("price"), 64)
	if err != nil || from == "" || to == "" {
		respondError(c, http.StatusBadRequest, "price, from and to are required")
		return
	}

	converted, ok := h.converter.ConvertFor(price, from, to, c.Query("ingredient"))
	if !ok {
		respondError(c, http.StatusUnprocessableEntity, domain.ErrUnknownUnit.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"price":     price,
		"from":      units.Normalize(from),
		"to":        units.Normalize(to),
		"converted": converted,
	})
}

// StoreMultiplier handles GET /api/v1/stores/multiplier?name=..[&metro=..][&price=..]
func (h *Handler) StoreMultiplier(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		respondError(c, http.StatusBadRequest, "name is required")
		return
	}
	metro := c.Query("metro")

	body := gin.H{
		"name":       name,
		"multiplier": h.multipliers.MultiplierFor(name),
		"regional":   h.multipliers.RegionalMultiplier(metro),
	}
	if raw := c.Query("price"); raw != "" {
		base, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "price must be a number")
			return
		}
		body["adjustedPrice"] = h.multipliers.AdjustPriceInRegion(base, name, metro)
	}

	c.JSON(http.StatusOK, body)
}

// StoreCoverage handles GET /api/v1/stores/coverage?store=..&store=..
func (h *Handler) StoreCoverage(c *gin.Context) {
	if h.resolver == nil {
		respondError(c, http.StatusServiceUnavailable, "price resolution not configured")
		return
	}
	ids := storeIDs(c)
	if len(ids) == 0 {
		respondError(c, http.StatusBadRequest, "at least one store is required")
		return
	}

	coverage, err := h.resolver.CoverageFor(c.Request.Context(), ids)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"coverage": coverage})
}

// RefreshPrices handles POST /api/v1/prices/refresh. The run happens in the background
// unless wait=true, in which case the report is returned.
func (h *Handler) RefreshPrices(c *gin.Context) {
	if h.refresher == nil {
		respondError(c, http.StatusServiceUnavailable, "refresh not configured")
		return
	}

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		report, err := h.refresher.RunRefresh(c.Request.Context())
		switch {
		case errors.Is(err, domain.ErrRefreshInProgress):
			respondError(c, http.StatusConflict, err.Error())
		case err != nil:
			respondError(c, http.StatusInternalServerError, err.Error())
		default:
			c.JSON(http.StatusOK, report)
		}
		return
	}

	if h.refresher.Running() {
		respondError(c, http.StatusConflict, domain.ErrRefreshInProgress.Error())
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := h.refresher.RunRefresh(ctx); err != nil {
			obs.Component("http").Warn("background refresh failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// storeIDs collects repeated and comma-separated store parameters
func storeIDs(c *gin.Context) []string {
	var ids []string
	for _, raw := range c.QueryArray("store") {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
