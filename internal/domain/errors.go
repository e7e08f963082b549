package domain

import "errors"

var (
	// ErrPriceNotFound is returned when no usable price exists for an ingredient
	ErrPriceNotFound = errors.New("price not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrUnknownUnit is returned when a price cannot be converted between two units
	ErrUnknownUnit = errors.New("no conversion rule between units")

	// ErrSourceDisabled is returned at construction time when a price source lacks credentials
	ErrSourceDisabled = errors.New("price source disabled")

	// ErrSourceUnavailable is returned when a retailer endpoint fails or answers with an unexpected status
	ErrSourceUnavailable = errors.New("price source request failed")

	// ErrStorageUnavailable is returned when the price, store or ingredient store cannot be reached
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStoreNotFound is returned when a store identifier is unknown to the catalog
	ErrStoreNotFound = errors.New("store not found")

	// ErrRefreshInProgress is returned when a refresh is requested while another one runs
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)
