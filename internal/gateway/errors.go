package gateway

import (
	"errors"
	"fmt"
)

const codeOK = "0"

// Exchange rejection codes the engine reacts to with specific policies.
const (
	CodeSymbolRestricted    = "51155" // symbol banned for this account
	CodeInsufficientBalance = "51008" // order would exceed available balance
	CodeRateLimited         = "50011" // request rate exceeded
)

// ErrCircuitOpen is returned when a breaker is open and the call was not
// dispatched. Callers skip the unit of work; no synthetic data is substituted.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrNoMarket is returned when market metadata cannot be fetched; precision
// operations abort rather than guess.
var ErrNoMarket = errors.New("market metadata unavailable")

// APIError is an exchange rejection carrying the exchange status code.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %s: %s", e.Code, e.Message)
}

// IsRestricted reports whether err is a symbol-restricted rejection.
func IsRestricted(err error) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == CodeSymbolRestricted
}

// IsInsufficientBalance reports whether err is an insufficient-balance rejection.
func IsInsufficientBalance(err error) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == CodeInsufficientBalance
}

// IsRateLimited reports whether err is an exchange rate-limit rejection.
func IsRateLimited(err error) bool {
	var api *APIError
	return errors.As(err, &api) && api.Code == CodeRateLimited
}
