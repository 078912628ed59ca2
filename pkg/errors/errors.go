package apperrors

import "errors"

// Standardized errors shared by the gateway implementations and the core
// scheduling loop. The scheduler branches on these with errors.Is; the
// gateways are responsible for mapping venue-specific responses onto them.
var (
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrOrderRejected         = errors.New("order rejected")
	ErrGatewayUnreachable    = errors.New("gateway unreachable")
	ErrOrderNotFound         = errors.New("order not found")
	ErrAlreadyExecuted       = errors.New("order already executed")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrPersistence           = errors.New("persistence failure")
)
