// Package apperrors is the error taxonomy shared across the grid bot.
// Every decision-step failure is one of the kinds declared here so the
// scheduler can decide, by type alone, whether to log-and-skip, abort
// the step, or raise the alarm — never by string-matching a message.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for matching with errors.Is. No adapter in this module
// returns them: Aster and BingX failures surface as *ExchangeError.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrExchangeMaintenance   = errors.New("exchange maintenance")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrSystemOverload        = errors.New("system overload")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")
)

// ValidationError: engine pre-checks found a structurally bad symbol or
// settings row. Abort the decision step; log at WARN.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// PolicyDenied: a gate (threshold, swing, wallet mode, min-tx-value,
// fee-eats-profit) silently declined this tick's action. Skip silently;
// DEBUG log only.
type PolicyDenied struct {
	Gate   string
	Reason string
}

func (e *PolicyDenied) Error() string {
	return fmt.Sprintf("policy denied by %s: %s", e.Gate, e.Reason)
}

// InsufficientBalance: canExecuteBuy/Sell found the wallet short. Skip;
// DEBUG log.
type InsufficientBalance struct {
	Currency  string
	Available string
	Required  string
}

func (e *InsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient %s balance: available=%s required=%s", e.Currency, e.Available, e.Required)
}

// ExchangeError: the adapter's HTTP call returned non-2xx, or the
// exchange API reported a structured error code. Skip step; WARN log
// with the exchange-provided message. No Position row is written.
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Err      error
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s]: %s", e.Exchange, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Exchange, e.Message)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// MissingCredentials: no usable (apiKey, apiSecret) pair was resolved
// for this wallet/exchange. Skip this order for the tick; callers
// should WARN-log at most once per order per hour to avoid a retry
// storm in the logs.
type MissingCredentials struct {
	Exchange string
	Wallet   string
}

func (e *MissingCredentials) Error() string {
	return fmt.Sprintf("missing credentials for wallet %s on %s", e.Wallet, e.Exchange)
}

// StoreError: a transactional write failed. Abort the step; ERROR log;
// next tick retries against the last persisted state.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InvariantError: the reconciler found a mismatch it could not repair
// (e.g. a Position referenced by GridState no longer exists). ERROR
// log; caller must set the affected order's isActive to false to stop
// it from running away.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}
