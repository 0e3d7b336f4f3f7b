// Package domain holds the data model shared by every layer of the grid
// bot: settings, per-order grid state, and positions. Fields that carry
// money or quantity are always decimal.Decimal; nothing in this package
// round-trips through a float.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Scale for rendering target prices and quantities when no exchange
// precision is known yet.
const (
	PriceScale  = 2
	AmountScale = 8
)

// Exchange identifies which venue an order trades on.
type Exchange string

const (
	ExchangeAster Exchange = "asterdex"
	ExchangeBingX Exchange = "bingx"
)

// NormalizeWallet canonicalizes a wallet address the way every boundary
// in this system must: lowercase, trimmed. Carrying this as a function
// (rather than trusting callers) is what keeps I4/I6-style bugs from
// creeping back in through a forgotten uppercase comparison.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// PositionType distinguishes a long (BUY) entry from a short (SELL) entry.
type PositionType string

const (
	PositionBuy  PositionType = "BUY"
	PositionSell PositionType = "SELL"
)

// PositionStatus is the lifecycle state of a Position row.
type PositionStatus string

const (
	StatusOpen      PositionStatus = "OPEN"
	StatusClosed    PositionStatus = "CLOSED"
	StatusCancelled PositionStatus = "CANCELLED"
)

// WalletMode controls how much of the available quote/base balance a
// BUY (or short) is allowed to use.
type WalletMode string

const (
	ModeOnlySold    WalletMode = "onlySold"
	ModeMaxDefined  WalletMode = "maxDefined"
	ModeWalletLimit WalletMode = "walletLimit"
)

// RangeValue is a row matched by price range: "first matching row wins"
// for additional*Values, max*PerTransaction, and *SwingPercent.
type RangeValue struct {
	MinPrice *decimal.Decimal `json:"minPrice,omitempty"`
	MaxPrice *decimal.Decimal `json:"maxPrice,omitempty"`
	Value    decimal.Decimal  `json:"value"`
}

// LegacyCondition is the comparison operator of the legacy row shape.
type LegacyCondition string

const (
	CondLess         LegacyCondition = "less"
	CondLessEqual    LegacyCondition = "lessEqual"
	CondGreater      LegacyCondition = "greater"
	CondGreaterEqual LegacyCondition = "greaterEqual"
)

// LegacyValue is the older range-row shape, honored only when a row sets
// neither MinPrice nor MaxPrice.
type LegacyValue struct {
	Price     decimal.Decimal `json:"price"`
	Condition LegacyCondition `json:"condition"`
	Value     decimal.Decimal `json:"value"`
}

// Match reports whether price falls inside this range row. Range shape
// takes precedence: legacy fields only matter when both Min/MaxPrice are
// nil on this row (the caller is responsible for choosing which slice,
// range or legacy, actually applies to a given RangeValue — see
// gridengine/ranges.go for how the two shapes are reconciled).
func (r RangeValue) Match(price decimal.Decimal) bool {
	if r.MinPrice != nil && price.LessThan(*r.MinPrice) {
		return false
	}
	if r.MaxPrice != nil && !price.LessThan(*r.MaxPrice) {
		return false
	}
	return true
}

// Match reports whether price satisfies this legacy row's condition.
func (l LegacyValue) Match(price decimal.Decimal) bool {
	switch l.Condition {
	case CondLess:
		return price.LessThan(l.Price)
	case CondLessEqual:
		return !price.GreaterThan(l.Price)
	case CondGreater:
		return price.GreaterThan(l.Price)
	case CondGreaterEqual:
		return !price.LessThan(l.Price)
	default:
		return false
	}
}

// TrendPercent is one row of an ordered-by-trend step-size table.
type TrendPercent struct {
	Trend       int             `json:"trend"`
	BuyPercent  decimal.Decimal `json:"buyPercent"`
	SellPercent decimal.Decimal `json:"sellPercent"`
}

// SideConditions are the per-side (buy or sell) gating parameters.
type SideConditions struct {
	MinValuePer1Percent       decimal.Decimal `json:"minValuePer1Percent"`
	PriceThreshold            decimal.Decimal `json:"priceThreshold"`
	CheckThresholdIfProfitable bool           `json:"checkThresholdIfProfitable"`
}

// SideWalletPolicy are the per-side (buy or sell) wallet-exposure rules.
type SideWalletPolicy struct {
	Currency          string          `json:"currency"`
	WalletProtection  decimal.Decimal `json:"walletProtection"`
	Mode              WalletMode      `json:"mode"`
	MaxValue          decimal.Decimal `json:"maxValue"`
	AddProfit         bool            `json:"addProfit"`
}

// PlatformSettings are order-level platform switches.
type PlatformSettings struct {
	CheckFeeProfit bool `json:"checkFeeProfit"`
}

// OrderSpec is one user-configured grid order definition.
type OrderSpec struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"isActive"`

	Exchange   Exchange `json:"exchange"`
	BaseAsset  string   `json:"baseAsset"`
	QuoteAsset string   `json:"quoteAsset"`

	RefreshIntervalSeconds int             `json:"refreshInterval"`
	MinProfitPercent       decimal.Decimal `json:"minProfitPercent"`
	FocusPrice             decimal.Decimal `json:"focusPrice"`
	TimeToNewFocusSeconds  int             `json:"timeToNewFocus"`

	Buy  SideWalletPolicy `json:"buy"`
	Sell SideWalletPolicy `json:"sell"`

	BuyConditions  SideConditions `json:"buyConditions"`
	SellConditions SideConditions `json:"sellConditions"`

	TrendPercents []TrendPercent `json:"trendPercents"`

	AdditionalBuyValues  []RangeValue `json:"additionalBuyValues"`
	AdditionalSellValues []RangeValue `json:"additionalSellValues"`
	LegacyBuyValues      []LegacyValue `json:"legacyBuyValues,omitempty"`
	LegacySellValues     []LegacyValue `json:"legacySellValues,omitempty"`

	MaxBuyPerTransaction  []RangeValue `json:"maxBuyPerTransaction"`
	MaxSellPerTransaction []RangeValue `json:"maxSellPerTransaction"`

	BuySwingPercent  []RangeValue `json:"buySwingPercent"`
	SellSwingPercent []RangeValue `json:"sellSwingPercent"`

	Platform PlatformSettings `json:"platform"`
}

// Symbol is the concatenation of base+quote, e.g. "BTCUSDT".
func (o OrderSpec) Symbol() string {
	return strings.ToUpper(o.BaseAsset + o.QuoteAsset)
}

// RefreshInterval returns the configured refresh interval as a Duration.
func (o OrderSpec) RefreshInterval() time.Duration {
	return time.Duration(o.RefreshIntervalSeconds) * time.Second
}

// ApiCredential is one exchange's encrypted API key pair, plus display
// metadata, as stored under UserSettings.apiConfig.
type ApiCredential struct {
	Name            string `json:"name"`
	Avatar          string `json:"avatar"`
	ApiKeyEncrypted string `json:"apiKeyEncrypted"`
	ApiSecretEncrypted string `json:"apiSecretEncrypted"`
}

// WalletBalance is one entry of the display-cache balance list.
type WalletBalance struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Reserved decimal.Decimal `json:"reserved"`
}

// UserSettings is the root per-wallet document: credentials, balance
// display cache, and the orders this wallet currently owns.
type UserSettings struct {
	WalletAddress string                   `json:"walletAddress"`
	Exchange      Exchange                 `json:"exchange"`
	ApiConfig     map[Exchange]ApiCredential `json:"apiConfig"`
	Wallet        []WalletBalance          `json:"wallet"`
	Orders        []OrderSpec              `json:"orders"`
}

// FindOrder returns the OrderSpec with the given id, if owned by this
// user settings document.
func (u *UserSettings) FindOrder(orderID string) (*OrderSpec, bool) {
	for i := range u.Orders {
		if u.Orders[i].ID == orderID {
			return &u.Orders[i], true
		}
	}
	return nil, false
}

// GridState is the moving decision state for one (wallet, orderId) grid.
type GridState struct {
	WalletAddress string `json:"walletAddress"`
	OrderID       string `json:"orderId"`

	CurrentFocusPrice decimal.Decimal `json:"currentFocusPrice"`
	BuyTrendCounter   int             `json:"buyTrendCounter"`
	SellTrendCounter  int             `json:"sellTrendCounter"`
	NextBuyTarget     decimal.Decimal `json:"nextBuyTarget"`
	NextSellTarget    decimal.Decimal `json:"nextSellTarget"`

	OpenPositionIds     []string `json:"openPositionIds"`
	OpenSellPositionIds []string `json:"openSellPositionIds"`

	TotalProfit           decimal.Decimal `json:"totalProfit"`
	TotalBuyTransactions  int             `json:"totalBuyTransactions"`
	TotalSellTransactions int             `json:"totalSellTransactions"`
	TotalBoughtValue      decimal.Decimal `json:"totalBoughtValue"`
	TotalSoldValue        decimal.Decimal `json:"totalSoldValue"`

	IsActive bool `json:"isActive"`

	FocusLastUpdated time.Time `json:"focusLastUpdated"`
	LastKnownPrice   decimal.Decimal `json:"lastKnownPrice"`
	LastPriceUpdate  time.Time `json:"lastPriceUpdate"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// Position is one opened (and possibly closed) grid leg.
type Position struct {
	ID            string         `json:"id"`
	WalletAddress string         `json:"walletAddress"`
	OrderID       string         `json:"orderId"`
	Type          PositionType   `json:"type"`
	Status        PositionStatus `json:"status"`

	// BUY-side fields.
	BuyPrice       decimal.Decimal `json:"buyPrice,omitempty"`
	Amount         decimal.Decimal `json:"amount,omitempty"`
	BuyValue       decimal.Decimal `json:"buyValue,omitempty"`
	TrendAtBuy     int             `json:"trendAtBuy,omitempty"`
	TargetSellPrice decimal.Decimal `json:"targetSellPrice,omitempty"`

	// SELL-side fields.
	SellPrice          decimal.Decimal `json:"sellPrice,omitempty"`
	SellValue          decimal.Decimal `json:"sellValue,omitempty"`
	TargetBuybackPrice decimal.Decimal `json:"targetBuybackPrice,omitempty"`

	// Close-time fields (set on both BUY and SELL close).
	Profit   decimal.Decimal `json:"profit,omitempty"`
	ClosedAt *time.Time      `json:"closedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}
