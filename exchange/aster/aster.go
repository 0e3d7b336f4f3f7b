// Package aster implements exchange.Adapter against Aster's spot
// REST API, which is wire-compatible with Binance spot.
package aster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/exchange"
	"gridbot/exchange/httpx"
	gberrors "gridbot/pkg/errors"
	"gridbot/pkg/logging"
)

const (
	// DefaultBaseURL is Aster's spot REST endpoint.
	DefaultBaseURL  = "https://sapi.asterdex.com"
	apiKeyHeader    = "X-MBX-APIKEY"
)

// Adapter is the Aster spot exchange.Adapter implementation.
type Adapter struct {
	http       *httpx.Client
	resolver   *exchange.CredentialResolver
	symbolInfo *exchange.SymbolInfoCache
	logger     logging.ILogger
}

// New builds an Aster adapter. fallback holds the process-wide
// API_KEY_ASTER/API_KEY_SECRET_ASTER credentials.
func New(baseURL string, fallback exchange.Credentials, encryptionKey []byte, logger logging.ILogger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		http:       httpx.New(baseURL, apiKeyHeader),
		resolver:   exchange.NewCredentialResolver(domain.ExchangeAster, fallback, encryptionKey),
		symbolInfo: exchange.NewSymbolInfoCache(),
		logger:     logger.WithField("exchange", "asterdex"),
	}
}

func (a *Adapter) Name() domain.Exchange { return domain.ExchangeAster }

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol         string `json:"symbol"`
		BaseAsset      string `json:"baseAsset"`
		QuoteAsset     string `json:"quoteAsset"`
		Status         string `json:"status"`
		QuotePrecision int32  `json:"quotePrecision"`
		BasePrecision  int32  `json:"basePrecision"`
		Filters        []struct {
			FilterType  string `json:"filterType"`
			StepSize    string `json:"stepSize"`
			TickSize    string `json:"tickSize"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

func (a *Adapter) FetchExchangeInfo(ctx context.Context) (map[string]exchange.SymbolInfo, error) {
	body, err := a.http.Get(ctx, "/api/v1/exchangeInfo", nil)
	if err != nil {
		return nil, translateErr("asterdex", err)
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "asterdex", Message: "malformed exchangeInfo response", Err: err}
	}

	out := make(map[string]exchange.SymbolInfo, len(resp.Symbols))
	for _, s := range resp.Symbols {
		info := exchange.SymbolInfo{
			Symbol:         s.Symbol,
			BaseAsset:      s.BaseAsset,
			QuoteAsset:     s.QuoteAsset,
			Status:         s.Status,
			QuotePrecision: s.QuotePrecision,
			BasePrecision:  s.BasePrecision,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				info.StepSize = parseDecimalOr(f.StepSize, decimal.Zero)
			case "PRICE_FILTER":
				info.TickSize = parseDecimalOr(f.TickSize, decimal.Zero)
			case "MIN_NOTIONAL", "NOTIONAL":
				info.MinNotional = parseDecimalOr(f.MinNotional, decimal.Zero)
			}
		}
		out[exchange.NormalizeSymbol(s.Symbol)] = info
	}

	a.symbolInfo.Set(out)
	return out, nil
}

func (a *Adapter) FetchAllTickerPrices(ctx context.Context) ([]exchange.Ticker, error) {
	body, err := a.http.Get(ctx, "/api/v1/ticker/price", nil)
	if err != nil {
		return nil, translateErr("asterdex", err)
	}

	var raw []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
		Time   int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "asterdex", Message: "malformed ticker response", Err: err}
	}

	out := make([]exchange.Ticker, 0, len(raw))
	for _, t := range raw {
		out = append(out, exchange.Ticker{
			Symbol: t.Symbol,
			Price:  parseDecimalOr(t.Price, decimal.Zero),
		})
	}
	return out, nil
}

func (a *Adapter) FetchSpotAccount(ctx context.Context, wallet string, us *domain.UserSettings) ([]exchange.AccountBalance, error) {
	creds, err := a.resolver.Resolve(wallet, us)
	if err != nil {
		return nil, err
	}

	body, err := a.http.SignedGet(ctx, "/api/v1/account", url.Values{}, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, translateErr("asterdex", err)
	}

	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "asterdex", Message: "malformed account response", Err: err}
	}

	out := make([]exchange.AccountBalance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		out = append(out, exchange.AccountBalance{
			Asset:  b.Asset,
			Free:   parseDecimalOr(b.Free, decimal.Zero),
			Locked: parseDecimalOr(b.Locked, decimal.Zero),
		})
	}
	return out, nil
}

func (a *Adapter) PlaceSpotBuy(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, quoteAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	creds, err := a.resolver.Resolve(wallet, us)
	if err != nil {
		return nil, err
	}

	info, ok := a.symbolInfo.Get(symbol)
	if !ok || !info.IsTrading() {
		return nil, &gberrors.ValidationError{Field: "symbol", Reason: fmt.Sprintf("%s not tradable; alternates: %v", symbol, a.symbolInfo.SuggestAlternates(symbolBase(symbol), symbolQuote(symbol)))}
	}

	rounded := exchange.RoundBuyQuoteAmount(quoteAmount, info.QuotePrecision)

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", "BUY")
	q.Set("type", "MARKET")
	q.Set("quoteOrderQty", rounded.String())

	body, err := a.http.SignedPost(ctx, "/api/v1/order", q, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, translateErr("asterdex", err)
	}

	return parseOrderResult(body, rounded.Div(expectedPrice), expectedPrice)
}

func (a *Adapter) PlaceSpotSell(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, baseAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	creds, err := a.resolver.Resolve(wallet, us)
	if err != nil {
		return nil, err
	}

	info, ok := a.symbolInfo.Get(symbol)
	if !ok || !info.IsTrading() {
		return nil, &gberrors.ValidationError{Field: "symbol", Reason: fmt.Sprintf("%s not tradable; alternates: %v", symbol, a.symbolInfo.SuggestAlternates(symbolBase(symbol), symbolQuote(symbol)))}
	}

	rounded := exchange.RoundSellQuantity(baseAmount, info.StepSize, expectedPrice)

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", "SELL")
	q.Set("type", "MARKET")
	q.Set("quantity", rounded.String())

	body, err := a.http.SignedPost(ctx, "/api/v1/order", q, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, translateErr("asterdex", err)
	}

	return parseOrderResult(body, rounded, expectedPrice)
}

func parseOrderResult(body []byte, submittedQty, submittedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	var resp struct {
		OrderID     int64  `json:"orderId"`
		ExecutedQty string `json:"executedQty"`
		AvgPrice    string `json:"avgPrice"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "asterdex", Message: "malformed order response", Err: err}
	}

	executedQty := parseDecimalOr(resp.ExecutedQty, decimal.Zero)
	avgPrice := parseDecimalOr(resp.AvgPrice, decimal.Zero)

	// If the exchange reports a zero fill summary, the trade still
	// succeeded on-exchange; substitute what the engine submitted.
	if executedQty.IsZero() {
		executedQty = submittedQty
	}
	if avgPrice.IsZero() {
		avgPrice = submittedPrice
	}

	return &exchange.OrderResult{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		ExecutedQty: executedQty,
		AvgPrice:    avgPrice,
		Status:      resp.Status,
	}, nil
}

func parseDecimalOr(s string, fallback decimal.Decimal) decimal.Decimal {
	if s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}

func symbolBase(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return symbol[:len(symbol)-4]
	}
	return symbol
}

func symbolQuote(symbol string) string {
	if len(symbol) > 4 && symbol[len(symbol)-4:] == "USDT" {
		return "USDT"
	}
	return ""
}

func translateErr(exchangeName string, err error) error {
	if apiErr, ok := err.(*httpx.APIError); ok {
		var parsed struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		msg := string(apiErr.Body)
		if json.Unmarshal(apiErr.Body, &parsed) == nil && parsed.Msg != "" {
			msg = parsed.Msg
		}
		return &gberrors.ExchangeError{Exchange: exchangeName, Code: strconv.Itoa(httpErrCode(err)), Message: msg, Err: err}
	}
	return &gberrors.ExchangeError{Exchange: exchangeName, Message: err.Error(), Err: err}
}

func httpErrCode(err error) int {
	if apiErr, ok := err.(*httpx.APIError); ok {
		return apiErr.StatusCode
	}
	return 0
}
