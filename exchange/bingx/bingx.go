// Package bingx implements exchange.Adapter against BingX's spot REST
// API: same HMAC-SHA256 query signing scheme as Aster, but with its
// own coin/available/frozen balance naming and dashed symbol style.
package bingx

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
	// DefaultBaseURL is BingX's open-API spot endpoint.
	DefaultBaseURL = "https://open-api.bingx.com"
	apiKeyHeader   = "X-BX-APIKEY"
)

// Adapter is the BingX spot exchange.Adapter implementation.
type Adapter struct {
	http       *httpx.Client
	resolver   *exchange.CredentialResolver
	symbolInfo *exchange.SymbolInfoCache
	logger     logging.ILogger
}

// New builds a BingX adapter. fallback holds the process-wide
// API_KEY_BINGX/API_KEY_SECRET_BINGX credentials.
func New(baseURL string, fallback exchange.Credentials, encryptionKey []byte, logger logging.ILogger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		http:       httpx.New(baseURL, apiKeyHeader),
		resolver:   exchange.NewCredentialResolver(domain.ExchangeBingX, fallback, encryptionKey),
		symbolInfo: exchange.NewSymbolInfoCache(),
		logger:     logger.WithField("exchange", "bingx"),
	}
}

func (a *Adapter) Name() domain.Exchange { return domain.ExchangeBingX }

type exchangeInfoResponse struct {
	Data struct {
		Symbols []struct {
			Symbol         string `json:"symbol"`
			BaseAsset      string `json:"baseAsset"`
			QuoteAsset     string `json:"quoteAsset"`
			Status         int    `json:"status"`
			StepSize       string `json:"stepSize"`
			TickSize       string `json:"tickSize"`
			MinNotional    string `json:"minNotional"`
			QuotePrecision int32  `json:"quotePrecision"`
			BasePrecision  int32  `json:"basePrecision"`
		} `json:"symbols"`
	} `json:"data"`
}

// bingxTradingStatus is the numeric status code BingX uses for an
// open-for-trading symbol (their REST contract uses ints, not the
// "TRADING" string literal Aster/Binance use).
const bingxTradingStatus = 1

func (a *Adapter) FetchExchangeInfo(ctx context.Context) (map[string]exchange.SymbolInfo, error) {
	body, err := a.http.Get(ctx, "/openApi/spot/v1/common/symbols", nil)
	if err != nil {
		return nil, translateErr(err)
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "bingx", Message: "malformed symbols response", Err: err}
	}

	out := make(map[string]exchange.SymbolInfo, len(resp.Data.Symbols))
	for _, s := range resp.Data.Symbols {
		status := "BREAK"
		if s.Status == bingxTradingStatus {
			status = "TRADING"
		}
		info := exchange.SymbolInfo{
			Symbol:         s.Symbol,
			BaseAsset:      s.BaseAsset,
			QuoteAsset:     s.QuoteAsset,
			Status:         status,
			StepSize:       parseDecimalOr(s.StepSize, decimal.Zero),
			TickSize:       parseDecimalOr(s.TickSize, decimal.Zero),
			MinNotional:    parseDecimalOr(s.MinNotional, decimal.Zero),
			QuotePrecision: s.QuotePrecision,
			BasePrecision:  s.BasePrecision,
		}
		out[exchange.NormalizeSymbol(s.Symbol)] = info
	}

	a.symbolInfo.Set(out)
	return out, nil
}

func (a *Adapter) FetchAllTickerPrices(ctx context.Context) ([]exchange.Ticker, error) {
	body, err := a.http.Get(ctx, "/openApi/spot/v1/ticker/price", nil)
	if err != nil {
		return nil, translateErr(err)
	}

	var resp struct {
		Data []struct {
			Symbol string `json:"symbol"`
			Price  string `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "bingx", Message: "malformed ticker response", Err: err}
	}

	out := make([]exchange.Ticker, 0, len(resp.Data))
	for _, t := range resp.Data {
		out = append(out, exchange.Ticker{
			Symbol: toDashedSymbol(t.Symbol),
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

	body, err := a.http.SignedGet(ctx, "/openApi/spot/v1/account/balance", url.Values{}, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, translateErr(err)
	}

	var resp struct {
		Data struct {
			Balances []struct {
				Asset     string `json:"coin"`
				Available string `json:"available"`
				Frozen    string `json:"frozen"`
			} `json:"balances"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "bingx", Message: "malformed balance response", Err: err}
	}

	out := make([]exchange.AccountBalance, 0, len(resp.Data.Balances))
	for _, b := range resp.Data.Balances {
		out = append(out, exchange.AccountBalance{
			Asset:  b.Asset,
			Free:   parseDecimalOr(b.Available, decimal.Zero),
			Locked: parseDecimalOr(b.Frozen, decimal.Zero),
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
	q.Set("symbol", info.Symbol)
	q.Set("side", "BUY")
	q.Set("type", "MARKET")
	q.Set("quoteOrderQty", rounded.String())

	body, err := a.http.SignedPost(ctx, "/openApi/spot/v1/trade/order", q, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, translateErr(err)
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
	q.Set("symbol", info.Symbol)
	q.Set("side", "SELL")
	q.Set("type", "MARKET")
	q.Set("quantity", rounded.String())

	body, err := a.http.SignedPost(ctx, "/openApi/spot/v1/trade/order", q, creds.APIKey, creds.APISecret)
	if err != nil {
		return nil, translateErr(err)
	}

	return parseOrderResult(body, rounded, expectedPrice)
}

func parseOrderResult(body []byte, submittedQty, submittedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	var resp struct {
		Data struct {
			OrderID     int64  `json:"orderId"`
			ExecutedQty string `json:"executedQty"`
			AvgPrice    string `json:"avgPrice"`
			Status      string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &gberrors.ExchangeError{Exchange: "bingx", Message: "malformed order response", Err: err}
	}

	executedQty := parseDecimalOr(resp.Data.ExecutedQty, decimal.Zero)
	avgPrice := parseDecimalOr(resp.Data.AvgPrice, decimal.Zero)

	if executedQty.IsZero() {
		executedQty = submittedQty
	}
	if avgPrice.IsZero() {
		avgPrice = submittedPrice
	}

	return &exchange.OrderResult{
		OrderID:     strconv.FormatInt(resp.Data.OrderID, 10),
		ExecutedQty: executedQty,
		AvgPrice:    avgPrice,
		Status:      resp.Data.Status,
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

// toDashedSymbol returns symbol as given; it applies no conversion, so
// callers pass BingX's dashed BTC-USDT form themselves.
func toDashedSymbol(symbol string) string {
	return symbol
}

func symbolBase(symbol string) string {
	norm := exchange.NormalizeSymbol(symbol)
	if len(norm) > 4 && norm[len(norm)-4:] == "USDT" {
		return norm[:len(norm)-4]
	}
	return norm
}

func symbolQuote(symbol string) string {
	norm := exchange.NormalizeSymbol(symbol)
	if len(norm) > 4 && norm[len(norm)-4:] == "USDT" {
		return "USDT"
	}
	return ""
}

func translateErr(err error) error {
	if apiErr, ok := err.(*httpx.APIError); ok {
		var parsed struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		msg := string(apiErr.Body)
		if json.Unmarshal(apiErr.Body, &parsed) == nil && parsed.Msg != "" {
			msg = parsed.Msg
		}
		return &gberrors.ExchangeError{Exchange: "bingx", Code: strconv.Itoa(apiErr.StatusCode), Message: msg, Err: err}
	}
	return &gberrors.ExchangeError{Exchange: "bingx", Message: err.Error(), Err: err}
}
