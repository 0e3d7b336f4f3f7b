package exchange

import (
	"strings"
	"sync"
	"time"

	"gridbot/domain"
	"gridbot/internal/config"
	gberrors "gridbot/pkg/errors"
)

// exchangeInfoTTL is how long FetchExchangeInfo results are cached
// per exchange before a refresh is attempted.
const exchangeInfoTTL = 5 * time.Minute

// stableQuoteAssets always use 2 decimal places for quote precision,
// regardless of what the exchange's filters report.
var stableQuoteAssets = map[string]bool{
	"USDT": true, "USDC": true, "BUSD": true, "DAI": true,
}

// Credentials is the resolved (apiKey, apiSecret) pair for a signed
// call, or the zero value if none could be resolved.
type Credentials struct {
	APIKey    string
	APISecret string
}

// CredentialResolver resolves per-wallet API credentials: first from
// the wallet's encrypted UserSettings, falling back to process-wide
// env-configured credentials.
type CredentialResolver struct {
	exchange       domain.Exchange
	fallback       Credentials
	encryptionKey  []byte
}

// NewCredentialResolver builds a resolver for one exchange. fallback
// holds plaintext env-sourced credentials (API_KEY_ASTER etc.);
// encryptionKey may be nil if API_ENCRYPTION_KEY was not configured,
// in which case UserSettings credentials are read as plaintext.
func NewCredentialResolver(ex domain.Exchange, fallback Credentials, encryptionKey []byte) *CredentialResolver {
	return &CredentialResolver{exchange: ex, fallback: fallback, encryptionKey: encryptionKey}
}

// Resolve implements spec's credential resolution order: (1) the
// wallet's own encrypted credentials, (2) the process-wide fallback.
func (r *CredentialResolver) Resolve(wallet string, us *domain.UserSettings) (Credentials, error) {
	if us != nil {
		if cred, ok := us.ApiConfig[r.exchange]; ok && cred.ApiKeyEncrypted != "" {
			apiKey, apiSecret, err := r.decrypt(cred)
			if err != nil {
				return Credentials{}, err
			}
			return Credentials{APIKey: apiKey, APISecret: apiSecret}, nil
		}
	}

	if r.fallback.APIKey != "" && r.fallback.APISecret != "" {
		return r.fallback, nil
	}

	return Credentials{}, &gberrors.MissingCredentials{Exchange: string(r.exchange), Wallet: wallet}
}

func (r *CredentialResolver) decrypt(cred domain.ApiCredential) (string, string, error) {
	if len(r.encryptionKey) == 0 {
		// Dev-only: API_ENCRYPTION_KEY not configured, credentials were
		// stored plaintext with a startup warning.
		return cred.ApiKeyEncrypted, cred.ApiSecretEncrypted, nil
	}
	apiKey, err := config.DecryptCredential(r.encryptionKey, cred.ApiKeyEncrypted)
	if err != nil {
		return "", "", err
	}
	apiSecret, err := config.DecryptCredential(r.encryptionKey, cred.ApiSecretEncrypted)
	if err != nil {
		return "", "", err
	}
	return apiKey, apiSecret, nil
}

// SymbolInfoCache caches FetchExchangeInfo results for exchangeInfoTTL,
// applying the stable-quote quotePrecision override spec mandates.
type SymbolInfoCache struct {
	mu        sync.RWMutex
	symbols   map[string]SymbolInfo
	fetchedAt time.Time
}

func NewSymbolInfoCache() *SymbolInfoCache {
	return &SymbolInfoCache{symbols: make(map[string]SymbolInfo)}
}

// Get returns the cached info for symbol and whether the cache is
// still fresh enough to use without a refresh.
func (c *SymbolInfoCache) Get(symbol string) (SymbolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if time.Since(c.fetchedAt) > exchangeInfoTTL {
		return SymbolInfo{}, false
	}
	info, ok := c.symbols[normalizeSymbol(symbol)]
	return info, ok
}

// Stale reports whether the cache needs a refresh regardless of
// whether any symbol is present.
func (c *SymbolInfoCache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.fetchedAt) > exchangeInfoTTL
}

// Set replaces the cached symbol table, applying the stable-quote
// quotePrecision override.
func (c *SymbolInfoCache) Set(symbols map[string]SymbolInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sym, info := range symbols {
		if stableQuoteAssets[strings.ToUpper(info.QuoteAsset)] {
			info.QuotePrecision = 2
		}
		symbols[sym] = info
	}
	c.symbols = symbols
	c.fetchedAt = time.Now()
}

// SuggestAlternates returns up to 10 TRADING symbols matching baseAsset
// or quoteAsset, for the "symbol not tradable" error message.
func (c *SymbolInfoCache) SuggestAlternates(baseAsset, quoteAsset string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, info := range c.symbols {
		if !info.IsTrading() {
			continue
		}
		if strings.EqualFold(info.BaseAsset, baseAsset) || strings.EqualFold(info.QuoteAsset, quoteAsset) {
			out = append(out, info.Symbol)
		}
		if len(out) >= 10 {
			break
		}
	}
	return out
}

// normalizeSymbol matches spec's BingX symbol-name normalization:
// strip separators and uppercase. Aster symbols are already exact
// uppercase matches, so this is a no-op for them.
func normalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	symbol = strings.ReplaceAll(symbol, "-", "")
	symbol = strings.ReplaceAll(symbol, "_", "")
	return symbol
}

// NormalizeSymbol is the exported form used by adapters when matching
// exchange-reported symbol names against an OrderSpec's expected
// symbol.
func NormalizeSymbol(symbol string) string {
	return normalizeSymbol(symbol)
}
