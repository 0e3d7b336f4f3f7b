package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/domain"
	gberrors "gridbot/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WALMode(t *testing.T) {
	s := newTestStore(t)

	var journalMode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
	require.NoError(t, err)
	assert.Equal(t, "wal", journalMode)
}

func TestUserSettingsRepo_SaveAndFindOne(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	us := &domain.UserSettings{
		WalletAddress: "0xABCDEF",
		Exchange:      domain.ExchangeAster,
		ApiConfig: map[domain.Exchange]domain.ApiCredential{
			domain.ExchangeAster: {Name: "main", ApiKeyEncrypted: "enc-key"},
		},
		Wallet: []domain.WalletBalance{{Currency: "USDT", Balance: decimal.NewFromInt(1000)}},
		Orders: []domain.OrderSpec{{ID: "order-1", Name: "btc grid", IsActive: true}},
	}

	require.NoError(t, s.UserSettings().Save(ctx, us))

	loaded, err := s.UserSettings().FindOne(ctx, "0xabcdef")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "0xabcdef", loaded.WalletAddress)
	assert.Equal(t, domain.ExchangeAster, loaded.Exchange)
	assert.Len(t, loaded.Orders, 1)
	assert.Equal(t, "order-1", loaded.Orders[0].ID)
	assert.True(t, decimal.NewFromInt(1000).Equal(loaded.Wallet[0].Balance))
}

func TestUserSettingsRepo_FindOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UserSettings().Save(ctx, &domain.UserSettings{
		WalletAddress: "0x111",
		Orders:        []domain.OrderSpec{{ID: "order-a"}},
	}))
	require.NoError(t, s.UserSettings().Save(ctx, &domain.UserSettings{
		WalletAddress: "0x222",
		Orders:        []domain.OrderSpec{{ID: "order-b"}},
	}))

	owner, err := s.UserSettings().FindOwner(ctx, "order-b")
	require.NoError(t, err)
	assert.Equal(t, "0x222", owner)

	owner, err = s.UserSettings().FindOwner(ctx, "order-missing")
	require.NoError(t, err)
	assert.Equal(t, "", owner)
}

func TestGridStateRepo_SaveFindActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := &domain.GridState{
		CurrentFocusPrice: decimal.NewFromInt(94000),
		NextBuyTarget:     decimal.NewFromInt(93000),
		IsActive:          true,
		LastUpdated:       time.Now(),
	}
	inactive := &domain.GridState{
		CurrentFocusPrice: decimal.NewFromInt(1),
		IsActive:          false,
	}

	require.NoError(t, s.GridStates().Save(ctx, "0xabc", "order-1", active))
	require.NoError(t, s.GridStates().Save(ctx, "0xabc", "order-2", inactive))

	found, err := s.GridStates().FindByWalletAndOrderID(ctx, "0xABC", "order-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.CurrentFocusPrice.Equal(decimal.NewFromInt(94000)))

	allActive, err := s.GridStates().FindAllActive(ctx)
	require.NoError(t, err)
	require.Len(t, allActive, 1)
	assert.Equal(t, "order-1", allActive[0].OrderID)

	byWallet, err := s.GridStates().FindAllByWallet(ctx, "0xabc")
	require.NoError(t, err)
	assert.Len(t, byWallet, 2)

	require.NoError(t, s.GridStates().DeleteByOrder(ctx, "0xabc", "order-2"))
	byWallet, err = s.GridStates().FindAllByWallet(ctx, "0xabc")
	require.NoError(t, err)
	assert.Len(t, byWallet, 1)
}

func TestPositionRepo_SaveAndClosedProfit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	open := &domain.Position{
		ID: "pos-1", WalletAddress: "0xabc", OrderID: "order-1",
		Type: domain.PositionBuy, Status: domain.StatusOpen,
		BuyPrice: decimal.NewFromInt(93000), Amount: decimal.NewFromFloat(0.01),
		CreatedAt: time.Now(),
	}
	closed := &domain.Position{
		ID: "pos-2", WalletAddress: "0xabc", OrderID: "order-1",
		Type: domain.PositionBuy, Status: domain.StatusClosed,
		Profit: decimal.NewFromFloat(12.5), CreatedAt: time.Now(),
	}
	closed2 := &domain.Position{
		ID: "pos-3", WalletAddress: "0xabc", OrderID: "order-1",
		Type: domain.PositionBuy, Status: domain.StatusClosed,
		Profit: decimal.NewFromFloat(7.5), CreatedAt: time.Now(),
	}

	require.NoError(t, s.Positions().Save(ctx, open))
	require.NoError(t, s.Positions().Save(ctx, closed))
	require.NoError(t, s.Positions().Save(ctx, closed2))

	fetched, err := s.Positions().FindByID(ctx, "pos-1")
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.True(t, fetched.BuyPrice.Equal(decimal.NewFromInt(93000)))

	openOnly, err := s.Positions().FindByWalletAndOrderID(ctx, "0xabc", "order-1", domain.StatusOpen)
	require.NoError(t, err)
	assert.Len(t, openOnly, 1)

	profitStr, err := s.Positions().GetTotalClosedProfit(ctx, "0xabc", "order-1")
	require.NoError(t, err)
	profit, err := decimal.NewFromString(profitStr)
	require.NoError(t, err)
	assert.True(t, profit.Equal(decimal.NewFromFloat(20)))

	require.NoError(t, s.Positions().Delete(ctx, "pos-1"))
	_, err = s.Positions().FindByID(ctx, "pos-1")
	require.NoError(t, err)

	err = s.Positions().Delete(ctx, "pos-1")
	assert.Error(t, err)
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := assertErr
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.GridStates().Save(ctx, "0xabc", "order-1", &domain.GridState{IsActive: true}); err != nil {
			return err
		}
		return want
	})
	assert.ErrorIs(t, err, want)

	states, err := s.GridStates().FindAllByWallet(ctx, "0xabc")
	require.NoError(t, err)
	assert.Empty(t, states, "rolled-back transaction must not leave partial writes")
}

var assertErr = assertTestError("forced rollback")

type assertTestError string

func (e assertTestError) Error() string { return string(e) }

func TestIsBusyErrDetectsSQLiteLockMessage(t *testing.T) {
	assert.True(t, isBusyErr(assertTestError("database is locked")))
	assert.False(t, isBusyErr(assertErr))
	assert.False(t, isBusyErr(nil))
}

func TestWithTx_RetriesOnBusyThenSucceeds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	attempts := 0
	err := s.WithTx(ctx, func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return assertTestError("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithTx_WrapsExhaustedBusyRetriesAsStoreError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		return assertTestError("database is locked")
	})
	require.Error(t, err)
	var storeErr *gberrors.StoreError
	assert.ErrorAs(t, err, &storeErr)
}
