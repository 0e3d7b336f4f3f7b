// Package store defines the persistence contract the grid engine runs
// against: UserSettings, GridState and Position repositories, plus the
// cross-wallet lookup the reconciler needs when an order migrates
// between wallets without losing its in-flight state.
package store

import (
	"context"

	"gridbot/domain"
)

// UserSettingsRepo persists one row per wallet: its exchange
// credentials, wallet snapshot and the orders it owns.
type UserSettingsRepo interface {
	FindOne(ctx context.Context, wallet string) (*domain.UserSettings, error)
	Save(ctx context.Context, us *domain.UserSettings) error
	// FindOwner scans all user_settings rows to find which wallet
	// currently owns orderID, supporting order migration between
	// wallets without losing in-flight grid state.
	FindOwner(ctx context.Context, orderID string) (string, error)
}

// GridStateRepo persists one GridState per (wallet, orderId).
type GridStateRepo interface {
	FindByWalletAndOrderID(ctx context.Context, wallet, orderID string) (*domain.GridState, error)
	FindAllActive(ctx context.Context) ([]*domain.GridState, error)
	FindAllByWallet(ctx context.Context, wallet string) ([]*domain.GridState, error)
	Save(ctx context.Context, wallet, orderID string, state *domain.GridState) error
	DeleteByOrder(ctx context.Context, wallet, orderID string) error
}

// PositionStatusFilter narrows PositionRepo.FindByWalletAndOrderID;
// an empty string means "any status".
type PositionStatusFilter = domain.PositionStatus

// PositionRepo persists one row per position id.
type PositionRepo interface {
	Save(ctx context.Context, p *domain.Position) error
	FindByID(ctx context.Context, id string) (*domain.Position, error)
	FindByIDs(ctx context.Context, ids []string) ([]*domain.Position, error)
	FindByWalletAndOrderID(ctx context.Context, wallet, orderID string, status PositionStatusFilter) ([]*domain.Position, error)
	GetTotalClosedProfit(ctx context.Context, wallet, orderID string) (profit string, err error)
	Delete(ctx context.Context, id string) error
}

// Store aggregates the three repositories plus lifecycle management.
// A decision step that needs to mutate more than one table (closing a
// position and updating grid state) must do so inside WithTx so the
// write is atomic; a Store error aborts the step for that order and
// leaves state untouched, per the engine's failure semantics.
type Store interface {
	UserSettings() UserSettingsRepo
	GridStates() GridStateRepo
	Positions() PositionRepo
	// WithTx runs fn inside a single atomic transaction. Repos
	// obtained from Store before or during fn share that transaction
	// implicitly via the context passed to fn.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}
