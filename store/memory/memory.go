// Package memory is an in-process Store used for paper trading and
// tests; it trades durability for zero setup cost.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/pkg/errors"
	"gridbot/store"
)

type txKey struct{}

// Store is a mutex-guarded, in-memory implementation of store.Store.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*domain.UserSettings // wallet -> settings
	states   map[string]*domain.GridState    // wallet|orderID -> state
	positions map[string]*domain.Position    // id -> position
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:     make(map[string]*domain.UserSettings),
		states:    make(map[string]*domain.GridState),
		positions: make(map[string]*domain.Position),
	}
}

func stateKey(wallet, orderID string) string {
	return wallet + "|" + orderID
}

func (s *Store) UserSettings() store.UserSettingsRepo { return (*userSettingsRepo)(s) }
func (s *Store) GridStates() store.GridStateRepo      { return (*gridStateRepo)(s) }
func (s *Store) Positions() store.PositionRepo        { return (*positionRepo)(s) }

// WithTx runs fn directly; each repository call inside it takes the
// store's lock on its own. There is no rollback: writes made before fn
// returns an error stay in place.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(context.WithValue(ctx, txKey{}, true))
}

func (s *Store) Close() error { return nil }

type userSettingsRepo Store

func (r *userSettingsRepo) FindOne(ctx context.Context, wallet string) (*domain.UserSettings, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	us, ok := s.users[domain.NormalizeWallet(wallet)]
	if !ok {
		return nil, nil
	}
	cp := *us
	return &cp, nil
}

func (r *userSettingsRepo) Save(ctx context.Context, us *domain.UserSettings) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *us
	cp.WalletAddress = domain.NormalizeWallet(us.WalletAddress)
	s.users[cp.WalletAddress] = &cp
	return nil
}

func (r *userSettingsRepo) FindOwner(ctx context.Context, orderID string) (string, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for wallet, us := range s.users {
		if _, ok := us.FindOrder(orderID); ok {
			return wallet, nil
		}
	}
	return "", nil
}

type gridStateRepo Store

func (r *gridStateRepo) FindByWalletAndOrderID(ctx context.Context, wallet, orderID string) (*domain.GridState, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	gs, ok := s.states[stateKey(domain.NormalizeWallet(wallet), orderID)]
	if !ok {
		return nil, nil
	}
	cp := *gs
	return &cp, nil
}

func (r *gridStateRepo) FindAllActive(ctx context.Context) ([]*domain.GridState, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.GridState
	for _, gs := range s.states {
		if gs.IsActive {
			cp := *gs
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *gridStateRepo) FindAllByWallet(ctx context.Context, wallet string) ([]*domain.GridState, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	wallet = domain.NormalizeWallet(wallet)
	var out []*domain.GridState
	for key, gs := range s.states {
		if len(key) >= len(wallet) && key[:len(wallet)] == wallet {
			cp := *gs
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *gridStateRepo) Save(ctx context.Context, wallet, orderID string, state *domain.GridState) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	cp.WalletAddress = domain.NormalizeWallet(wallet)
	cp.OrderID = orderID
	s.states[stateKey(cp.WalletAddress, orderID)] = &cp
	return nil
}

func (r *gridStateRepo) DeleteByOrder(ctx context.Context, wallet, orderID string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, stateKey(domain.NormalizeWallet(wallet), orderID))
	return nil
}

type positionRepo Store

func (r *positionRepo) Save(ctx context.Context, p *domain.Position) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.positions[p.ID] = &cp
	return nil
}

func (r *positionRepo) FindByID(ctx context.Context, id string) (*domain.Position, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *positionRepo) FindByIDs(ctx context.Context, ids []string) ([]*domain.Position, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Position, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.positions[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *positionRepo) FindByWalletAndOrderID(ctx context.Context, wallet, orderID string, status store.PositionStatusFilter) ([]*domain.Position, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	wallet = domain.NormalizeWallet(wallet)
	var out []*domain.Position
	for _, p := range s.positions {
		if p.WalletAddress != wallet || p.OrderID != orderID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *positionRepo) GetTotalClosedProfit(ctx context.Context, wallet, orderID string) (string, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	wallet = domain.NormalizeWallet(wallet)
	total := decimal.Zero
	for _, p := range s.positions {
		if p.WalletAddress != wallet || p.OrderID != orderID {
			continue
		}
		if p.Status != domain.StatusClosed {
			continue
		}
		total = total.Add(p.Profit)
	}
	return total.String(), nil
}

func (r *positionRepo) Delete(ctx context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[id]; !ok {
		return &errors.StoreError{Op: "Delete", Err: fmt.Errorf("position %s not found", id)}
	}
	delete(s.positions, id)
	return nil
}
