// Package sqlite is the durable Store backend: three tables
// (user_settings, grid_states, positions), WAL journal mode, and
// serializable transactions so a decision step's writes are all-or-
// nothing.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"gridbot/domain"
	gberrors "gridbot/pkg/errors"
	"gridbot/pkg/retry"
	"gridbot/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_settings (
	wallet_address TEXT PRIMARY KEY,
	exchange       TEXT NOT NULL,
	api_config     TEXT NOT NULL DEFAULT '{}',
	wallet         TEXT NOT NULL DEFAULT '[]',
	orders         TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS grid_states (
	wallet_address TEXT NOT NULL,
	order_id       TEXT NOT NULL,
	is_active      INTEGER NOT NULL DEFAULT 1,
	data           TEXT NOT NULL,
	PRIMARY KEY (wallet_address, order_id)
);
CREATE INDEX IF NOT EXISTS idx_grid_states_active ON grid_states(is_active);

CREATE TABLE IF NOT EXISTS positions (
	id             TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	order_id       TEXT NOT NULL,
	status         TEXT NOT NULL,
	profit         TEXT NOT NULL DEFAULT '0',
	data           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_wallet_order ON positions(wallet_address, order_id);
`

type txCtxKey struct{}

// Store is the SQLite-backed store.Store implementation.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at dsn, enables
// WAL journal mode for crash recovery, and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) UserSettings() store.UserSettingsRepo { return &userSettingsRepo{s} }
func (s *Store) GridStates() store.GridStateRepo      { return &gridStateRepo{s} }
func (s *Store) Positions() store.PositionRepo        { return &positionRepo{s} }

// querier abstracts over *sql.DB and *sql.Tx so repo methods work both
// inside and outside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txCtxKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a single serializable transaction. A Store
// error inside fn rolls back the whole step; nothing is partially
// written. SQLITE_BUSY (another writer holding the WAL lock) is
// retried with jittered backoff; once the retries are used up it is
// returned to the caller wrapped in a StoreError.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, retry.DefaultPolicy, isBusyErr, func() error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			if isBusyErr(err) {
				return err
			}
			return &gberrors.StoreError{Op: "BeginTx", Err: err}
		}

		txCtx := context.WithValue(ctx, txCtxKey{}, tx)

		if err := fn(txCtx); err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			if isBusyErr(err) {
				return err
			}
			return &gberrors.StoreError{Op: "Commit", Err: err}
		}
		return nil
	})
	if err != nil && isBusyErr(err) {
		return &gberrors.StoreError{Op: "WithTx", Err: err}
	}
	return err
}

// isBusyErr reports whether err is SQLite's "database is locked"
// transient condition, the only error class WithTx retries.
func isBusyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

// --- user_settings ---

type userSettingsRow struct {
	ApiConfig map[domain.Exchange]domain.ApiCredential `json:"apiConfig"`
	Wallet    []domain.WalletBalance                   `json:"wallet"`
	Orders    []domain.OrderSpec                       `json:"orders"`
}

type userSettingsRepo struct{ s *Store }

func (r *userSettingsRepo) FindOne(ctx context.Context, wallet string) (*domain.UserSettings, error) {
	wallet = domain.NormalizeWallet(wallet)
	row := r.s.q(ctx).QueryRowContext(ctx,
		`SELECT exchange, api_config, wallet, orders FROM user_settings WHERE wallet_address = ?`, wallet)

	var exchange string
	var apiConfigJSON, walletJSON, ordersJSON string
	if err := row.Scan(&exchange, &apiConfigJSON, &walletJSON, &ordersJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &gberrors.StoreError{Op: "UserSettings.FindOne", Err: err}
	}

	var decoded userSettingsRow
	if err := json.Unmarshal([]byte(apiConfigJSON), &decoded.ApiConfig); err != nil {
		return nil, &gberrors.StoreError{Op: "UserSettings.FindOne", Err: err}
	}
	if err := json.Unmarshal([]byte(walletJSON), &decoded.Wallet); err != nil {
		return nil, &gberrors.StoreError{Op: "UserSettings.FindOne", Err: err}
	}
	if err := json.Unmarshal([]byte(ordersJSON), &decoded.Orders); err != nil {
		return nil, &gberrors.StoreError{Op: "UserSettings.FindOne", Err: err}
	}

	return &domain.UserSettings{
		WalletAddress: wallet,
		Exchange:      domain.Exchange(exchange),
		ApiConfig:     decoded.ApiConfig,
		Wallet:        decoded.Wallet,
		Orders:        decoded.Orders,
	}, nil
}

func (r *userSettingsRepo) Save(ctx context.Context, us *domain.UserSettings) error {
	wallet := domain.NormalizeWallet(us.WalletAddress)

	apiConfigJSON, err := json.Marshal(us.ApiConfig)
	if err != nil {
		return &gberrors.StoreError{Op: "UserSettings.Save", Err: err}
	}
	walletJSON, err := json.Marshal(us.Wallet)
	if err != nil {
		return &gberrors.StoreError{Op: "UserSettings.Save", Err: err}
	}
	ordersJSON, err := json.Marshal(us.Orders)
	if err != nil {
		return &gberrors.StoreError{Op: "UserSettings.Save", Err: err}
	}

	_, err = r.s.q(ctx).ExecContext(ctx,
		`INSERT INTO user_settings (wallet_address, exchange, api_config, wallet, orders)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(wallet_address) DO UPDATE SET
		   exchange = excluded.exchange,
		   api_config = excluded.api_config,
		   wallet = excluded.wallet,
		   orders = excluded.orders`,
		wallet, string(us.Exchange), string(apiConfigJSON), string(walletJSON), string(ordersJSON))
	if err != nil {
		return &gberrors.StoreError{Op: "UserSettings.Save", Err: err}
	}
	return nil
}

func (r *userSettingsRepo) FindOwner(ctx context.Context, orderID string) (string, error) {
	rows, err := r.s.q(ctx).QueryContext(ctx, `SELECT wallet_address, orders FROM user_settings`)
	if err != nil {
		return "", &gberrors.StoreError{Op: "UserSettings.FindOwner", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var wallet, ordersJSON string
		if err := rows.Scan(&wallet, &ordersJSON); err != nil {
			return "", &gberrors.StoreError{Op: "UserSettings.FindOwner", Err: err}
		}
		var orders []domain.OrderSpec
		if err := json.Unmarshal([]byte(ordersJSON), &orders); err != nil {
			return "", &gberrors.StoreError{Op: "UserSettings.FindOwner", Err: err}
		}
		for _, o := range orders {
			if o.ID == orderID {
				return wallet, nil
			}
		}
	}
	return "", rows.Err()
}

// --- grid_states ---

type gridStateRepo struct{ s *Store }

func (r *gridStateRepo) FindByWalletAndOrderID(ctx context.Context, wallet, orderID string) (*domain.GridState, error) {
	wallet = domain.NormalizeWallet(wallet)
	row := r.s.q(ctx).QueryRowContext(ctx,
		`SELECT data FROM grid_states WHERE wallet_address = ? AND order_id = ?`, wallet, orderID)

	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &gberrors.StoreError{Op: "GridState.FindByWalletAndOrderID", Err: err}
	}

	var gs domain.GridState
	if err := json.Unmarshal([]byte(data), &gs); err != nil {
		return nil, &gberrors.StoreError{Op: "GridState.FindByWalletAndOrderID", Err: err}
	}
	return &gs, nil
}

func (r *gridStateRepo) scanStates(rows *sql.Rows) ([]*domain.GridState, error) {
	defer rows.Close()
	var out []*domain.GridState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &gberrors.StoreError{Op: "GridState.scan", Err: err}
		}
		var gs domain.GridState
		if err := json.Unmarshal([]byte(data), &gs); err != nil {
			return nil, &gberrors.StoreError{Op: "GridState.scan", Err: err}
		}
		out = append(out, &gs)
	}
	return out, rows.Err()
}

func (r *gridStateRepo) FindAllActive(ctx context.Context) ([]*domain.GridState, error) {
	rows, err := r.s.q(ctx).QueryContext(ctx, `SELECT data FROM grid_states WHERE is_active = 1`)
	if err != nil {
		return nil, &gberrors.StoreError{Op: "GridState.FindAllActive", Err: err}
	}
	return r.scanStates(rows)
}

func (r *gridStateRepo) FindAllByWallet(ctx context.Context, wallet string) ([]*domain.GridState, error) {
	wallet = domain.NormalizeWallet(wallet)
	rows, err := r.s.q(ctx).QueryContext(ctx, `SELECT data FROM grid_states WHERE wallet_address = ?`, wallet)
	if err != nil {
		return nil, &gberrors.StoreError{Op: "GridState.FindAllByWallet", Err: err}
	}
	return r.scanStates(rows)
}

func (r *gridStateRepo) Save(ctx context.Context, wallet, orderID string, state *domain.GridState) error {
	wallet = domain.NormalizeWallet(wallet)
	state.WalletAddress = wallet
	state.OrderID = orderID

	data, err := json.Marshal(state)
	if err != nil {
		return &gberrors.StoreError{Op: "GridState.Save", Err: err}
	}

	isActive := 0
	if state.IsActive {
		isActive = 1
	}

	_, err = r.s.q(ctx).ExecContext(ctx,
		`INSERT INTO grid_states (wallet_address, order_id, is_active, data)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(wallet_address, order_id) DO UPDATE SET
		   is_active = excluded.is_active,
		   data = excluded.data`,
		wallet, orderID, isActive, string(data))
	if err != nil {
		return &gberrors.StoreError{Op: "GridState.Save", Err: err}
	}
	return nil
}

func (r *gridStateRepo) DeleteByOrder(ctx context.Context, wallet, orderID string) error {
	wallet = domain.NormalizeWallet(wallet)
	_, err := r.s.q(ctx).ExecContext(ctx,
		`DELETE FROM grid_states WHERE wallet_address = ? AND order_id = ?`, wallet, orderID)
	if err != nil {
		return &gberrors.StoreError{Op: "GridState.DeleteByOrder", Err: err}
	}
	return nil
}

// --- positions ---

type positionRepo struct{ s *Store }

func (r *positionRepo) Save(ctx context.Context, p *domain.Position) error {
	p.WalletAddress = domain.NormalizeWallet(p.WalletAddress)

	data, err := json.Marshal(p)
	if err != nil {
		return &gberrors.StoreError{Op: "Position.Save", Err: err}
	}

	_, err = r.s.q(ctx).ExecContext(ctx,
		`INSERT INTO positions (id, wallet_address, order_id, status, profit, data)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   wallet_address = excluded.wallet_address,
		   order_id = excluded.order_id,
		   status = excluded.status,
		   profit = excluded.profit,
		   data = excluded.data`,
		p.ID, p.WalletAddress, p.OrderID, string(p.Status), p.Profit.String(), string(data))
	if err != nil {
		return &gberrors.StoreError{Op: "Position.Save", Err: err}
	}
	return nil
}

func (r *positionRepo) scanPosition(row *sql.Row) (*domain.Position, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, &gberrors.StoreError{Op: "Position.scan", Err: err}
	}
	var p domain.Position
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, &gberrors.StoreError{Op: "Position.scan", Err: err}
	}
	return &p, nil
}

func (r *positionRepo) FindByID(ctx context.Context, id string) (*domain.Position, error) {
	row := r.s.q(ctx).QueryRowContext(ctx, `SELECT data FROM positions WHERE id = ?`, id)
	return r.scanPosition(row)
}

func (r *positionRepo) FindByIDs(ctx context.Context, ids []string) ([]*domain.Position, error) {
	out := make([]*domain.Position, 0, len(ids))
	for _, id := range ids {
		p, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *positionRepo) FindByWalletAndOrderID(ctx context.Context, wallet, orderID string, status store.PositionStatusFilter) ([]*domain.Position, error) {
	wallet = domain.NormalizeWallet(wallet)

	query := `SELECT data FROM positions WHERE wallet_address = ? AND order_id = ?`
	args := []interface{}{wallet, orderID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}

	rows, err := r.s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &gberrors.StoreError{Op: "Position.FindByWalletAndOrderID", Err: err}
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &gberrors.StoreError{Op: "Position.FindByWalletAndOrderID", Err: err}
		}
		var p domain.Position
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, &gberrors.StoreError{Op: "Position.FindByWalletAndOrderID", Err: err}
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *positionRepo) GetTotalClosedProfit(ctx context.Context, wallet, orderID string) (string, error) {
	wallet = domain.NormalizeWallet(wallet)
	rows, err := r.s.q(ctx).QueryContext(ctx,
		`SELECT profit FROM positions WHERE wallet_address = ? AND order_id = ? AND status = ?`,
		wallet, orderID, string(domain.StatusClosed))
	if err != nil {
		return "", &gberrors.StoreError{Op: "Position.GetTotalClosedProfit", Err: err}
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var profitStr string
		if err := rows.Scan(&profitStr); err != nil {
			return "", &gberrors.StoreError{Op: "Position.GetTotalClosedProfit", Err: err}
		}
		profit, err := decimal.NewFromString(profitStr)
		if err != nil {
			return "", &gberrors.StoreError{Op: "Position.GetTotalClosedProfit", Err: err}
		}
		total = total.Add(profit)
	}
	return total.String(), rows.Err()
}

func (r *positionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.q(ctx).ExecContext(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return &gberrors.StoreError{Op: "Position.Delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &gberrors.StoreError{Op: "Position.Delete", Err: err}
	}
	if n == 0 {
		return &gberrors.StoreError{Op: "Position.Delete", Err: fmt.Errorf("position %s not found", id)}
	}
	return nil
}
