package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/turbinebot/internal/domain"
)

// OrderJournal records order submissions and lifecycle transitions.
type OrderJournal struct {
	pool *pgxpool.Pool
}

// NewOrderJournal creates an OrderJournal backed by the given pool.
func NewOrderJournal(pool *pgxpool.Pool) *OrderJournal {
	return &OrderJournal{pool: pool}
}

// Record inserts a submitted order. Re-recording a client ID updates the
// mutable fields instead of failing, so journaling is safe to retry.
func (j *OrderJournal) Record(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			client_id, order_hash, market_id, outcome, side,
			price_ticks, size_units, state, slot, strategy, tx_hash,
			expiration, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, NOW()
		)
		ON CONFLICT (client_id) DO UPDATE SET
			order_hash = EXCLUDED.order_hash,
			state = EXCLUDED.state,
			tx_hash = EXCLUDED.tx_hash,
			updated_at = NOW()`

	_, err := j.pool.Exec(ctx, query,
		o.ClientID, o.Hash, o.MarketID, o.Outcome.String(), o.Side.String(),
		o.PriceTicks, o.SizeUnits, string(o.State), o.Slot, o.Strategy, o.TxHash,
		o.Expiration, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record order %s: %w", o.ClientID, err)
	}
	return nil
}

// UpdateState changes the journaled state of an order.
func (j *OrderJournal) UpdateState(ctx context.Context, clientID string, state domain.OrderState) error {
	tag, err := j.pool.Exec(ctx,
		`UPDATE orders SET state = $1, updated_at = NOW() WHERE client_id = $2`,
		string(state), clientID)
	if err != nil {
		return fmt.Errorf("postgres: update order state %s: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const orderSelectCols = `client_id, order_hash, market_id, outcome, side,
	price_ticks, size_units, state, slot, strategy, tx_hash,
	expiration, created_at, updated_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var outcome, side, state string

	err := scanner.Scan(
		&o.ClientID, &o.Hash, &o.MarketID, &outcome, &side,
		&o.PriceTicks, &o.SizeUnits, &state, &o.Slot, &o.Strategy, &o.TxHash,
		&o.Expiration, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	if outcome == domain.OutcomeNo.String() {
		o.Outcome = domain.OutcomeNo
	}
	if side == domain.SideSell.String() {
		o.Side = domain.SideSell
	}
	o.State = domain.OrderState(state)
	return o, nil
}

// ListByMarket returns journaled orders for a market, newest first.
func (j *OrderJournal) ListByMarket(ctx context.Context, marketID string, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE market_id = $1 ORDER BY created_at DESC`
	args := []any{marketID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by market: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetByClientID retrieves a single journaled order.
func (j *OrderJournal) GetByClientID(ctx context.Context, clientID string) (domain.Order, error) {
	row := j.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE client_id = $1`, clientID)

	o, err := scanOrderFromRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", clientID, err)
	}
	return o, nil
}
