package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/turbinebot/internal/domain"
)

// FillJournal records executions. The venue's trade ID is the primary key,
// so replayed stream messages insert at most once.
type FillJournal struct {
	pool *pgxpool.Pool
}

// NewFillJournal creates a FillJournal backed by the given pool.
func NewFillJournal(pool *pgxpool.Pool) *FillJournal {
	return &FillJournal{pool: pool}
}

// Record inserts a fill. Duplicate trade IDs are ignored.
func (j *FillJournal) Record(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO fills (
			trade_id, market_id, outcome, price_ticks, size_units,
			buyer, seller, tx_hash, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (trade_id) DO NOTHING`

	_, err := j.pool.Exec(ctx, query,
		t.ID, t.MarketID, t.Outcome.String(), t.PriceTicks, t.SizeUnits,
		t.Buyer, t.Seller, t.TxHash, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: record fill %d: %w", t.ID, err)
	}
	return nil
}

// ListByMarket returns journaled fills for a market, newest first.
func (j *FillJournal) ListByMarket(ctx context.Context, marketID string, limit int) ([]domain.Trade, error) {
	query := `SELECT trade_id, market_id, outcome, price_ticks, size_units,
		buyer, seller, tx_hash, executed_at
		FROM fills WHERE market_id = $1 ORDER BY executed_at DESC`
	args := []any{marketID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by market: %w", err)
	}
	defer rows.Close()

	var fills []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var outcome string
		if err := rows.Scan(&t.ID, &t.MarketID, &outcome, &t.PriceTicks, &t.SizeUnits,
			&t.Buyer, &t.Seller, &t.TxHash, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		if outcome == domain.OutcomeNo.String() {
			t.Outcome = domain.OutcomeNo
		}
		fills = append(fills, t)
	}
	return fills, rows.Err()
}
