package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/turbinebot/internal/domain"
)

// ClaimJournal records settled claims, one row per market.
type ClaimJournal struct {
	pool *pgxpool.Pool
}

// NewClaimJournal creates a ClaimJournal backed by the given pool.
func NewClaimJournal(pool *pgxpool.Pool) *ClaimJournal {
	return &ClaimJournal{pool: pool}
}

// Record inserts a settled claim. A market is settled once; conflicts keep
// the first record.
func (j *ClaimJournal) Record(ctx context.Context, r domain.ClaimResult) error {
	const query = `
		INSERT INTO claims (market_id, tx_hash, claimed, no_winnings, payout_units)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id) DO NOTHING`

	_, err := j.pool.Exec(ctx, query,
		r.MarketID, r.TxHash, r.Claimed, r.NoWinnings, r.PayoutUnits)
	if err != nil {
		return fmt.Errorf("postgres: record claim %s: %w", r.MarketID, err)
	}
	return nil
}
