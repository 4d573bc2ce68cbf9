package favorites

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTable = `
CREATE TABLE IF NOT EXISTS heavymath_favorites (
	wallet     TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PGPersistence keeps one JSONB row per wallet.
type PGPersistence struct {
	pool *pgxpool.Pool
}

// NewPGPersistence uses pool and creates the table if needed.
func NewPGPersistence(ctx context.Context, pool *pgxpool.Pool) (*PGPersistence, error) {
	if _, err := pool.Exec(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create favorites table: %w", err)
	}
	return &PGPersistence{pool: pool}, nil
}

func (p *PGPersistence) Load(ctx context.Context) (map[string]WalletState, error) {
	rows, err := p.pool.Query(ctx, `SELECT wallet, state FROM heavymath_favorites`)
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	defer rows.Close()

	out := map[string]WalletState{}
	for rows.Next() {
		var (
			wallet string
			raw    []byte
		)
		if err := rows.Scan(&wallet, &raw); err != nil {
			return nil, fmt.Errorf("scan favorites: %w", err)
		}
		var ws WalletState
		if err := json.Unmarshal(raw, &ws); err != nil {
			return nil, fmt.Errorf("decode favorites for %s: %w", wallet, err)
		}
		out[wallet] = ws
	}
	return out, rows.Err()
}

// Save upserts every wallet in state and deletes rows for wallets no
// longer present, in one transaction.
func (p *PGPersistence) Save(ctx context.Context, state map[string]WalletState) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		wallets := make([]string, 0, len(state))
		batch := &pgx.Batch{}
		for w, ws := range state {
			raw, err := json.Marshal(ws)
			if err != nil {
				return err
			}
			wallets = append(wallets, w)
			batch.Queue(`
				INSERT INTO heavymath_favorites (wallet, state, updated_at)
				VALUES ($1, $2, now())
				ON CONFLICT (wallet) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
				w, raw)
		}
		batch.Queue(`DELETE FROM heavymath_favorites WHERE NOT (wallet = ANY($1))`, wallets)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("save favorites: %w", err)
		}
		return nil
	})
}
