package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"whispr-service/internal/client"
	"whispr-service/internal/model"
)

const createLedgerTable = `
CREATE TABLE IF NOT EXISTS ledger (
    id         UUID,
    account    String,
    usd_delta  Decimal(18, 6),
    pmob_delta Int64,
    memo       String,
    created_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (account, created_at)`

// ClickHouseBook is the append-only ledger table. Balances are sums over it.
type ClickHouseBook struct {
	ch *client.ClickHouseClient
}

func NewClickHouseBook(ctx context.Context, ch *client.ClickHouseClient) (*ClickHouseBook, error) {
	if err := ch.Exec(ctx, createLedgerTable); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &ClickHouseBook{ch: ch}, nil
}

func (b *ClickHouseBook) Record(ctx context.Context, tx model.LedgerTransaction) error {
	id, err := uuid.Parse(tx.ID)
	if err != nil {
		return fmt.Errorf("ledger id: %w", err)
	}
	return b.ch.Exec(ctx,
		`INSERT INTO ledger (id, account, usd_delta, pmob_delta, memo, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, tx.Account, tx.USDDelta, tx.PmobDelta, tx.Memo, tx.CreatedAt)
}

func (b *ClickHouseBook) Balance(ctx context.Context, account string) (int64, error) {
	var sum int64
	if err := b.ch.QueryRow(ctx, `SELECT sum(pmob_delta) FROM ledger WHERE account = ?`, account).Scan(&sum); err != nil {
		return 0, fmt.Errorf("ledger balance: %w", err)
	}
	return sum, nil
}

func (b *ClickHouseBook) History(ctx context.Context, account string, limit int) ([]model.LedgerTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := b.ch.QueryRows(ctx,
		`SELECT id, account, usd_delta, pmob_delta, memo, created_at
         FROM ledger WHERE account = ? ORDER BY created_at DESC LIMIT ?`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	defer rows.Close()

	var out []model.LedgerTransaction
	for rows.Next() {
		var (
			tx  model.LedgerTransaction
			id  uuid.UUID
			usd decimal.Decimal
		)
		if err := rows.Scan(&id, &tx.Account, &usd, &tx.PmobDelta, &tx.Memo, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		tx.ID = id.String()
		tx.USDDelta = usd
		out = append(out, tx)
	}
	return out, rows.Err()
}
