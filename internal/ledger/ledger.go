// Package ledger keeps per-user MOB bookkeeping and moves funds through the wallet gateway.
// Amounts are picoMOB unless a name says otherwise.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whispr-service/internal/model"
)

const (
	PmobPerMOB int64 = 1_000_000_000_000
	// NetworkFee is charged by the network on every outgoing transfer.
	NetworkFee int64 = 400_000_000
)

var ErrAmountTooLarge = errors.New("amount does not fit in pmob")

var (
	maxPmob = decimal.NewFromInt(math.MaxInt64)
	minPmob = decimal.NewFromInt(math.MinInt64)
)

type TransferResult int

const (
	TransferOK TransferResult = iota
	TransferPaymentNotEnabled
	TransferInsufficientFunds
)

func (r TransferResult) String() string {
	switch r {
	case TransferOK:
		return "ok"
	case TransferPaymentNotEnabled:
		return "payments_not_enabled"
	case TransferInsufficientFunds:
		return "insufficient_funds"
	default:
		return fmt.Sprintf("TransferResult(%d)", int(r))
	}
}

// Book stores ledger transactions.
type Book interface {
	Record(ctx context.Context, tx model.LedgerTransaction) error
	Balance(ctx context.Context, account string) (int64, error)
	History(ctx context.Context, account string, limit int) ([]model.LedgerTransaction, error)
}

// Wallet moves real funds.
type Wallet interface {
	Transfer(ctx context.Context, to string, pmob int64, memo string) (TransferResult, error)
	USDPerMOB(ctx context.Context) (decimal.Decimal, error)
}

type Ledger struct {
	book   Book
	wallet Wallet
	logger *zap.Logger
	now    func() time.Time
}

func New(book Book, wallet Wallet, logger *zap.Logger) *Ledger {
	return &Ledger{book: book, wallet: wallet, logger: logger, now: time.Now}
}

func (l *Ledger) Balance(ctx context.Context, account string) (int64, error) {
	return l.book.Balance(ctx, account)
}

func (l *Ledger) History(ctx context.Context, account string, limit int) ([]model.LedgerTransaction, error) {
	return l.book.History(ctx, account, limit)
}

// PmobToUSD converts at the wallet's current rate.
func (l *Ledger) PmobToUSD(ctx context.Context, pmob int64) (decimal.Decimal, error) {
	rate, err := l.wallet.USDPerMOB(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch mob rate: %w", err)
	}
	return PmobToMOB(pmob).Mul(rate).Round(6), nil
}

// Transfer sends pmob to a user. Failures the recipient can fix are reported as a
// TransferResult, not an error.
func (l *Ledger) Transfer(ctx context.Context, to string, pmob int64, memo string) (TransferResult, error) {
	result, err := l.wallet.Transfer(ctx, to, pmob, memo)
	if err != nil {
		return result, fmt.Errorf("transfer to %s: %w", to, err)
	}
	l.logger.Info("transfer finished",
		zap.String("to", to),
		zap.Int64("pmob", pmob),
		zap.Stringer("result", result))
	return result, nil
}

// Record books a signed movement against account.
func (l *Ledger) Record(ctx context.Context, account string, usdDelta decimal.Decimal, pmobDelta int64, memo string) error {
	tx := model.LedgerTransaction{
		ID:        uuid.NewString(),
		Account:   account,
		USDDelta:  usdDelta,
		PmobDelta: pmobDelta,
		Memo:      memo,
		CreatedAt: l.now().UTC(),
	}
	if err := l.book.Record(ctx, tx); err != nil {
		return fmt.Errorf("record %q for %s: %w", memo, account, err)
	}
	return nil
}

// RecordPmob books pmobDelta, converting it to USD at the current rate.
func (l *Ledger) RecordPmob(ctx context.Context, account string, pmobDelta int64, memo string) error {
	usd, err := l.PmobToUSD(ctx, pmobDelta)
	if err != nil {
		return err
	}
	return l.Record(ctx, account, usd, pmobDelta, memo)
}

func PmobToMOB(pmob int64) decimal.Decimal {
	return decimal.New(pmob, -12)
}

// MOBToPmob converts a MOB amount, rounding to the nearest pmob.
func MOBToPmob(mob decimal.Decimal) (int64, error) {
	pmob := mob.Shift(12).Round(0)
	if pmob.GreaterThan(maxPmob) || pmob.LessThan(minPmob) {
		return 0, fmt.Errorf("%w: %s MOB", ErrAmountTooLarge, mob)
	}
	return pmob.IntPart(), nil
}

// FormatMOB renders pmob as a MOB amount without trailing zeros.
func FormatMOB(pmob int64) string {
	return PmobToMOB(pmob).String()
}
