package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"whispr-service/internal/model"
)

// MemoryBook keeps transactions in process.
type MemoryBook struct {
	mu  sync.Mutex
	txs []model.LedgerTransaction
}

func NewMemoryBook() *MemoryBook { return &MemoryBook{} }

func (b *MemoryBook) Record(ctx context.Context, tx model.LedgerTransaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, tx)
	return nil
}

func (b *MemoryBook) Balance(ctx context.Context, account string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sum int64
	for _, tx := range b.txs {
		if tx.Account == account {
			sum += tx.PmobDelta
		}
	}
	return sum, nil
}

// History returns the newest limit transactions for account, newest first.
func (b *MemoryBook) History(ctx context.Context, account string, limit int) ([]model.LedgerTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.LedgerTransaction
	for i := len(b.txs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if b.txs[i].Account == account {
			out = append(out, b.txs[i])
		}
	}
	return out, nil
}

// StubWallet records transfers instead of sending them. Recipients must be
// enabled before they can receive.
type StubWallet struct {
	mu        sync.Mutex
	rate      decimal.Decimal
	enabled   map[string]bool
	transfers []StubTransfer
	fail      error
}

type StubTransfer struct {
	To     string
	Pmob   int64
	Memo   string
	Result TransferResult
}

func NewStubWallet(usdPerMOB decimal.Decimal) *StubWallet {
	return &StubWallet{rate: usdPerMOB, enabled: make(map[string]bool)}
}

func (w *StubWallet) Enable(number string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled[number] = true
}

// FailWith makes every later transfer return err.
func (w *StubWallet) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = err
}

func (w *StubWallet) Transfers() []StubTransfer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]StubTransfer(nil), w.transfers...)
}

func (w *StubWallet) Transfer(ctx context.Context, to string, pmob int64, memo string) (TransferResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return TransferOK, w.fail
	}
	result := TransferOK
	if !w.enabled[to] {
		result = TransferPaymentNotEnabled
	}
	w.transfers = append(w.transfers, StubTransfer{To: to, Pmob: pmob, Memo: memo, Result: result})
	return result, nil
}

func (w *StubWallet) USDPerMOB(ctx context.Context) (decimal.Decimal, error) {
	return w.rate, nil
}
