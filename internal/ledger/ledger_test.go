package ledger

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLedger() (*Ledger, *StubWallet) {
	wallet := NewStubWallet(decimal.NewFromInt(2))
	return New(NewMemoryBook(), wallet, zap.NewNop()), wallet
}

func TestFormatMOB(t *testing.T) {
	assert.Equal(t, "1", FormatMOB(PmobPerMOB))
	assert.Equal(t, "0.0004", FormatMOB(NetworkFee))
	assert.Equal(t, "0.01", FormatMOB(10_000_000_000))
	assert.Equal(t, "0", FormatMOB(0))
}

func TestMOBToPmob(t *testing.T) {
	tests := []struct {
		mob  string
		want int64
	}{
		{"0.01", 10_000_000_000},
		{"1.5", 3 * PmobPerMOB / 2},
		{"9223372.036854775807", math.MaxInt64},
		{"-9223372.036854775808", math.MinInt64},
	}
	for _, tt := range tests {
		got, err := MOBToPmob(decimal.RequireFromString(tt.mob))
		require.NoError(t, err, tt.mob)
		assert.Equal(t, tt.want, got, tt.mob)
	}
}

func TestMOBToPmobRejectsOverflow(t *testing.T) {
	for _, mob := range []string{"9300000", "9223372.036854775808", "18446744.073709551617", "-9300000"} {
		_, err := MOBToPmob(decimal.RequireFromString(mob))
		assert.ErrorIs(t, err, ErrAmountTooLarge, mob)
	}
}

func TestBalanceSumsRecordedDeltas(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger()

	require.NoError(t, l.RecordPmob(ctx, "+1", PmobPerMOB, "deposit"))
	require.NoError(t, l.RecordPmob(ctx, "+1", -PmobPerMOB/4, "follow +2"))
	require.NoError(t, l.RecordPmob(ctx, "+2", PmobPerMOB, "deposit"))

	balance, err := l.Balance(ctx, "+1")
	require.NoError(t, err)
	assert.Equal(t, 3*PmobPerMOB/4, balance)

	history, err := l.History(ctx, "+1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "follow +2", history[0].Memo)
	assert.True(t, decimal.RequireFromString("-0.5").Equal(history[0].USDDelta))
}

func TestPmobToUSD(t *testing.T) {
	l, _ := newTestLedger()
	usd, err := l.PmobToUSD(context.Background(), PmobPerMOB/2)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(usd))
}

func TestTransferResults(t *testing.T) {
	ctx := context.Background()
	l, wallet := newTestLedger()

	result, err := l.Transfer(ctx, "+2", PmobPerMOB, "tip")
	require.NoError(t, err)
	assert.Equal(t, TransferPaymentNotEnabled, result)

	wallet.Enable("+2")
	result, err = l.Transfer(ctx, "+2", PmobPerMOB, "tip")
	require.NoError(t, err)
	assert.Equal(t, TransferOK, result)
	assert.Len(t, wallet.Transfers(), 2)

	wallet.FailWith(errors.New("boom"))
	_, err = l.Transfer(ctx, "+2", PmobPerMOB, "tip")
	assert.Error(t, err)
}
