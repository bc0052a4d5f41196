package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whispr-service/internal/ledger"
	"whispr-service/internal/model"
	"whispr-service/internal/transport"
)

func (h *harness) balance(number string) int64 {
	h.t.Helper()
	b, err := h.ledger.Balance(h.ctx, number)
	require.NoError(h.t, err)
	return b
}

func pmob(mob string) int64 {
	p, err := ledger.MOBToPmob(decimal.RequireFromString(mob))
	if err != nil {
		panic(err)
	}
	return p
}

func TestSetFollowPriceInline(t *testing.T) {
	h := newHarness(t)
	h.user(bob, "bob")

	h.send(bob, "/set_follow_price 0.5")
	assert.Equal(t, "it now costs 0.5 MOB to follow you", h.last(bob))

	price, err := h.store.FollowPrice(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, pmob("0.5"), price)

	h.send(bob, "/set_follow_price 0")
	assert.Equal(t, "following you is now free", h.last(bob))
	price, err = h.store.FollowPrice(h.ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, price)

	h.send(bob, "/set_follow_price lots")
	assert.Equal(t, "that's not a number. try /set_follow_price 0.01", h.last(bob))
	h.send(bob, "/set_follow_price -1")
	assert.Equal(t, "the price can't be negative", h.last(bob))
}

func TestSetFollowPriceAsks(t *testing.T) {
	h := newHarness(t)
	h.user(bob, "bob")

	done := h.sendAsync(bob, "/set_follow_price")
	h.waitMessage(bob, "how much MOB to follow you?")
	h.send(bob, "a few")
	require.Eventually(t, func() bool {
		return len(h.recorder.MessagesTo(bob)) == 2
	}, waitFor, 5*time.Millisecond)
	h.send(bob, "0.25 mob")
	waitDone(t, done)
	assert.Equal(t, "it now costs 0.25 MOB to follow you", h.last(bob))

	done = h.sendAsync(bob, "/set_follow_price")
	require.Eventually(t, func() bool { return h.questions.Pending() == 1 }, waitFor, 5*time.Millisecond)
	h.send(bob, "never mind")
	waitDone(t, done)
	assert.Equal(t, "okay, never mind", h.last(bob))

	price, err := h.store.FollowPrice(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, pmob("0.25"), price)
}

func TestPricedFollowNeedsBalance(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	require.NoError(t, h.store.SetFollowPrice(h.ctx, bob, pmob("0.5")))

	h.send(alice, "/follow bob")
	assert.Equal(t, "following costs 0.5 MOB", h.last(alice))

	following, err := h.store.IsFollowing(h.ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, following)
	assert.Empty(t, h.wallet.Transfers())
	assert.Empty(t, h.recorder.MessagesTo(bob))
}

func TestPricedFollowPaysFollowee(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	h.wallet.Enable(bob)
	require.NoError(t, h.store.SetFollowPrice(h.ctx, bob, pmob("0.5")))
	h.fund(alice, "1")

	h.send(alice, "/follow bob")
	assert.Equal(t, "followed bob", h.last(alice))
	assert.Equal(t, pmob("0.5"), h.balance(alice))
	assert.Equal(t, []string{
		"sending you a payment from alice for following you",
		"alice has followed you",
	}, h.recorder.MessagesTo(bob))

	require.Eventually(t, func() bool { return len(h.recorder.Typing()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []transport.Delivery{
		{Recipient: bob, Typing: true},
		{Recipient: bob, Typing: false},
	}, h.recorder.Typing())

	transfers := h.wallet.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, bob, transfers[0].To)
	assert.Equal(t, pmob("0.5")-ledger.NetworkFee, transfers[0].Pmob)
	assert.Equal(t, ledger.TransferOK, transfers[0].Result)

	events := h.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventFollow, events[0].Type)
	assert.Equal(t, pmob("0.5"), events[0].AmountPmob)
}

func TestPricedFollowToUnpayableFollowee(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	require.NoError(t, h.store.SetFollowPrice(h.ctx, bob, pmob("0.5")))
	h.fund(alice, "0.5")

	h.send(alice, "/follow bob")
	assert.Equal(t, "followed bob", h.last(alice))
	h.waitMessage(bob, "alice paid to follow you. activate payments to receive it")

	following, err := h.store.IsFollowing(h.ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, following, "the edge stands even though no funds moved")
	assert.Zero(t, h.balance(alice))
}

func TestPriceBelowFeeSendsNothing(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	h.wallet.Enable(bob)
	require.NoError(t, h.store.SetFollowPrice(h.ctx, bob, ledger.NetworkFee))
	h.fund(alice, "1")

	h.send(alice, "/follow bob")
	assert.Equal(t, "followed bob", h.last(alice))
	require.Eventually(t, func() bool { return len(h.recorder.Typing()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, h.wallet.Transfers())
}

func TestTipToUnpayableRecipient(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	h.fund(alice, "0.01")

	h.send(alice, "/tip bob 0.01")
	assert.Equal(t, "sending a tip", h.last(alice))
	h.waitMessage(bob, "alice is trying to tip you. activate payments, and say 'withdraw' to get your tip")

	history, err := h.ledger.History(h.ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "tip from "+bob, history[0].Memo)
	assert.Equal(t, pmob("0.01"), history[0].PmobDelta)
	assert.Equal(t, "tip "+bob, history[1].Memo)
	assert.Equal(t, -pmob("0.01"), history[1].PmobDelta)
	assert.Equal(t, pmob("0.01"), h.balance(alice), "nothing settles without a transfer")

	transfers := h.wallet.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, ledger.TransferPaymentNotEnabled, transfers[0].Result)
}

func TestTipSettlesAfterTransfer(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	h.wallet.Enable(bob)
	h.fund(alice, "1")

	h.send(alice, "/tip bob 0.25")
	assert.Equal(t, "sending a tip", h.last(alice))
	require.Eventually(t, func() bool {
		return h.balance(alice) == pmob("0.75")
	}, waitFor, 5*time.Millisecond)

	transfers := h.wallet.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "alice tipped you", transfers[0].Memo)
	assert.Contains(t, h.events.Types(), model.EventTip)
}

func TestTipRefusals(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	h.fund(alice, "0.01")

	h.send(alice, "/tip bob 5")
	assert.Equal(t, "insufficient balance", h.last(alice))
	h.send(alice, "/tip alice 0.01")
	assert.Equal(t, "you can't tip yourself", h.last(alice))
	h.send(alice, "/tip bob much")
	assert.Equal(t, "that's not a number. try /tip bob 0.01", h.last(alice))

	done := h.sendAsync(alice, "/tip bob")
	h.waitMessage(alice, "how much MOB to tip?")
	h.send(alice, "cancel")
	waitDone(t, done)
	assert.Equal(t, "okay, never mind", h.last(alice))

	h.send(alice, "/tip bob 18446744.073709551617")
	assert.Equal(t, "that amount is too large", h.last(alice))

	assert.Empty(t, h.wallet.Transfers())
	assert.Equal(t, pmob("0.01"), h.balance(alice))
}

func TestSetFollowPriceTooLarge(t *testing.T) {
	h := newHarness(t)
	h.user(bob, "bob")
	h.send(bob, "/set_follow_price 1")

	h.send(bob, "/set_follow_price 9300000")
	assert.Equal(t, "that amount is too large", h.last(bob))

	price, err := h.store.FollowPrice(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, pmob("1"), price)
}

func TestTipTransferErrorIsSilent(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.user(bob, "bob")
	h.fund(alice, "1")
	h.wallet.FailWith(errors.New("gateway down"))

	h.send(alice, "/tip bob 0.5")
	assert.Equal(t, "sending a tip", h.last(alice))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.recorder.MessagesTo(bob))
	assert.Equal(t, pmob("1"), h.balance(alice))
}

func TestBalance(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")

	h.send(alice, "/balance")
	assert.Equal(t, "your current balance is 0 MOB\n\nsend whispr some mobilecoin to follow paid accounts or tip", h.last(alice))

	h.fund(alice, "0.01")
	h.send(alice, "/balance")
	assert.Equal(t, "your current balance is 0.01 MOB", h.last(alice))
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")

	h.send(alice, "/withdraw")
	assert.Equal(t, "you don't have any MOB to withdraw", h.last(alice))

	h.fund(alice, "1.5")
	h.send(alice, "/withdraw")
	assert.Equal(t, "activate payments in signal settings, then say 'withdraw' again", h.last(alice))
	assert.Equal(t, pmob("1.5"), h.balance(alice))

	h.wallet.Enable(alice)
	h.send(alice, "/withdraw")
	msgs := h.recorder.MessagesTo(alice)
	assert.Equal(t, []string{"sending you 1.5 MOB", "sent you your MOB!"}, msgs[len(msgs)-2:])
	assert.Zero(t, h.balance(alice))
	assert.Contains(t, h.events.Types(), model.EventWithdraw)

	typing := h.recorder.Typing()
	require.NotEmpty(t, typing)
	assert.False(t, typing[len(typing)-1].Typing)
}

func TestIncomingPaymentIsCredited(t *testing.T) {
	h := newHarness(t)
	h.user(alice, "alice")
	h.fund(alice, "0.5")

	msg := newMessage(alice, "")
	msg.PaymentPmob = pmob("1")
	h.engine.HandleMessage(h.ctx, msg)

	assert.Equal(t, "received 1 MOB. your current balance is 1.5 MOB", h.last(alice))
	assert.Equal(t, pmob("1.5"), h.balance(alice))
	assert.Equal(t, []model.EventType{model.EventDeposit}, h.events.Types())
}
