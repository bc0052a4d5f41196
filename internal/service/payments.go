package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whispr-service/internal/ledger"
	"whispr-service/internal/metrics"
	"whispr-service/internal/model"
)

const (
	purposeFollow   = "follow"
	purposeTip      = "tip"
	purposeWithdraw = "withdraw"
)

func (e *Engine) doSetFollowPrice(ctx context.Context, msg *model.Message) (string, error) {
	var (
		price decimal.Decimal
		err   error
	)
	if msg.Arg1 != "" {
		price, err = parseMOB(msg.Arg1)
		if err != nil {
			return "that's not a number. try /set_follow_price 0.01", nil
		}
	} else {
		var ok bool
		price, ok, err = e.questions.AskNumeric(ctx, msg.Source, "how much MOB to follow you?")
		if err != nil {
			if abandoned(err) {
				return "okay, never mind", nil
			}
			return "", err
		}
		if !ok {
			return "okay, never mind", nil
		}
	}
	if price.IsNegative() {
		return "the price can't be negative", nil
	}

	pmob, err := ledger.MOBToPmob(price)
	if err != nil {
		return "that amount is too large", nil
	}
	if err := e.store.SetFollowPrice(ctx, msg.Source, pmob); err != nil {
		return "", err
	}
	if pmob == 0 {
		return "following you is now free", nil
	}
	return fmt.Sprintf("it now costs %s MOB to follow you", ledger.FormatMOB(pmob)), nil
}

// payForFollow debits the follower and starts the transfer to the target. A
// non-empty string is the refusal to show the follower.
func (e *Engine) payForFollow(ctx context.Context, follower, followerName, target string, price int64) (string, error) {
	balance, err := e.ledger.Balance(ctx, follower)
	if err != nil {
		return "", err
	}
	if price > balance {
		return fmt.Sprintf("following costs %s MOB", ledger.FormatMOB(price)), nil
	}

	usd, err := e.ledger.PmobToUSD(ctx, price)
	if err != nil {
		return "", err
	}
	if err := e.ledger.Record(ctx, follower, usd.Neg(), -price, "follow "+target); err != nil {
		return "", err
	}

	e.send(ctx, target, fmt.Sprintf("sending you a payment from %s for following you", followerName))
	payout := price - ledger.NetworkFee
	e.spawn(follower, "follow-payment", func(ctx context.Context) error {
		return e.payFollowee(ctx, target, followerName, payout)
	})
	return "", nil
}

// payFollowee runs typing on, transfer, typing off. Typing is always switched
// off again, even when the transfer fails.
func (e *Engine) payFollowee(ctx context.Context, target, followerName string, payout int64) error {
	if err := e.outbox.SetTyping(ctx, target, true); err != nil {
		e.logger.Debug("typing indicator failed", zap.String("recipient", target), zap.Error(err))
	}
	defer func() {
		if err := e.outbox.SetTyping(ctx, target, false); err != nil {
			e.logger.Debug("typing indicator failed", zap.String("recipient", target), zap.Error(err))
		}
	}()

	if payout <= 0 {
		e.logger.Info("follow price does not cover the network fee, nothing sent", zap.String("target", target))
		return nil
	}
	result, err := e.ledger.Transfer(ctx, target, payout, followerName+" followed you")
	if err != nil {
		metrics.RecordTransfer(purposeFollow, "error")
		return err
	}
	metrics.RecordTransfer(purposeFollow, result.String())
	if result == ledger.TransferPaymentNotEnabled {
		e.send(ctx, target, fmt.Sprintf("%s paid to follow you. activate payments to receive it", followerName))
	}
	return nil
}

func (e *Engine) doTip(ctx context.Context, msg *model.Message) (string, error) {
	target, invalid, err := e.resolveArg(ctx, msg.Arg1)
	if err != nil || invalid != "" {
		return invalid, err
	}
	if target == msg.Source {
		return "you can't tip yourself", nil
	}

	var amount decimal.Decimal
	if msg.Arg2 != "" {
		amount, err = parseMOB(msg.Arg2)
		if err != nil {
			return "that's not a number. try /tip " + msg.Arg1 + " 0.01", nil
		}
	} else {
		var ok bool
		amount, ok, err = e.questions.AskNumeric(ctx, msg.Source, "how much MOB to tip?")
		if err != nil {
			if abandoned(err) {
				return "okay, never mind", nil
			}
			return "", err
		}
		if !ok {
			return "okay, never mind", nil
		}
	}
	tip, err := ledger.MOBToPmob(amount)
	if err != nil {
		return "that amount is too large", nil
	}
	if tip <= 0 {
		return "okay, never mind", nil
	}

	if claimed, err := e.store.ClaimedAirdrop(ctx, msg.Source); err == nil && !claimed {
		e.logger.Debug("tipper has not claimed an airdrop", zap.String("number", msg.Source))
	}

	balance, err := e.ledger.Balance(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if tip > balance {
		return "insufficient balance", nil
	}
	usd, err := e.ledger.PmobToUSD(ctx, tip)
	if err != nil {
		return "", err
	}
	// Escrow hand-off: the pair nets to zero until the transfer settles.
	if err := e.ledger.Record(ctx, msg.Source, usd.Neg(), -tip, "tip "+target); err != nil {
		return "", err
	}
	if err := e.ledger.Record(ctx, msg.Source, usd, tip, "tip from "+target); err != nil {
		return "", err
	}

	name := e.nameOf(ctx, msg.Source, msg.Name)
	tipper := msg.Source
	e.spawn(tipper, "tip", func(ctx context.Context) error {
		return e.sendTip(ctx, tipper, name, target, tip, usd)
	})
	e.publish(ctx, model.SocialEvent{Type: model.EventTip, Actor: tipper, Target: target, AmountPmob: tip})
	return "sending a tip", nil
}

// sendTip moves the tip and books the settling debit once it has gone through.
func (e *Engine) sendTip(ctx context.Context, tipper, tipperName, target string, tip int64, usd decimal.Decimal) error {
	result, err := e.ledger.Transfer(ctx, target, tip, tipperName+" tipped you")
	if err != nil {
		metrics.RecordTransfer(purposeTip, "error")
		return err
	}
	metrics.RecordTransfer(purposeTip, result.String())

	switch result {
	case ledger.TransferOK:
		return e.ledger.Record(ctx, tipper, usd.Neg(), -tip, "tip "+target)
	case ledger.TransferPaymentNotEnabled:
		e.send(ctx, target, fmt.Sprintf(
			"%s is trying to tip you. activate payments, and say 'withdraw' to get your tip", tipperName))
		return nil
	default:
		e.logger.Warn("tip transfer refused",
			zap.String("tipper", tipper),
			zap.String("target", target),
			zap.Stringer("result", result))
		return nil
	}
}

func (e *Engine) doBalance(ctx context.Context, msg *model.Message) (string, error) {
	balance, err := e.ledger.Balance(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	reply := fmt.Sprintf("your current balance is %s MOB", ledger.FormatMOB(balance))
	if balance == 0 {
		reply += "\n\nsend whispr some mobilecoin to follow paid accounts or tip"
	}
	return reply, nil
}

// doWithdraw sends the caller their whole balance and waits for the transfer.
func (e *Engine) doWithdraw(ctx context.Context, msg *model.Message) (string, error) {
	balance, err := e.ledger.Balance(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	if balance <= 0 {
		return "you don't have any MOB to withdraw", nil
	}
	usd, err := e.ledger.PmobToUSD(ctx, balance)
	if err != nil {
		return "", err
	}

	e.send(ctx, msg.Source, fmt.Sprintf("sending you %s MOB", ledger.FormatMOB(balance)))
	if err := e.outbox.SetTyping(ctx, msg.Source, true); err != nil {
		e.logger.Debug("typing indicator failed", zap.String("recipient", msg.Source), zap.Error(err))
	}
	defer func() {
		if err := e.outbox.SetTyping(ctx, msg.Source, false); err != nil {
			e.logger.Debug("typing indicator failed", zap.String("recipient", msg.Source), zap.Error(err))
		}
	}()

	result, err := e.ledger.Transfer(ctx, msg.Source, balance, purposeWithdraw)
	if err != nil {
		metrics.RecordTransfer(purposeWithdraw, "error")
		return "", err
	}
	metrics.RecordTransfer(purposeWithdraw, result.String())
	switch result {
	case ledger.TransferOK:
	case ledger.TransferPaymentNotEnabled:
		return "activate payments in signal settings, then say 'withdraw' again", nil
	default:
		return "the withdrawal didn't go through, please try again later", nil
	}

	if err := e.ledger.Record(ctx, msg.Source, usd.Neg(), -balance, purposeWithdraw); err != nil {
		return "", err
	}
	e.publish(ctx, model.SocialEvent{Type: model.EventWithdraw, Actor: msg.Source, AmountPmob: balance})
	return "sent you your MOB!", nil
}

// receivePayment credits an incoming payment to the sender's balance.
func (e *Engine) receivePayment(ctx context.Context, msg *model.Message) (string, error) {
	usd, err := e.ledger.PmobToUSD(ctx, msg.PaymentPmob)
	if err != nil {
		return "", err
	}
	if err := e.ledger.Record(ctx, msg.Source, usd, msg.PaymentPmob, "deposit"); err != nil {
		return "", err
	}
	e.publish(ctx, model.SocialEvent{Type: model.EventDeposit, Actor: msg.Source, AmountPmob: msg.PaymentPmob})

	balance, err := e.ledger.Balance(ctx, msg.Source)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("received %s MOB. your current balance is %s MOB",
		ledger.FormatMOB(msg.PaymentPmob), ledger.FormatMOB(balance)), nil
}

// parseMOB accepts "0.01", "$0.01" or "0.01mob".
func parseMOB(raw string) (decimal.Decimal, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(strings.TrimSuffix(s, "mob"))
	return decimal.NewFromString(s)
}
