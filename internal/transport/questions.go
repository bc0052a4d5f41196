package transport

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrQuestionTimeout   = errors.New("question timed out")
	ErrQuestionCancelled = errors.New("question cancelled")
)

var (
	yesAnswers    = []string{"y", "yes", "yeah", "yep", "yup", "ok", "okay", "sure"}
	noAnswers     = []string{"n", "no", "nope", "cancel"}
	cancelAnswers = []string{"cancel", "no", "n", "nevermind", "never mind", "stop"}
)

type question struct {
	answers chan string
	abort   chan struct{}
}

// QuestionBroker asks users questions and routes their next message back as the
// answer. A recipient has at most one open question; later asks wait their turn.
type QuestionBroker struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending map[string]*question
	turns   map[string]chan struct{}
}

// NewQuestionBroker creates a broker; a zero timeout waits forever.
func NewQuestionBroker(sender Sender, timeout time.Duration, logger *zap.Logger) *QuestionBroker {
	return &QuestionBroker{
		sender:  sender,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]*question),
		turns:   make(map[string]chan struct{}),
	}
}

// Offer hands text to the open question for source. It reports false when
// source has nothing pending and the message should be dispatched normally.
func (b *QuestionBroker) Offer(source, text string) bool {
	b.mu.Lock()
	q, ok := b.pending[source]
	if ok {
		delete(b.pending, source)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	q.answers <- text
	return true
}

// Cancel drops the open question for source, if any. The waiting ask returns
// ErrQuestionCancelled.
func (b *QuestionBroker) Cancel(source string) {
	b.mu.Lock()
	q, ok := b.pending[source]
	if ok {
		delete(b.pending, source)
	}
	b.mu.Unlock()
	if ok {
		close(q.abort)
	}
}

// Pending counts open questions.
func (b *QuestionBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *QuestionBroker) AskFreeform(ctx context.Context, recipient, prompt string) (string, error) {
	var out string
	err := b.converse(ctx, recipient, prompt, func(answer string) (bool, error) {
		out = strings.TrimSpace(answer)
		return true, nil
	})
	return out, err
}

// AskYesNo re-asks until the answer is recognisably yes or no.
func (b *QuestionBroker) AskYesNo(ctx context.Context, recipient, prompt string) (bool, error) {
	var out bool
	err := b.converse(ctx, recipient, prompt, func(answer string) (bool, error) {
		answer = normalize(answer)
		switch {
		case slices.Contains(yesAnswers, answer):
			out = true
			return true, nil
		case slices.Contains(noAnswers, answer):
			out = false
			return true, nil
		}
		return false, nil
	})
	return out, err
}

// AskNumeric re-asks until the answer is a number. ok is false when the user cancels.
func (b *QuestionBroker) AskNumeric(ctx context.Context, recipient, prompt string) (decimal.Decimal, bool, error) {
	var (
		out decimal.Decimal
		ok  bool
	)
	err := b.converse(ctx, recipient, prompt, func(answer string) (bool, error) {
		answer = normalize(answer)
		if slices.Contains(cancelAnswers, answer) {
			return true, nil
		}
		answer = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(answer, "$"), "mob"))
		n, err := decimal.NewFromString(answer)
		if err != nil {
			return false, nil
		}
		out, ok = n, true
		return true, nil
	})
	return out, ok, err
}

// converse sends prompt and feeds answers to accept until it is satisfied,
// re-sending the prompt after each rejected answer.
func (b *QuestionBroker) converse(ctx context.Context, recipient, prompt string, accept func(string) (bool, error)) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	release, err := b.takeTurn(ctx, recipient)
	if err != nil {
		return err
	}
	defer release()

	for {
		q := &question{answers: make(chan string, 1), abort: make(chan struct{})}
		b.mu.Lock()
		b.pending[recipient] = q
		b.mu.Unlock()

		if err := b.sender.SendMessage(ctx, recipient, prompt, nil); err != nil {
			b.forget(recipient, q)
			return err
		}

		select {
		case answer := <-q.answers:
			done, err := accept(answer)
			if err != nil || done {
				return err
			}
		case <-q.abort:
			return ErrQuestionCancelled
		case <-ctx.Done():
			b.forget(recipient, q)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				b.logger.Info("question expired", zap.String("recipient", recipient))
				return ErrQuestionTimeout
			}
			return ctx.Err()
		}
	}
}

func (b *QuestionBroker) forget(recipient string, q *question) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[recipient] == q {
		delete(b.pending, recipient)
	}
}

// takeTurn serializes conversations with one recipient.
func (b *QuestionBroker) takeTurn(ctx context.Context, recipient string) (func(), error) {
	b.mu.Lock()
	turn, ok := b.turns[recipient]
	if !ok {
		turn = make(chan struct{}, 1)
		b.turns[recipient] = turn
	}
	b.mu.Unlock()

	select {
	case turn <- struct{}{}:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrQuestionTimeout
		}
		return nil, ctx.Err()
	}
	return func() { <-turn }, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.Trim(s, ".!? ")))
}
