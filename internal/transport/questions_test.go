package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const alice = "+12015550123"

// answerWhenAsked waits until the broker holds a question for recipient, then answers it.
func answerWhenAsked(t *testing.T, b *QuestionBroker, recipient, text string) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Offer(recipient, text) }, time.Second, time.Millisecond)
}

func TestAskYesNo(t *testing.T) {
	tests := []struct {
		answers []string
		want    bool
		prompts int
	}{
		{answers: []string{"yes"}, want: true, prompts: 1},
		{answers: []string{"Y"}, want: true, prompts: 1},
		{answers: []string{"nope"}, want: false, prompts: 1},
		{answers: []string{"maybe", "cancel"}, want: false, prompts: 2},
		{answers: []string{"what?", "huh", "yeah!"}, want: true, prompts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.answers[len(tt.answers)-1], func(t *testing.T) {
			rec := NewRecorder()
			b := NewQuestionBroker(rec, time.Minute, zap.NewNop())

			done := make(chan bool, 1)
			go func() {
				ok, err := b.AskYesNo(context.Background(), alice, "follow?")
				assert.NoError(t, err)
				done <- ok
			}()

			for _, a := range tt.answers {
				answerWhenAsked(t, b, alice, a)
			}
			assert.Equal(t, tt.want, <-done)
			assert.Len(t, rec.MessagesTo(alice), tt.prompts)
			assert.Zero(t, b.Pending())
		})
	}
}

func TestAskNumeric(t *testing.T) {
	rec := NewRecorder()
	b := NewQuestionBroker(rec, time.Minute, zap.NewNop())

	type result struct {
		value string
		ok    bool
	}
	done := make(chan result, 1)
	go func() {
		n, ok, err := b.AskNumeric(context.Background(), alice, "how much MOB to tip?")
		assert.NoError(t, err)
		done <- result{n.String(), ok}
	}()
	answerWhenAsked(t, b, alice, "lots")
	answerWhenAsked(t, b, alice, "0.5 MOB")

	got := <-done
	assert.True(t, got.ok)
	assert.Equal(t, "0.5", got.value)
	assert.Equal(t, []string{"how much MOB to tip?", "how much MOB to tip?"}, rec.MessagesTo(alice))

	go func() {
		_, ok, err := b.AskNumeric(context.Background(), alice, "how much MOB to follow you?")
		assert.NoError(t, err)
		done <- result{ok: ok}
	}()
	answerWhenAsked(t, b, alice, "cancel")
	assert.False(t, (<-done).ok)
}

func TestOfferWithoutQuestion(t *testing.T) {
	b := NewQuestionBroker(NewRecorder(), time.Minute, zap.NewNop())
	assert.False(t, b.Offer(alice, "hello"))
}

func TestQuestionTimeout(t *testing.T) {
	b := NewQuestionBroker(NewRecorder(), 20*time.Millisecond, zap.NewNop())

	_, err := b.AskFreeform(context.Background(), alice, "what would you like to be called?")
	assert.ErrorIs(t, err, ErrQuestionTimeout)
	assert.Zero(t, b.Pending())
	assert.False(t, b.Offer(alice, "late answer"))
}

func TestQuestionsToOneRecipientAreSerialized(t *testing.T) {
	rec := NewRecorder()
	b := NewQuestionBroker(rec, time.Minute, zap.NewNop())

	first := make(chan string, 1)
	second := make(chan string, 1)
	go func() {
		s, _ := b.AskFreeform(context.Background(), alice, "first?")
		first <- s
	}()
	require.Eventually(t, func() bool { return len(rec.MessagesTo(alice)) == 1 }, time.Second, time.Millisecond)

	go func() {
		s, _ := b.AskFreeform(context.Background(), alice, "second?")
		second <- s
	}()

	answerWhenAsked(t, b, alice, "one")
	assert.Equal(t, "one", <-first)
	answerWhenAsked(t, b, alice, "two")
	assert.Equal(t, "two", <-second)
	assert.Equal(t, []string{"first?", "second?"}, rec.MessagesTo(alice))
}

func TestCancelledAsk(t *testing.T) {
	b := NewQuestionBroker(NewRecorder(), 0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.AskFreeform(ctx, alice, "name?")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelDropsOpenQuestion(t *testing.T) {
	b := NewQuestionBroker(NewRecorder(), 0, zap.NewNop())

	errs := make(chan error, 1)
	go func() {
		_, err := b.AskYesNo(context.Background(), alice, "follow?")
		errs <- err
	}()
	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, time.Millisecond)

	b.Cancel(alice)
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrQuestionCancelled)
	case <-time.After(time.Second):
		t.Fatal("ask did not return after cancel")
	}
	assert.Zero(t, b.Pending())
	assert.False(t, b.Offer(alice, "yes"))

	// nothing pending is a no-op
	b.Cancel(alice)
}
