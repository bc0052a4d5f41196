package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whispr-service/internal/bucketing"
	"whispr-service/internal/model"
)

type recordingHandler struct {
	mu      sync.Mutex
	seen    map[string][]string
	results []TaskResult
	block   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: make(map[string][]string)}
}

func (h *recordingHandler) HandleMessage(ctx context.Context, msg *model.Message) {
	if h.block != nil && msg.Text == "slow" {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[msg.Source] = append(h.seen[msg.Source], msg.Text)
}

func (h *recordingHandler) TaskFinished(ctx context.Context, result TaskResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, result)
}

func (h *recordingHandler) texts(source string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen[source]...)
}

func (h *recordingHandler) taskResults() []TaskResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TaskResult(nil), h.results...)
}

type answerAll struct{ source string }

func (a answerAll) Offer(source, text string) bool { return source == a.source }

func (a answerAll) Cancel(source string) {}

func newDispatcher(t *testing.T, h Handler, i Interceptor, idle time.Duration) *Dispatcher {
	t.Helper()
	d := New(h, i, bucketing.New(4), idle, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	return d
}

func TestMessagesFromOneSenderStayOrdered(t *testing.T) {
	h := newRecordingHandler()
	d := newDispatcher(t, h, nil, time.Minute)

	want := []string{"one", "two", "three", "four"}
	for _, text := range want {
		require.NoError(t, d.Dispatch(&model.Message{Source: "+1", Text: text}))
	}
	assert.Eventually(t, func() bool { return len(h.texts("+1")) == len(want) }, time.Second, time.Millisecond)
	assert.Equal(t, want, h.texts("+1"))
}

func TestSlowSenderDoesNotStallOthers(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	d := newDispatcher(t, h, nil, time.Minute)

	require.NoError(t, d.Dispatch(&model.Message{Source: "+1", Text: "slow"}))
	require.NoError(t, d.Dispatch(&model.Message{Source: "+2", Text: "fast"}))

	assert.Eventually(t, func() bool { return len(h.texts("+2")) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, h.texts("+1"))
	close(h.block)
	assert.Eventually(t, func() bool { return len(h.texts("+1")) == 1 }, time.Second, time.Millisecond)
}

func TestInterceptedMessagesSkipSessions(t *testing.T) {
	h := newRecordingHandler()
	d := newDispatcher(t, h, answerAll{source: "+1"}, time.Minute)

	require.NoError(t, d.Dispatch(&model.Message{Source: "+1", Text: "yes"}))
	require.NoError(t, d.Dispatch(&model.Message{Source: "+2", Text: "hello"}))

	assert.Eventually(t, func() bool { return len(h.texts("+2")) == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, h.texts("+1"))
}

func TestIdleSessionsExit(t *testing.T) {
	h := newRecordingHandler()
	d := newDispatcher(t, h, nil, 10*time.Millisecond)

	require.NoError(t, d.Dispatch(&model.Message{Source: "+1", Text: "hi"}))
	assert.Eventually(t, func() bool { return d.Sessions() == 0 && len(h.texts("+1")) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, d.Dispatch(&model.Message{Source: "+1", Text: "again"}))
	assert.Eventually(t, func() bool { return len(h.texts("+1")) == 2 }, time.Second, time.Millisecond)
}

func TestSpawnReportsToOwner(t *testing.T) {
	h := newRecordingHandler()
	d := newDispatcher(t, h, nil, time.Minute)

	boom := errors.New("boom")
	d.Spawn("+1", "tip", func(ctx context.Context) error { return boom })

	assert.Eventually(t, func() bool { return len(h.taskResults()) == 1 }, time.Second, time.Millisecond)
	got := h.taskResults()[0]
	assert.Equal(t, "+1", got.Owner)
	assert.Equal(t, "tip", got.Task)
	assert.ErrorIs(t, got.Err, boom)
}

func TestDispatchAfterClose(t *testing.T) {
	d := New(newRecordingHandler(), nil, bucketing.New(1), time.Minute, zap.NewNop())
	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Dispatch(&model.Message{Source: "+1", Text: "hi"}), ErrClosed)
}

type trackingInterceptor struct {
	mu        sync.Mutex
	offered   []string
	cancelled []string
}

func (i *trackingInterceptor) Offer(source, text string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.offered = append(i.offered, text)
	return true
}

func (i *trackingInterceptor) Cancel(source string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cancelled = append(i.cancelled, source)
}

func TestOptKeywordsAreNeverAnswers(t *testing.T) {
	tests := []struct {
		text        string
		intercepted bool
		cancelled   bool
	}{
		{text: "yes", intercepted: true},
		{text: "STOP", cancelled: true},
		{text: " block ", cancelled: true},
		{text: "Start"},
		{text: "unblock"},
		{text: "stop please", intercepted: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			i := &trackingInterceptor{}
			got := Intercept(i, &model.Message{Source: "+1", Text: tt.text})
			assert.Equal(t, tt.intercepted, got)
			assert.Equal(t, tt.cancelled, len(i.cancelled) == 1)
		})
	}
}
