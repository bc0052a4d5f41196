// Package dispatch serializes inbound traffic per sender. Each active sender gets a
// session goroutine that handles its messages in order and exits when idle.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"whispr-service/internal/bucketing"
	"whispr-service/internal/model"
)

const inboxSize = 64

var ErrClosed = errors.New("dispatcher closed")

// TaskResult reports a finished background task to its owner's session.
type TaskResult struct {
	Owner   string
	Task    string
	Err     error
	Elapsed time.Duration
}

type Handler interface {
	HandleMessage(ctx context.Context, msg *model.Message)
	TaskFinished(ctx context.Context, result TaskResult)
}

// Interceptor claims messages that answer an open question.
type Interceptor interface {
	Offer(source, text string) bool
	Cancel(source string)
}

// Intercept reports whether msg was consumed as an answer. Opt-in and opt-out
// keywords are never answers, and opting out drops the sender's open question.
func Intercept(i Interceptor, msg *model.Message) bool {
	if i == nil || msg.Text == "" {
		return false
	}
	switch msg.OptKeyword() {
	case model.OptOut:
		i.Cancel(msg.Source)
		return false
	case model.OptIn:
		return false
	}
	return i.Offer(msg.Source, msg.Text)
}

type item struct {
	msg  *model.Message
	done *TaskResult
}

type session struct {
	inbox  chan item
	queued int
}

type stripe struct {
	mu       sync.Mutex
	sessions map[string]*session
}

type Dispatcher struct {
	handler     Handler
	interceptor Interceptor
	buckets     *bucketing.BucketingManager
	stripes     []*stripe
	idle        time.Duration
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(handler Handler, interceptor Interceptor, buckets *bucketing.BucketingManager, idle time.Duration, logger *zap.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler:     handler,
		interceptor: interceptor,
		buckets:     buckets,
		stripes:     make([]*stripe, buckets.Buckets()),
		idle:        idle,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := range d.stripes {
		d.stripes[i] = &stripe{sessions: make(map[string]*session)}
	}
	return d
}

// Dispatch routes msg to its sender's session, or to the open question the
// sender is answering.
func (d *Dispatcher) Dispatch(msg *model.Message) error {
	if d.ctx.Err() != nil {
		return ErrClosed
	}
	if Intercept(d.interceptor, msg) {
		return nil
	}
	return d.enqueue(msg.Source, item{msg: msg})
}

// Spawn runs fn in the background on behalf of owner. Its result is delivered
// to owner's session once fn returns.
func (d *Dispatcher) Spawn(owner, task string, fn func(ctx context.Context) error) {
	if d.ctx.Err() != nil {
		d.logger.Warn("dropping task after shutdown", zap.String("task", task), zap.String("owner", owner))
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		start := time.Now()
		err := fn(d.ctx)
		result := &TaskResult{Owner: owner, Task: task, Err: err, Elapsed: time.Since(start)}
		if enqErr := d.enqueue(owner, item{done: result}); enqErr != nil {
			d.logger.Debug("task finished after shutdown", zap.String("task", task), zap.Error(err))
		}
	}()
}

func (d *Dispatcher) enqueue(source string, it item) error {
	st := d.stripes[d.buckets.GetBucket(source)]

	st.mu.Lock()
	if d.ctx.Err() != nil {
		st.mu.Unlock()
		return ErrClosed
	}
	s, ok := st.sessions[source]
	if !ok {
		s = &session{inbox: make(chan item, inboxSize)}
		st.sessions[source] = s
		d.wg.Add(1)
		go d.run(source, st, s)
	}
	s.queued++
	st.mu.Unlock()

	select {
	case s.inbox <- it:
		return nil
	case <-d.ctx.Done():
		return ErrClosed
	}
}

func (d *Dispatcher) run(source string, st *stripe, s *session) {
	defer d.wg.Done()
	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case it := <-s.inbox:
			st.mu.Lock()
			s.queued--
			st.mu.Unlock()
			d.handle(it)
			timer.Reset(d.idle)
		case <-timer.C:
			st.mu.Lock()
			if s.queued == 0 {
				delete(st.sessions, source)
				st.mu.Unlock()
				return
			}
			st.mu.Unlock()
			timer.Reset(d.idle)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) handle(it item) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("session handler panicked", zap.Any("panic", r))
		}
	}()
	if it.msg != nil {
		d.handler.HandleMessage(d.ctx, it.msg)
		return
	}
	d.handler.TaskFinished(d.ctx, *it.done)
}

// Sessions counts live sessions.
func (d *Dispatcher) Sessions() int {
	n := 0
	for _, st := range d.stripes {
		st.mu.Lock()
		n += len(st.sessions)
		st.mu.Unlock()
	}
	return n
}

// Close cancels sessions and background tasks and waits for them until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
