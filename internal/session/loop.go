package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/obslog"
)

var ErrLoopStopped = errors.New("event loop stopped")

// Loop serialises every inbound frame, disconnect and timer callback onto
// one goroutine so the Engine never needs locks.
type Loop struct {
	events chan func()
	done   chan struct{}
	engine *Engine
}

func NewLoop(buffer int) *Loop {
	if buffer < 1 {
		buffer = 1
	}
	return &Loop{events: make(chan func(), buffer), done: make(chan struct{})}
}

// Attach sets the engine driven by the loop. Call before Run.
func (l *Loop) Attach(e *Engine) { l.engine = e }

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.events:
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("loop_panic", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Post queues fn. It returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Message hands a raw client frame to the engine.
func (l *Loop) Message(connID string, raw []byte) {
	l.Post(func() { l.engine.HandleRaw(connID, raw) })
}

// Disconnected reports that the transport lost connID.
func (l *Loop) Disconnected(connID string) {
	l.Post(func() { l.engine.Disconnect(connID) })
}

// Stats reads registry counters from inside the loop.
func (l *Loop) Stats(ctx context.Context) (Stats, error) {
	ch := make(chan Stats, 1)
	if !l.Post(func() { ch <- l.engine.Registry().Stats() }) {
		return Stats{}, ErrLoopStopped
	}
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return Stats{}, fmt.Errorf("stats: %w", ctx.Err())
	case <-l.done:
		return Stats{}, ErrLoopStopped
	}
}

// Scheduler returns a Scheduler whose callbacks are posted into the loop.
func (l *Loop) Scheduler() Scheduler { return loopScheduler{l} }

type loopScheduler struct{ l *Loop }

func (s loopScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() { s.l.Post(fn) })
}
