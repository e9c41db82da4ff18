package archive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/obslog"
)

// Recorder fans records out to its sinks on a background goroutine.
// Submit never blocks; when the queue is full the record is dropped.
type Recorder struct {
	sinks   []Sink
	queue   chan Record
	timeout time.Duration
	onSaved func(sink string, err error)
	done    chan struct{}
}

type RecorderOption func(*Recorder)

// WithSaveTimeout bounds each sink call.
func WithSaveTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.timeout = d }
}

// WithSaveHook is called after every sink attempt, on the recorder goroutine.
func WithSaveHook(fn func(sink string, err error)) RecorderOption {
	return func(r *Recorder) { r.onSaved = fn }
}

func NewRecorder(queue int, sinks []Sink, opts ...RecorderOption) *Recorder {
	if queue < 1 {
		queue = 1
	}
	r := &Recorder{
		sinks:   sinks,
		queue:   make(chan Record, queue),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit queues rec. It returns false when the record was dropped.
func (r *Recorder) Submit(rec Record) bool {
	if len(r.sinks) == 0 {
		return true
	}
	select {
	case r.queue <- rec:
		return true
	default:
		obslog.L().Warn("archive_drop", zap.String("match_id", rec.MatchID), zap.String("room_id", rec.RoomID))
		return false
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case rec := <-r.queue:
			r.save(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.queue:
					r.save(rec)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (r *Recorder) Wait() { <-r.done }

func (r *Recorder) save(rec Record) {
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := s.Save(ctx, rec)
		cancel()
		if err != nil {
			obslog.L().Error("archive_save_failed",
				zap.String("sink", s.Name()),
				zap.String("match_id", rec.MatchID),
				zap.Error(err))
		} else {
			obslog.L().Debug("archive_saved", zap.String("sink", s.Name()), zap.String("match_id", rec.MatchID))
		}
		if r.onSaved != nil {
			r.onSaved(s.Name(), err)
		}
	}
}
