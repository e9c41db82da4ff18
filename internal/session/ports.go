package session

import (
	"time"

	"github.com/park285/secret-queen-chess/internal/archive"
	"github.com/park285/secret-queen-chess/internal/protocol"
)

// Outbox delivers frames to connections. Implementations must not block
// the caller.
type Outbox interface {
	Send(connID string, msg protocol.Message)
	// Close flushes queued frames and then closes the connection.
	Close(connID string, reason string)
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms timers whose callbacks run on the event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Recorder receives concluded matches.
type Recorder interface {
	Submit(rec archive.Record) bool
}

// Catalog renders player-facing texts.
type Catalog interface {
	Render(key string, data map[string]any) (string, error)
}

// Metrics observes engine events.
type Metrics interface {
	RoomOpened()
	RoomClosed(cause string)
	PlayerJoined(kind string)
	MoveApplied(kind string)
	MoveRejected(code string)
	MatchConcluded(reason string)
}

type nopMetrics struct{}

func (nopMetrics) RoomOpened() {}
func (nopMetrics) RoomClosed(string) {}
func (nopMetrics) PlayerJoined(string) {}
func (nopMetrics) MoveApplied(string) {}
func (nopMetrics) MoveRejected(string) {}
func (nopMetrics) MatchConcluded(string) {}

type nopRecorder struct{}

func (nopRecorder) Submit(archive.Record) bool { return true }
