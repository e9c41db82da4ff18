package session

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/archive"
	"github.com/park285/secret-queen-chess/internal/msgcat"
	"github.com/park285/secret-queen-chess/internal/protocol"
	"github.com/park285/secret-queen-chess/internal/rules"
)

type sentFrame struct {
	conn string
	msg  protocol.Message
}

type fakeOutbox struct {
	frames []sentFrame
	closed []string
}

func (f *fakeOutbox) Send(connID string, msg protocol.Message) {
	f.frames = append(f.frames, sentFrame{conn: connID, msg: msg})
}

func (f *fakeOutbox) Close(connID string, _ string) { f.closed = append(f.closed, connID) }

// last returns the newest frame of typ sent to conn.
func (f *fakeOutbox) last(conn, typ string) (protocol.Message, bool) {
	for i := len(f.frames) - 1; i >= 0; i-- {
		if fr := f.frames[i]; fr.conn == conn && fr.msg.Type == typ {
			return fr.msg, true
		}
	}
	return protocol.Message{}, false
}

func (f *fakeOutbox) count(conn, typ string) int {
	n := 0
	for _, fr := range f.frames {
		if fr.conn == conn && fr.msg.Type == typ {
			n++
		}
	}
	return n
}

func (f *fakeOutbox) to(conn string) []protocol.Message {
	var out []protocol.Message
	for _, fr := range f.frames {
		if fr.conn == conn {
			out = append(out, fr.msg)
		}
	}
	return out
}

func (f *fakeOutbox) reset() { f.frames = nil; f.closed = nil }

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeScheduler struct {
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fireAll runs every armed timer, as the loop would on expiry.
func (s *fakeScheduler) fireAll() {
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

type memRecorder struct {
	recs []archive.Record
}

func (m *memRecorder) Submit(rec archive.Record) bool {
	m.recs = append(m.recs, rec)
	return true
}

type harness struct {
	t     *testing.T
	e     *Engine
	out   *fakeOutbox
	sched *fakeScheduler
	rec   *memRecorder
	now   time.Time
	ids   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		out:   &fakeOutbox{},
		sched: &fakeScheduler{},
		rec:   &memRecorder{},
		now:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	h.e = NewEngine(Options{
		Outbox:      h.out,
		Scheduler:   h.sched,
		Recorder:    h.rec,
		Catalog:     msgcat.MustDefault(),
		GracePeriod: 2 * time.Minute,
		Now:         func() time.Time { return h.now },
		NewID: func() string {
			h.ids++
			return fmt.Sprintf("id-%d", h.ids)
		},
		Logger: zap.NewNop(),
	})
	return h
}

func (h *harness) send(conn, typ string, payload any) {
	h.t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			h.t.Fatalf("marshal %s: %v", typ, err)
		}
		raw = b
	}
	h.e.Handle(conn, protocol.Inbound{Type: typ, Payload: raw})
}

func (h *harness) join(conn, room, playerID string) protocol.Joined {
	h.t.Helper()
	h.send(conn, protocol.TypeJoin, protocol.JoinPayload{RoomID: room, PlayerID: playerID})
	msgs := h.out.to(conn)
	if len(msgs) == 0 {
		h.t.Fatalf("no reply to join on %s", conn)
	}
	m := msgs[len(msgs)-1]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == protocol.TypeJoined || msgs[i].Type == protocol.TypeRejoined {
			m = msgs[i]
			break
		}
	}
	j, ok := m.Payload.(protocol.Joined)
	if !ok {
		h.t.Fatalf("join on %s answered with %s: %+v", conn, m.Type, m.Payload)
	}
	return j
}

// seatBoth fills room "r1" with conns "cw" (white) and "cb" (black).
func (h *harness) seatBoth() (white, black *PlayerState, s *Session) {
	h.t.Helper()
	jw := h.join("cw", "r1", "")
	jb := h.join("cb", "r1", "")
	s, ok := h.e.reg.Room("r1")
	if !ok {
		h.t.Fatalf("room r1 missing")
	}
	white, _ = s.Player(jw.PlayerID)
	black, _ = s.Player(jb.PlayerID)
	return white, black, s
}

// playing seats both players and selects the given secret squares.
func (h *harness) playing(whiteSecret, blackSecret string) (white, black *PlayerState, s *Session) {
	h.t.Helper()
	white, black, s = h.seatBoth()
	h.send("cw", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: whiteSecret})
	h.send("cb", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: blackSecret})
	if s.phase != Playing {
		h.t.Fatalf("phase after selection: %s", s.phase)
	}
	return white, black, s
}

func (h *harness) move(conn, from, to string) {
	h.t.Helper()
	h.send(conn, protocol.TypeMove, protocol.MovePayload{From: from, To: to})
}

// mustApply moves and fails the test unless a boardUpdated was produced.
func (h *harness) mustApply(conn, from, to string) protocol.BoardUpdated {
	h.t.Helper()
	before := h.out.count(conn, protocol.TypeBoardUpdated)
	h.move(conn, from, to)
	if h.out.count(conn, protocol.TypeBoardUpdated) != before+1 {
		m, _ := h.out.last(conn, protocol.TypeMoveRejected)
		h.t.Fatalf("%s %s-%s not applied: %+v", conn, from, to, m.Payload)
	}
	m, _ := h.out.last(conn, protocol.TypeBoardUpdated)
	return m.Payload.(protocol.BoardUpdated)
}

// mustReject moves and returns the rejection code.
func (h *harness) mustReject(conn, from, to string) string {
	h.t.Helper()
	before := h.out.count(conn, protocol.TypeMoveRejected)
	h.move(conn, from, to)
	if h.out.count(conn, protocol.TypeMoveRejected) != before+1 {
		h.t.Fatalf("%s %s-%s was not rejected", conn, from, to)
	}
	m, _ := h.out.last(conn, protocol.TypeMoveRejected)
	return m.Payload.(protocol.MoveRejected).Code
}

func (h *harness) lastError(conn string) string {
	h.t.Helper()
	m, ok := h.out.last(conn, protocol.TypeError)
	if !ok {
		h.t.Fatalf("no error frame for %s", conn)
	}
	return m.Payload.(protocol.Error).Code
}

// setPosition replaces the live board and positions the secret queens.
// An empty square marks the secret queen as gone.
func setPosition(t *testing.T, s *Session, fen string, white, black *PlayerState, whiteSecret, blackSecret string) {
	t.Helper()
	b, err := rules.FromFEN(fen)
	if err != nil {
		t.Fatalf("fen: %v", err)
	}
	s.board = b
	s.positions = map[string]int{}
	white.SecretCurrent, white.Transformed = whiteSecret, false
	black.SecretCurrent, black.Transformed = blackSecret, false
}
