package session

import (
	"testing"
	"time"

	"github.com/park285/secret-queen-chess/internal/protocol"
)

func TestJoin_CreateAndSeat(t *testing.T) {
	h := newHarness(t)
	jw := h.join("cw", "r1", "")
	if jw.Color != "white" || jw.Phase != string(AwaitingOpponent) || jw.PlayerID == "" || jw.RoomID != "r1" {
		t.Fatalf("creator: %+v", jw)
	}
	jb := h.join("cb", "r1", "")
	if jb.Color != "black" || jb.Phase != string(SecretQueenSelection) || jb.PlayerID == jw.PlayerID {
		t.Fatalf("second: %+v", jb)
	}
	for _, conn := range []string{"cw", "cb"} {
		m, ok := h.out.last(conn, protocol.TypeMatchStarted)
		if !ok {
			t.Fatalf("%s: no matchStarted", conn)
		}
		ms := m.Payload.(protocol.MatchStarted)
		if ms.Phase != string(SecretQueenSelection) || len(ms.Players) != 2 || ms.Turn != "white" {
			t.Fatalf("%s matchStarted: %+v", conn, ms)
		}
	}
	s, _ := h.e.reg.Room("r1")
	if s.startedAt != h.now {
		t.Fatalf("startedAt %v", s.startedAt)
	}
}

func TestJoin_Errors(t *testing.T) {
	h := newHarness(t)
	h.send("c0", protocol.TypeJoin, protocol.JoinPayload{RoomID: "  "})
	if code := h.lastError("c0"); code != "roomIdRequired" {
		t.Fatalf("blank room: %s", code)
	}

	h.seatBoth()
	h.send("c3", protocol.TypeJoin, protocol.JoinPayload{RoomID: "r1"})
	if code := h.lastError("c3"); code != "roomFull" {
		t.Fatalf("third seat: %s", code)
	}
	m, _ := h.out.last("c3", protocol.TypeError)
	if msg := m.Payload.(protocol.Error).Message; msg == "" || msg == "error.roomFull" {
		t.Fatalf("roomFull text not rendered: %q", msg)
	}

	h.send("cw", protocol.TypeJoin, protocol.JoinPayload{RoomID: "r2"})
	if code := h.lastError("cw"); code != "alreadyJoined" {
		t.Fatalf("second room: %s", code)
	}

	h.send("ghost", protocol.TypeResign, nil)
	if code := h.lastError("ghost"); code != "notSeated" {
		t.Fatalf("unseated: %s", code)
	}

	h.e.HandleRaw("cw", []byte("{not json"))
	if code := h.lastError("cw"); code != "badPayload" {
		t.Fatalf("garbage frame: %s", code)
	}
	h.e.HandleRaw("cw", []byte(`{"type":"dance"}`))
	if code := h.lastError("cw"); code != "unknownMessage" {
		t.Fatalf("unknown type: %s", code)
	}
	h.e.HandleRaw("cw", []byte(`{"type":"join","payload":{"roomId":7}}`))
	if code := h.lastError("cw"); code != "badPayload" {
		t.Fatalf("typed payload: %s", code)
	}
}

func TestJoin_RepeatOnSameConnectionReplays(t *testing.T) {
	h := newHarness(t)
	jw := h.join("cw", "r1", "")
	h.send("cw", protocol.TypeJoin, protocol.JoinPayload{RoomID: "r1"})
	m, ok := h.out.last("cw", protocol.TypeRejoined)
	if !ok || m.Payload.(protocol.Joined).PlayerID != jw.PlayerID {
		t.Fatalf("replay: %+v", m)
	}
	if st := h.e.reg.Stats(); st.Rooms != 1 || st.Connections != 1 {
		t.Fatalf("stats %+v", st)
	}
}

func TestJoin_UnknownPlayerIDGetsFreshSeat(t *testing.T) {
	h := newHarness(t)
	h.join("cw", "r1", "")
	jb := h.join("cb", "r1", "stale-id")
	if jb.PlayerID == "stale-id" || jb.Color != "black" {
		t.Fatalf("stale id honoured: %+v", jb)
	}
}

func TestSelectSecretQueen(t *testing.T) {
	h := newHarness(t)
	white, black, s := h.seatBoth()

	h.send("cw", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "e4"})
	if code := h.lastError("cw"); code != "invalidSelection" {
		t.Fatalf("empty square: %s", code)
	}
	h.send("cw", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "e7"})
	if code := h.lastError("cw"); code != "invalidSelection" {
		t.Fatalf("opponent pawn: %s", code)
	}
	h.send("cw", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "b1"})
	if code := h.lastError("cw"); code != "invalidSelection" {
		t.Fatalf("knight: %s", code)
	}
	h.send("cw", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "k2"})
	if code := h.lastError("cw"); code != "invalidSquare" {
		t.Fatalf("off board: %s", code)
	}
	if white.HasSecret() {
		t.Fatalf("rejected selection stored %q", white.SecretInitial)
	}

	h.send("cw", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "D2"})
	m, ok := h.out.last("cw", protocol.TypeSecretQueenConfirmed)
	if !ok || m.Payload.(protocol.SecretQueenConfirmed).Square != "d2" {
		t.Fatalf("confirm: %+v", m)
	}
	if h.out.count("cb", protocol.TypeSecretQueenConfirmed) != 0 {
		t.Fatalf("opponent saw the confirmation")
	}
	h.send("cw", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "e2"})
	if code := h.lastError("cw"); code != "alreadySelected" {
		t.Fatalf("reselect: %s", code)
	}
	if white.SecretInitial != "d2" || s.phase != SecretQueenSelection {
		t.Fatalf("after reselect: %s %s", white.SecretInitial, s.phase)
	}
	if code := h.mustReject("cw", "e2", "e4"); code != "wrongPhase" {
		t.Fatalf("move before selection done: %s", code)
	}

	h.send("cb", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "f7"})
	if s.phase != Playing || black.SecretCurrent != "f7" {
		t.Fatalf("phase %s black %q", s.phase, black.SecretCurrent)
	}
	for _, conn := range []string{"cw", "cb"} {
		m, ok := h.out.last(conn, protocol.TypeAllSelected)
		if !ok || m.Payload.(protocol.AllSelected).Phase != string(Playing) {
			t.Fatalf("%s allSelected: %+v", conn, m)
		}
	}
	h.send("cb", protocol.TypeSelectSecretQueen, protocol.SelectSecretQueenPayload{Square: "g7"})
	if code := h.lastError("cb"); code != "wrongPhase" {
		t.Fatalf("select while playing: %s", code)
	}
}

func TestDisconnect_ReconnectWithinGrace(t *testing.T) {
	h := newHarness(t)
	white, black, s := h.playing("d2", "e7")
	h.mustApply("cw", "e2", "e4")
	h.mustApply("cb", "e7", "e5")

	h.e.Disconnect("cb")
	if black.Connected || h.sched.pending() != 1 || h.sched.timers[0].d != 2*time.Minute {
		t.Fatalf("grace not armed: connected=%v pending=%d", black.Connected, h.sched.pending())
	}
	m, ok := h.out.last("cw", protocol.TypeOpponentDisconnected)
	if !ok {
		t.Fatalf("white not told")
	}
	n := m.Payload.(protocol.Notice)
	if n.GraceSeconds != 120 || n.GraceDeadline != h.now.Add(2*time.Minute).UnixMilli() {
		t.Fatalf("notice %+v", n)
	}

	// moves keep working while the opponent is away, nothing is sent to it
	h.out.reset()
	h.mustApply("cw", "d2", "d3")
	if len(h.out.to("cb")) != 0 {
		t.Fatalf("frames sent to a dropped connection")
	}
	if code := h.mustReject("cw", "g1", "f3"); code != "notYourTurn" {
		t.Fatalf("white moved twice: %s", code)
	}

	h.now = h.now.Add(time.Minute)
	jb := h.join("cb2", "r1", black.ID)
	if jb.PlayerID != black.ID || jb.Color != "black" || jb.You.SecretQueenInitialSquare != "e7" || jb.Phase != string(Playing) {
		t.Fatalf("rejoined: %+v", jb)
	}
	if jb.Players["white"].SecretQueenInitialSquare != "" {
		t.Fatalf("rejoin leaked white's secret")
	}
	if !black.Connected || !black.GraceDeadline.IsZero() || h.sched.pending() != 0 {
		t.Fatalf("grace not cleared: %+v pending=%d", black, h.sched.pending())
	}
	if _, ok := h.out.last("cw", protocol.TypeOpponentReconnected); !ok {
		t.Fatalf("white not told of reconnect")
	}
	if white.Color != White || s.phase != Playing {
		t.Fatalf("state drifted")
	}
	h.mustApply("cb2", "b8", "c6")

	// a stale expiry that raced with the reconnect is ignored
	h.sched.timers[0].fn()
	if _, ok := h.e.reg.Room("r1"); !ok || s.phase != Playing {
		t.Fatalf("stale timer acted")
	}
}

func TestDisconnect_GraceExpiryAwardsRemainingPlayer(t *testing.T) {
	for _, tc := range []struct {
		name    string
		playing bool
	}{{"selection", false}, {"playing", true}} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			if tc.playing {
				h.playing("d2", "e7")
			} else {
				h.seatBoth()
			}
			h.e.Disconnect("cb")
			h.sched.fireAll()

			m, ok := h.out.last("cw", protocol.TypeMatchConcluded)
			if !ok {
				t.Fatalf("no matchConcluded")
			}
			o := m.Payload.(protocol.MatchConcluded).Outcome
			if o.Winner == nil || *o.Winner != "white" || o.Reason != ReasonAbandonment {
				t.Fatalf("outcome %+v", o)
			}
			if _, ok := h.out.last("cw", protocol.TypeRoomClosed); !ok {
				t.Fatalf("no roomClosed")
			}
			if _, ok := h.e.reg.Room("r1"); ok {
				t.Fatalf("room survived")
			}
			if st := h.e.reg.Stats(); st.Rooms != 0 || st.Connections != 0 {
				t.Fatalf("stats %+v", st)
			}
			if len(h.rec.recs) != 1 || h.rec.recs[0].Reason != ReasonAbandonment {
				t.Fatalf("archive %+v", h.rec.recs)
			}

			// the remaining connection may start over
			j := h.join("cw", "r1", "")
			if j.Phase != string(AwaitingOpponent) {
				t.Fatalf("fresh room: %+v", j)
			}
		})
	}
}

func TestDisconnect_ExpiryAfterConclusionOnlyCloses(t *testing.T) {
	h := newHarness(t)
	h.playing("d2", "e7")
	h.send("cb", protocol.TypeResign, nil)
	h.e.Disconnect("cb")
	h.sched.fireAll()

	if n := h.out.count("cw", protocol.TypeMatchConcluded); n != 1 {
		t.Fatalf("concluded %d times", n)
	}
	if len(h.rec.recs) != 1 || h.rec.recs[0].Reason != ReasonResignation {
		t.Fatalf("archive %+v", h.rec.recs)
	}
	if _, ok := h.out.last("cw", protocol.TypeRoomClosed); !ok {
		t.Fatalf("no roomClosed")
	}
}

func TestDisconnect_AllGoneTearsDown(t *testing.T) {
	h := newHarness(t)
	white, _, _ := h.playing("d2", "e7")
	h.e.Disconnect("cw")
	h.e.Disconnect("cb")

	if _, ok := h.e.reg.Room("r1"); ok {
		t.Fatalf("room survived")
	}
	if h.sched.pending() != 0 {
		t.Fatalf("%d timers left armed", h.sched.pending())
	}
	if len(h.rec.recs) != 0 {
		t.Fatalf("abandoned match archived: %+v", h.rec.recs)
	}

	j := h.join("cx", "r1", white.ID)
	if j.PlayerID == white.ID || j.Color != "white" || j.Phase != string(AwaitingOpponent) {
		t.Fatalf("expected fresh session, got %+v", j)
	}
}

func TestDisconnect_LoneCreatorTearsDown(t *testing.T) {
	h := newHarness(t)
	h.join("cw", "r1", "")
	h.e.Disconnect("cw")
	if _, ok := h.e.reg.Room("r1"); ok {
		t.Fatalf("room survived")
	}
	h.e.Disconnect("cw")
	h.e.Disconnect("never-seen")
}

func TestJoin_TakeoverReplacesOldConnection(t *testing.T) {
	h := newHarness(t)
	white, _, _ := h.playing("d2", "e7")

	j := h.join("cw2", "r1", white.ID)
	if j.PlayerID != white.ID || j.You.SecretQueenInitialSquare != "d2" {
		t.Fatalf("takeover: %+v", j)
	}
	if _, ok := h.out.last("cw", protocol.TypeSessionReplaced); !ok {
		t.Fatalf("old connection not told")
	}
	if len(h.out.closed) != 1 || h.out.closed[0] != "cw" {
		t.Fatalf("closed %v", h.out.closed)
	}
	if h.out.count("cb", protocol.TypeOpponentReconnected) != 0 {
		t.Fatalf("opponent saw a reconnect")
	}

	// the superseded socket going away is not a disconnect
	h.e.Disconnect("cw")
	if !white.Connected || h.sched.pending() != 0 || h.out.count("cb", protocol.TypeOpponentDisconnected) != 0 {
		t.Fatalf("stale disconnect acted: connected=%v", white.Connected)
	}
	h.mustApply("cw2", "e2", "e4")
	h.send("cw", protocol.TypeResign, nil)
	if code := h.lastError("cw"); code != "notSeated" {
		t.Fatalf("old connection still seated: %s", code)
	}
}

func TestResign(t *testing.T) {
	h := newHarness(t)
	h.seatBoth()
	h.send("cw", protocol.TypeResign, nil)
	if code := h.lastError("cw"); code != "wrongPhase" {
		t.Fatalf("resign in selection: %s", code)
	}

	h = newHarness(t)
	_, _, s := h.playing("d2", "e7")
	h.mustApply("cw", "e2", "e4")
	h.send("cw", protocol.TypeResign, nil)
	if s.outcome == nil || s.outcome.Winner == nil || *s.outcome.Winner != Black || s.outcome.Reason != ReasonResignation {
		t.Fatalf("outcome %+v", s.outcome)
	}
	rec := h.rec.recs[0]
	if rec.Winner != "black" || len(rec.MovesSAN) != 1 || rec.MovesUCI[0] != "e2e4" || rec.BlackSecret != "e7" || rec.StartedAt != h.now {
		t.Fatalf("record %+v", rec)
	}
}
