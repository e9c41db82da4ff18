package session

import (
	"time"

	"github.com/park285/secret-queen-chess/internal/rules"
)

type Color = rules.Color

const (
	White = rules.White
	Black = rules.Black
)

// Phase is the lifecycle stage of a GameSession.
type Phase string

const (
	AwaitingOpponent     Phase = "awaitingOpponent"
	SecretQueenSelection Phase = "secretQueenSelection"
	Playing              Phase = "playing"
	Concluded            Phase = "concluded"
)

// Outcome reasons.
const (
	ReasonCheckmate            = "Checkmate"
	ReasonStalemate            = "Stalemate"
	ReasonThreefold            = "Threefold Repetition"
	ReasonInsufficientMaterial = "Insufficient Material"
	ReasonFiftyMove            = "Fifty-Move Rule"
	ReasonResignation          = "Resignation"
	ReasonDrawAgreement        = "Draw by Agreement"
	ReasonAbandonment          = "Abandonment"
)

// Outcome of a concluded match. Winner is nil for a draw.
type Outcome struct {
	Winner *Color
	Reason string
}

// graceTimer identifies one armed grace period; a firing timer is only
// honoured while it is still the player's current handle.
type graceTimer struct {
	timer Timer
}

// PlayerState is one seat of a session.
type PlayerState struct {
	ID     string
	ConnID string // empty while disconnected
	Color  Color

	SecretInitial string
	SecretCurrent string
	Transformed   bool

	Connected     bool
	GraceDeadline time.Time
	grace         *graceTimer
}

// HasSecret reports whether the player has picked a secret queen.
func (p *PlayerState) HasSecret() bool { return p.SecretInitial != "" }

// hiddenQueen returns the square of a secret queen still disguised as a pawn.
func (p *PlayerState) hiddenQueen() (string, bool) {
	if p.Transformed || p.SecretCurrent == "" {
		return "", false
	}
	return p.SecretCurrent, true
}

func (p *PlayerState) stopGrace() {
	if p.grace != nil {
		p.grace.timer.Stop()
		p.grace = nil
	}
}

// Session is one room. It is owned by the event loop and never shared.
type Session struct {
	RoomID  string
	MatchID string

	board   *rules.Board
	players map[string]*PlayerState
	order   []string

	phase         Phase
	drawOffer     string
	rematchOffers map[string]bool
	outcome       *Outcome

	startedAt time.Time
	movesUCI  []string
	movesSAN  []string
	positions map[string]int // analysis position key -> occurrences
}

func newSession(roomID, matchID string) *Session {
	return &Session{
		RoomID:        roomID,
		MatchID:       matchID,
		board:         rules.NewBoard(),
		players:       make(map[string]*PlayerState, 2),
		phase:         AwaitingOpponent,
		rematchOffers: make(map[string]bool, 2),
		positions:     make(map[string]int),
	}
}

func (s *Session) Phase() Phase { return s.phase }
func (s *Session) FEN() string { return s.board.FEN() }
func (s *Session) Turn() Color { return s.board.Turn() }

// Player returns the seat held by playerID.
func (s *Session) Player(playerID string) (*PlayerState, bool) {
	p, ok := s.players[playerID]
	return p, ok
}

// Players returns the seats in join order.
func (s *Session) Players() []*PlayerState {
	out := make([]*PlayerState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.players[id])
	}
	return out
}

// Opponent returns the other seat, if taken.
func (s *Session) Opponent(playerID string) (*PlayerState, bool) {
	for _, id := range s.order {
		if id != playerID {
			return s.players[id], true
		}
	}
	return nil, false
}

func (s *Session) full() bool { return len(s.players) >= 2 }

func (s *Session) seat(playerID, connID string, c Color) *PlayerState {
	p := &PlayerState{ID: playerID, ConnID: connID, Color: c, Connected: true}
	s.players[playerID] = p
	s.order = append(s.order, playerID)
	return p
}

func (s *Session) allDisconnected() bool {
	for _, p := range s.players {
		if p.Connected {
			return false
		}
	}
	return true
}

// inMatch reports whether a match has started and not yet concluded.
func (s *Session) inMatch() bool {
	return s.phase == SecretQueenSelection || s.phase == Playing
}

// resetMatch prepares a fresh match with swapped colors.
func (s *Session) resetMatch(matchID string) {
	for _, p := range s.players {
		p.Color = p.Color.Opponent()
		p.SecretInitial = ""
		p.SecretCurrent = ""
		p.Transformed = false
	}
	s.MatchID = matchID
	s.board = rules.NewBoard()
	s.phase = SecretQueenSelection
	s.drawOffer = ""
	s.rematchOffers = make(map[string]bool, 2)
	s.outcome = nil
	s.movesUCI = nil
	s.movesSAN = nil
	s.positions = make(map[string]int)
}
