package session

import "strings"

type JoinKind int

const (
	JoinCreated   JoinKind = iota // new room, caller seated as white
	JoinSeated                    // second seat taken, match starts
	JoinReturning                 // known player id came back
)

func (k JoinKind) String() string {
	switch k {
	case JoinCreated:
		return "create"
	case JoinSeated:
		return "seat"
	default:
		return "return"
	}
}

type JoinResult struct {
	Session *Session
	Player  *PlayerState
	Kind    JoinKind
	// Replaced is the previous connection of a returning player that was
	// still bound. It has already been unbound.
	Replaced string
}

type binding struct {
	roomID   string
	playerID string
}

// Registry owns every live room and the connection -> seat index. It is
// not safe for concurrent use; the event loop is its only caller.
type Registry struct {
	rooms map[string]*Session
	conns map[string]binding
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Session), conns: make(map[string]binding)}
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

func (r *Registry) Stats() Stats { return Stats{Rooms: len(r.rooms), Connections: len(r.conns)} }

func (r *Registry) Room(roomID string) (*Session, bool) {
	s, ok := r.rooms[roomID]
	return s, ok
}

// Lookup resolves a connection to its room and seat.
func (r *Registry) Lookup(connID string) (*Session, *PlayerState, bool) {
	b, ok := r.conns[connID]
	if !ok {
		return nil, nil, false
	}
	s, ok := r.rooms[b.roomID]
	if !ok {
		return nil, nil, false
	}
	p, ok := s.players[b.playerID]
	return s, p, ok
}

func (r *Registry) bind(connID, roomID, playerID string) {
	r.conns[connID] = binding{roomID: roomID, playerID: playerID}
}

func (r *Registry) unbind(connID string) { delete(r.conns, connID) }

// remove drops the room and every connection bound to it.
func (r *Registry) remove(roomID string) {
	s, ok := r.rooms[roomID]
	if !ok {
		return
	}
	for _, p := range s.players {
		if p.ConnID != "" {
			if b, ok := r.conns[p.ConnID]; ok && b.roomID == roomID {
				delete(r.conns, p.ConnID)
			}
		}
	}
	delete(r.rooms, roomID)
}

// JoinOrCreate seats connID in roomID. playerID is the caller's previous
// identity, if any; it is ignored when the room does not exist.
func (r *Registry) JoinOrCreate(roomID, connID, playerID string, newID func() string) (JoinResult, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return JoinResult{}, ErrRoomIDRequired
	}
	playerID = strings.TrimSpace(playerID)

	s, ok := r.rooms[roomID]
	if !ok {
		s = newSession(roomID, newID())
		r.rooms[roomID] = s
		p := s.seat(newID(), connID, White)
		r.bind(connID, roomID, p.ID)
		return JoinResult{Session: s, Player: p, Kind: JoinCreated}, nil
	}

	if p, known := s.players[playerID]; known && playerID != "" {
		res := JoinResult{Session: s, Player: p, Kind: JoinReturning}
		if p.ConnID != "" && p.ConnID != connID {
			res.Replaced = p.ConnID
			r.unbind(p.ConnID)
		}
		p.ConnID = connID
		r.bind(connID, roomID, p.ID)
		return res, nil
	}

	if s.full() {
		return JoinResult{}, ErrRoomFull
	}
	color := White
	for _, existing := range s.players {
		color = existing.Color.Opponent()
	}
	p := s.seat(newID(), connID, color)
	s.phase = SecretQueenSelection
	r.bind(connID, roomID, p.ID)
	return JoinResult{Session: s, Player: p, Kind: JoinSeated}, nil
}
