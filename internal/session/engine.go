package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/secret-queen-chess/internal/obslog"
	"github.com/park285/secret-queen-chess/internal/protocol"
)

type Options struct {
	Outbox      Outbox
	Scheduler   Scheduler
	Recorder    Recorder
	Catalog     Catalog
	Metrics     Metrics
	GracePeriod time.Duration
	Now         func() time.Time
	NewID       func() string
	Logger      *zap.Logger
}

// Engine applies client events to sessions. All methods must be called
// from the event loop.
type Engine struct {
	reg   *Registry
	out   Outbox
	sched Scheduler
	rec   Recorder
	cat   Catalog
	met   Metrics
	grace time.Duration
	now   func() time.Time
	newID func() string
	log   *zap.Logger
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		reg:   NewRegistry(),
		out:   opts.Outbox,
		sched: opts.Scheduler,
		rec:   opts.Recorder,
		cat:   opts.Catalog,
		met:   opts.Metrics,
		grace: opts.GracePeriod,
		now:   opts.Now,
		newID: opts.NewID,
		log:   opts.Logger,
	}
	if e.rec == nil {
		e.rec = nopRecorder{}
	}
	if e.met == nil {
		e.met = nopMetrics{}
	}
	if e.grace <= 0 {
		e.grace = 2 * time.Minute
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	if e.log == nil {
		e.log = obslog.Named("session")
	}
	return e
}

func (e *Engine) Registry() *Registry { return e.reg }

// HandleRaw decodes a text frame and routes it.
func (e *Engine) HandleRaw(connID string, raw []byte) {
	in, err := protocol.Decode(raw)
	if err != nil {
		e.log.Debug("frame_malformed", zap.String("conn_id", connID), zap.Error(err))
		e.sendError(connID, ErrBadPayload, nil)
		return
	}
	e.Handle(connID, in)
}

// Handle routes one decoded client frame.
func (e *Engine) Handle(connID string, in protocol.Inbound) {
	if in.Type == protocol.TypeJoin {
		var p protocol.JoinPayload
		if err := in.Bind(&p); err != nil {
			e.sendError(connID, ErrBadPayload, nil)
			return
		}
		if err := e.Join(connID, p); err != nil {
			e.sendError(connID, err, map[string]any{"roomId": p.RoomID})
		}
		return
	}

	s, p, ok := e.reg.Lookup(connID)
	if !ok {
		e.sendError(connID, ErrNotSeated, nil)
		return
	}

	var err error
	switch in.Type {
	case protocol.TypeSelectSecretQueen:
		var sel protocol.SelectSecretQueenPayload
		if err = in.Bind(&sel); err == nil {
			err = e.selectSecretQueen(s, p, sel.Square)
		}
	case protocol.TypeMove:
		var mv protocol.MovePayload
		if err = in.Bind(&mv); err == nil {
			err = e.move(s, p, mv)
		}
	case protocol.TypeResign:
		err = e.resign(s, p)
	case protocol.TypeOfferDraw:
		err = e.offerDraw(s, p)
	case protocol.TypeAcceptDraw:
		err = e.acceptDraw(s, p)
	case protocol.TypeDeclineDraw:
		err = e.declineDraw(s, p)
	case protocol.TypeOfferRematch:
		err = e.offerRematch(s, p)
	default:
		e.sendError(connID, ErrUnknownMessage, map[string]any{"type": in.Type})
		return
	}
	if err == nil {
		return
	}
	if errors.Is(err, protocol.ErrMalformed) {
		err = ErrBadPayload
	}
	if in.Type == protocol.TypeMove {
		e.met.MoveRejected(Code(err))
		e.send(p, protocol.TypeMoveRejected, protocol.MoveRejected{Code: Code(err), Reason: e.errorText(err, nil)})
		return
	}
	e.sendError(connID, err, nil)
}

// ---- outbound helpers ----

func (e *Engine) text(key string, data map[string]any) string {
	if e.cat == nil {
		return key
	}
	s, err := e.cat.Render(key, data)
	if err != nil {
		e.log.Warn("message_render_failed", zap.String("key", key), zap.Error(err))
		return key
	}
	return s
}

func (e *Engine) errorText(err error, data map[string]any) string {
	return e.text(catalogKey(err), data)
}

func (e *Engine) sendError(connID string, err error, data map[string]any) {
	if _, ok := err.(staticErr); !ok {
		e.log.Error("handler_error", zap.String("conn_id", connID), zap.Error(err))
	}
	e.out.Send(connID, protocol.Message{Type: protocol.TypeError, Payload: protocol.Error{
		Code:    Code(err),
		Message: e.errorText(err, data),
	}})
}

// send delivers to p if it is connected.
func (e *Engine) send(p *PlayerState, typ string, payload any) {
	if p == nil || !p.Connected || p.ConnID == "" {
		return
	}
	e.out.Send(p.ConnID, protocol.Message{Type: typ, Payload: payload})
}

func (e *Engine) notice(p *PlayerState, typ, key string) {
	e.send(p, typ, protocol.Notice{Message: e.text(key, nil)})
}

// broadcast sends a personalised payload to every connected seat.
func (e *Engine) broadcast(s *Session, typ string, build func(viewer *PlayerState) any) {
	for _, p := range s.Players() {
		e.send(p, typ, build(p))
	}
}

// playersView renders the seats for viewer. Secret squares are only
// included for the viewer's own seat.
func (e *Engine) playersView(s *Session, viewer *PlayerState) protocol.Players {
	out := make(protocol.Players, len(s.players))
	for _, p := range s.players {
		out[string(p.Color)] = e.playerView(p, viewer)
	}
	return out
}

func (e *Engine) playerView(p, viewer *PlayerState) protocol.PlayerView {
	v := protocol.PlayerView{
		Color:       string(p.Color),
		Connected:   p.Connected,
		Transformed: p.Transformed,
		IsYou:       viewer != nil && p.ID == viewer.ID,
	}
	if !p.Connected && !p.GraceDeadline.IsZero() {
		v.GraceDeadline = p.GraceDeadline.UnixMilli()
	}
	if v.IsYou {
		v.SecretQueenInitialSquare = p.SecretInitial
		v.SecretQueenCurrentSquare = p.SecretCurrent
	}
	return v
}

func outcomeView(o *Outcome) *protocol.Outcome {
	if o == nil {
		return nil
	}
	v := &protocol.Outcome{Reason: o.Reason}
	if o.Winner != nil {
		w := string(*o.Winner)
		v.Winner = &w
	}
	return v
}

// fullView is the state replayed on join and rejoin.
func (e *Engine) fullView(s *Session, p *PlayerState) protocol.Joined {
	v := protocol.Joined{
		RoomID:   s.RoomID,
		PlayerID: p.ID,
		Color:    string(p.Color),
		Board:    s.FEN(),
		Turn:     string(s.Turn()),
		Phase:    string(s.phase),
		Players:  e.playersView(s, p),
		You:      e.playerView(p, p),
		Outcome:  outcomeView(s.outcome),
	}
	if s.drawOffer != "" {
		if offerer, ok := s.players[s.drawOffer]; ok {
			v.DrawOffer = string(offerer.Color)
		}
	}
	if len(s.rematchOffers) > 0 {
		v.RematchOffers = make(map[string]bool, len(s.rematchOffers))
		for id, on := range s.rematchOffers {
			if q, ok := s.players[id]; ok && on {
				v.RematchOffers[string(q.Color)] = true
			}
		}
	}
	return v
}
