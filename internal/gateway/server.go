// Package gateway carries game frames between browsers and the session
// loop over WebSocket, and serves the small HTTP surface around it.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/secret-queen-chess/internal/archive"
	"github.com/park285/secret-queen-chess/internal/session"
)

const (
	readLimit       = 16 << 10
	qrSize          = 320
	maxPingFailures = 2
)

// Dispatcher receives transport events; *session.Loop implements it.
type Dispatcher interface {
	Message(connID string, raw []byte)
	Disconnected(connID string)
	Stats(ctx context.Context) (session.Stats, error)
}

// ConnMetrics counts open sockets.
type ConnMetrics interface {
	ConnOpened()
	ConnClosed()
}

// RecentSource lists recent concluded matches for a room.
type RecentSource interface {
	Recent(ctx context.Context, roomID string) ([]archive.Record, error)
}

type Config struct {
	AllowedOrigins []string
	PublicBaseURL  string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendQueue      int
}

type Server struct {
	cfg     Config
	disp    Dispatcher
	hub     *Hub
	conns   ConnMetrics
	metrics http.Handler
	recent  RecentSource
	log     *zap.Logger
	router  *httprouter.Router
}

type Option func(*Server)

// WithMetrics serves h on /metrics and reports socket counts to m.
func WithMetrics(m ConnMetrics, h http.Handler) Option {
	return func(s *Server) { s.conns, s.metrics = m, h }
}

func WithRecent(src RecentSource) Option { return func(s *Server) { s.recent = src } }

func NewServer(cfg Config, disp Dispatcher, log *zap.Logger, opts ...Option) *Server {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	s := &Server{
		cfg:  cfg,
		disp: disp,
		hub:  NewHub(cfg.SendQueue, cfg.WriteTimeout, log),
		log:  log,
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

// Hub is the session outbox backed by this server's sockets.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() *httprouter.Router {
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.log.Error("http_panic", zap.String("path", r.URL.Path), zap.Any("panic", v), zap.Stack("stack"))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	mux.GET("/ws", s.serveWS)
	mux.GET("/healthz", s.serveHealth)
	mux.GET("/rooms/:roomId/invite.png", s.serveInvite)
	mux.GET("/rooms/:roomId/recent", s.serveRecent)
	if s.metrics != nil {
		mux.Handler(http.MethodGet, "/metrics", s.metrics)
	}
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.cfg.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.log.Debug("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	ws.SetReadLimit(readLimit)

	id := uuid.NewString()
	c := s.hub.add(id, ws)
	if s.conns != nil {
		s.conns.ConnOpened()
	}
	log := s.log.With(zap.String("conn_id", id))
	log.Debug("conn_open", zap.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		if v := recover(); v != nil {
			log.Error("conn_panic", zap.Any("panic", v), zap.Stack("stack"))
		}
		cancel()
		s.hub.remove(id)
		s.disp.Disconnected(id)
		if s.conns != nil {
			s.conns.ConnClosed()
		}
		_ = ws.CloseNow()
		log.Debug("conn_closed")
	}()

	go s.hub.writeLoop(ctx, c)
	go s.pingLoop(ctx, c)

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 {
				log.Debug("read_failed", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.disp.Message(id, data)
	}
}

func (s *Server) pingLoop(ctx context.Context, c *client) {
	t := time.NewTicker(s.cfg.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.ws.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= maxPingFailures {
				s.log.Debug("ping_timeout", zap.String("conn_id", c.id), zap.Error(err))
				c.shutdown(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

type healthBody struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Sockets     int    `json:"sockets"`
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := s.disp.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthBody{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthBody{Status: "ok", Rooms: st.Rooms, Connections: st.Connections, Sockets: s.hub.Len()})
}

// inviteURL is the client URL that drops a visitor into roomID.
func (s *Server) inviteURL(r *http.Request, roomID string) string {
	base := s.cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/?room=" + url.QueryEscape(roomID)
}

func (s *Server) serveInvite(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := strings.TrimSpace(ps.ByName("roomId"))
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	png, err := qrcode.Encode(s.inviteURL(r, roomID), qrcode.Medium, qrSize)
	if err != nil {
		s.log.Warn("qr_encode_failed", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(png)
}

func (s *Server) serveRecent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.recent == nil {
		http.NotFound(w, r)
		return
	}
	roomID := strings.TrimSpace(ps.ByName("roomId"))
	recs, err := s.recent.Recent(r.Context(), roomID)
	if err != nil {
		s.log.Warn("recent_failed", zap.String("room_id", roomID), zap.Error(err))
		http.Error(w, "recent results unavailable", http.StatusBadGateway)
		return
	}
	if recs == nil {
		recs = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
