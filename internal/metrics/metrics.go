// Package metrics exposes prometheus collectors for rooms, moves,
// connections and the archive.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collectors struct {
	reg *prometheus.Registry

	RoomsActive   prometheus.Gauge
	RoomsClosed   *prometheus.CounterVec
	Joins         *prometheus.CounterVec
	Moves         *prometheus.CounterVec
	MovesRejected *prometheus.CounterVec
	Matches       *prometheus.CounterVec
	Connections   prometheus.Gauge
	ArchiveSaves  *prometheus.CounterVec
}

// New builds the collectors on a private registry, including the Go and
// process collectors.
func New() *Collectors {
	c := &Collectors{
		reg: prometheus.NewRegistry(),

		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secretqueen_rooms_active",
			Help: "Rooms currently held in memory",
		}),
		RoomsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secretqueen_rooms_closed_total",
			Help: "Rooms torn down, by cause",
		}, []string{"cause"}),
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secretqueen_joins_total",
			Help: "Successful joins, by kind (create, seat, reconnect, takeover)",
		}, []string{"kind"}),
		Moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secretqueen_moves_total",
			Help: "Applied moves, by kind (ordinary, hidden, reveal)",
		}, []string{"kind"}),
		MovesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secretqueen_moves_rejected_total",
			Help: "Rejected moves, by code",
		}, []string{"code"}),
		Matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secretqueen_matches_concluded_total",
			Help: "Concluded matches, by reason",
		}, []string{"reason"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "secretqueen_connections_open",
			Help: "Open websocket connections",
		}),
		ArchiveSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "secretqueen_archive_saves_total",
			Help: "Archive sink calls, by sink and result",
		}, []string{"sink", "result"}),
	}
	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.RoomsActive, c.RoomsClosed, c.Joins, c.Moves, c.MovesRejected,
		c.Matches, c.Connections, c.ArchiveSaves,
	)
	return c
}

// Handler serves the registry in the prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collectors) Registry() *prometheus.Registry { return c.reg }

func (c *Collectors) RoomOpened() { c.RoomsActive.Inc() }

func (c *Collectors) RoomClosed(cause string) {
	c.RoomsActive.Dec()
	c.RoomsClosed.WithLabelValues(cause).Inc()
}

func (c *Collectors) PlayerJoined(kind string) { c.Joins.WithLabelValues(kind).Inc() }

func (c *Collectors) MoveApplied(kind string) { c.Moves.WithLabelValues(kind).Inc() }

func (c *Collectors) MoveRejected(code string) { c.MovesRejected.WithLabelValues(code).Inc() }

func (c *Collectors) MatchConcluded(reason string) { c.Matches.WithLabelValues(reason).Inc() }

func (c *Collectors) ConnOpened() { c.Connections.Inc() }

func (c *Collectors) ConnClosed() { c.Connections.Dec() }

// ArchiveSaved matches archive.WithSaveHook.
func (c *Collectors) ArchiveSaved(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.ArchiveSaves.WithLabelValues(sink, result).Inc()
}
