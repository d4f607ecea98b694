package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"
	"kiln_controller/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 1 << 12
	defaultInterval = time.Second
	minInterval     = 10 * time.Millisecond
	maxInterval     = 10 * time.Second
	// an unchanged snapshot is still resent this often
	keepAliveEvery = 30
)

type wsEnvelope struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statusStream pushes oven snapshots to one websocket client.
type statusStream struct {
	conn    *websocket.Conn
	source  service.Monitoring
	log     *logger.Logger
	last    models.OvenStatus
	sent    bool
	skipped int
}

// @Summary      Oven status stream
// @Description  websocket; sends {"type":"backlog","data":Backlog} once, then pushes {"type":"state","data":OvenStatus} when the snapshot changes
// @Tags         oven
// @Param        interval     query  string  false  "poll interval, e.g. 500ms"
// @Param        interval_ms  query  int     false  "poll interval in milliseconds"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	interval := parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorw("ws_upgrade_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	s := &statusStream{conn: conn, source: h.services.Monitoring, log: h.log}
	h.log.Debugw("ws_client_connected", "remote", c.Request.RemoteAddr, "interval", interval.String())
	s.run(c.Request.Context(), interval)
}

func (s *statusStream) run(ctx context.Context, interval time.Duration) {
	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.drain(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.backlog(ctx); err != nil {
		s.log.Infow("ws_write_failed", "err", err)
		return
	}
	if err := s.push(ctx); err != nil {
		s.log.Infow("ws_write_failed", "err", err)
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := s.push(ctx); err != nil {
				s.log.Infow("ws_write_failed", "err", err)
				return
			}
		}
	}
}

// backlog sends the active run's history. A failed read only skips it.
func (s *statusStream) backlog(ctx context.Context) error {
	b, err := s.source.Backlog(ctx)
	if err != nil {
		s.log.Warnw("ws_backlog_failed", "err", err)
		return nil
	}
	return s.write(wsEnvelope{Type: "backlog", Data: b})
}

// push sends the current snapshot unless it equals the last one sent.
// A failed read is reported to the client and does not close the stream.
func (s *statusStream) push(ctx context.Context) error {
	st, err := s.source.GetState(ctx)
	if err != nil {
		s.log.Errorw("ws_get_state_failed", "err", err)
		return s.write(wsEnvelope{Type: "error", Error: "failed to read oven status"})
	}
	if s.sent && st == s.last && s.skipped < keepAliveEvery {
		s.skipped++
		return nil
	}
	if err := s.write(wsEnvelope{Type: "state", Data: st}); err != nil {
		return err
	}
	s.last, s.sent, s.skipped = st, true, 0
	return nil
}

func (s *statusStream) write(msg wsEnvelope) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// drain reads until the client goes away so control frames get processed.
func (s *statusStream) drain(done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}

// parseInterval reads ?interval=500ms or ?interval_ms=500. Out of range
// or unparsable values fall back to the default.
func parseInterval(c *gin.Context) time.Duration {
	if s := c.Query("interval"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	if ms := c.Query("interval_ms"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			d := time.Duration(v) * time.Millisecond
			if d >= minInterval && d <= maxInterval {
				return d
			}
		}
	}
	return defaultInterval
}
