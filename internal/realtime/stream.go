package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/salon-booking/internal/clock"
	httpmiddleware "github.com/wolfman30/salon-booking/internal/http/middleware"
	"github.com/wolfman30/salon-booking/internal/identity"
	"github.com/wolfman30/salon-booking/pkg/logging"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// frame is one message on the stream.
type frame struct {
	Appointments []Entry   `json:"appointments"`
	Today        []Entry   `json:"today"`
	Upcoming     []Entry   `json:"upcoming"`
	Past         []Entry   `json:"past"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// StreamHandler serves GET /v1/appointments/stream. The viewer must already be
// on the request context.
type StreamHandler struct {
	feed     Feed
	logger   *logging.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
	ping     time.Duration
}

// NewStreamHandler creates the stream endpoint. An empty origin list accepts
// any origin.
func NewStreamHandler(feed Feed, allowedOrigins []string, logger *logging.Logger) *StreamHandler {
	if feed == nil {
		panic("realtime: feed required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	allowed := httpmiddleware.NewOriginAllowlist(allowedOrigins)
	return &StreamHandler{
		feed:   feed,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed.Empty() || allowed.Allows(origin)
			},
		},
		now:  time.Now,
		ping: pingInterval,
	}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	viewer, ok := identity.ViewerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tz := r.URL.Query().Get("tz")
	if tz == "" {
		tz = viewer.Timezone
	}
	if tz != "" && !clock.ValidLocation(tz) {
		http.Error(w, "unknown timezone", http.StatusBadRequest)
		return
	}
	loc := clock.Location(tz)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime: websocket upgrade failed", "error", err, "viewer_id", viewer.ID)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view, err := OpenView(ctx, h.feed, viewer.ID, loc)
	if err != nil {
		h.logger.Error("realtime: open view failed", "error", err, "viewer_id", viewer.ID)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed unavailable"),
			time.Now().Add(writeWait))
		return
	}
	defer view.Close()

	h.logger.Info("realtime: stream opened", "viewer_id", viewer.ID, "tz", loc.String())
	go h.readPump(conn, cancel)

	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("realtime: stream closed", "viewer_id", viewer.ID)
			return
		case entries, ok := <-view.Updates():
			if !ok {
				return
			}
			now := h.now()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame{
				Appointments: entries,
				Today:        Today(entries, now),
				Upcoming:     Upcoming(entries, now),
				Past:         Past(entries, now),
				GeneratedAt:  now.In(loc),
			}); err != nil {
				h.logger.Warn("realtime: write failed", "error", err, "viewer_id", viewer.ID)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames and ends the stream when the peer goes away.
func (h *StreamHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.logger.Debug("realtime: peer closed", "error", err)
			}
			return
		}
	}
}
