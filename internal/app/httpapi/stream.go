package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kassandra-hq/kassandra/internal/app/services/activitylog"
	"github.com/kassandra-hq/kassandra/internal/metrics"
	"github.com/kassandra-hq/kassandra/internal/middleware"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StreamHub serves the live activity feed over websockets. Each connection
// subscribes to the activity service and receives only events of products the
// connected user can access, filtered per event so a grant or revoke takes
// effect mid-connection.
type StreamHub struct {
	activity *activitylog.Service
	metrics  *metrics.Metrics
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewStreamHub creates the hub.
func NewStreamHub(activitySvc *activitylog.Service, m *metrics.Metrics, log *logger.Logger) *StreamHub {
	if log == nil {
		log = logger.NewDefault("stream")
	}
	return &StreamHub{
		activity: activitySvc,
		metrics:  m,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the CORS middleware in front of the API.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and streams activity events until the client
// disconnects.
func (h *StreamHub) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade")
		return
	}

	events, cancel := h.activity.Subscribe(32)
	defer cancel()
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.StreamConnected(1)
		defer h.metrics.StreamConnected(-1)
	}
	h.log.WithField("user_id", userID).Debug("activity stream opened")

	// Drain client frames so pong handling and close detection work.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e := <-events:
			if !h.activity.Visible(r.Context(), userID, e) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				h.log.WithError(err).Debug("activity stream write")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
