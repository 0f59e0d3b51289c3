package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// AlertStream forwards ingest alerts to a websocket client until either side
// goes away.
func (h *Handler) AlertStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer ws.Close()

	ctx := r.Context()
	feed, err := h.alerts.SubscribeAlerts(ctx)
	if err != nil {
		h.log.WithError(err).Error("alert subscription failed")
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "alert feed unavailable"))
		return
	}

	// The client never sends anything useful; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.WithError(err).Debug("websocket closed")
				}
				return
			}
		}
	}()

	h.log.Debug("alert stream client connected")
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-feed:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.WithError(err).Debug("alert stream write failed")
				return
			}
		}
	}
}
