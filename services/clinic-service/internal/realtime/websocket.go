package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/clinicnear/libs/httpx"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ClientMessage is a frame sent by a connected client.
type ClientMessage struct {
	Action   string `json:"action"`
	ClinicID string `json:"clinicId"`
}

// Handler upgrades HTTP requests to websocket connections attached to a Bus.
type Handler struct {
	bus      *Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler only accepts browser origins in allowedOrigins; "*" allows any.
// Requests without an Origin header are accepted.
func NewHandler(bus *Bus, logger *slog.Logger, allowedOrigins []string) *Handler {
	return &Handler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := httpx.OriginAllowed(origin, allowedOrigins, true)
				return ok
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	connID := uuid.NewString()
	sub := h.bus.Attach(connID)
	h.logger.Debug("websocket connected", "conn_id", connID, "request_id", httpx.RequestIDFromContext(r.Context()))

	go h.writePump(ws, sub)
	h.readPump(ws, connID)
}

func (h *Handler) readPump(ws *websocket.Conn, connID string) {
	defer func() {
		h.bus.Detach(connID)
		_ = ws.Close()
		h.logger.Debug("websocket disconnected", "conn_id", connID)
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.handle(connID, msg)
	}
}

func (h *Handler) handle(connID string, msg ClientMessage) {
	clinicID := strings.TrimSpace(msg.ClinicID)
	if clinicID == "" {
		return
	}
	switch msg.Action {
	case "join", "join:clinic", "subscribe":
		if err := h.bus.Subscribe(connID, clinicID); err != nil {
			return
		}
		h.bus.notify(connID, Event{Name: EventSubscribed, ClinicID: clinicID})
	case "leave", "leave:clinic", "unsubscribe":
		h.bus.Unsubscribe(connID, clinicID)
		h.bus.notify(connID, Event{Name: EventUnsubscribed, ClinicID: clinicID})
	}
}

func (h *Handler) writePump(ws *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.Messages():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
