package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/baharkarakas/ledger-backend/internal/logger"
	"github.com/baharkarakas/ledger-backend/internal/middleware"
	"github.com/baharkarakas/ledger-backend/internal/notify"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

type Subscriber interface {
	Subscribe(userID string) (<-chan notify.Event, func())
}

type NotificationsHandler struct {
	Hub      Subscriber
	upgrader websocket.Upgrader
}

func NewNotificationsHandler(hub Subscriber) *NotificationsHandler {
	return &NotificationsHandler{
		Hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Stream upgrades to a websocket and pushes the caller's events until either
// side goes away. Nothing is replayed on reconnect.
func (h *NotificationsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	log := logger.From(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Hub.Subscribe(uid)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
