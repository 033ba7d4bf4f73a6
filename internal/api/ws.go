package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/logutil"
	"github.com/zoravur/dashboard-sync/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	peerBuffer     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Start pushes every state change and toast list to connected peers until
// Stop is called.
func (h *Handler) Start() {
	for _, name := range h.Resources() {
		l, ok := h.collection(name)
		if !ok {
			continue
		}
		h.stops = append(h.stops, l.OnChange(func(snapshot any) {
			h.peers.Broadcast(protocol.State(name, snapshot))
		}))
	}
	if h.toasts != nil {
		ch, stop := h.toasts.Watch()
		h.stops = append(h.stops, stop)
		go func() {
			for ts := range ch {
				h.peers.Broadcast(protocol.Toasts(ts))
			}
		}()
	}
}

func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		for _, stop := range h.stops {
			stop()
		}
	})
}

// HandleWS upgrades the connection, sends the current state of every
// resource and then streams updates. Inbound messages are ping and refetch.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	log := logutil.L(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade error", zap.Error(err))
		return
	}

	peer := protocol.NewPeer(uuid.NewString(), peerBuffer)
	log = log.With(zap.String("peer", peer.ID))
	for _, name := range h.Resources() {
		if l, ok := h.collection(name); ok {
			peer.Send(protocol.State(name, l.Snapshot()))
		}
	}
	if h.toasts != nil {
		peer.Send(protocol.Toasts(h.toasts.Visible()))
	}
	h.peers.Add(peer)
	log.Info("ws connected", zap.Int("peers", h.peers.Len()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, peer, log)
	}()

	ctx := logutil.WithLogger(r.Context(), log)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("ws read error", zap.Error(err))
			}
			break
		}
		protocol.HandleMessage(ctx, peer, msg, h)
	}

	h.peers.Remove(peer.ID)
	<-done
	conn.Close()
	log.Info("ws disconnected", zap.Int("peers", h.peers.Len()))
}

func writePump(conn *websocket.Conn, peer *protocol.Peer, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-peer.Out():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Info("ws write error", zap.Error(err))
				// Unblocks the reader so the handler can clean up.
				conn.Close()
				drain(peer)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				drain(peer)
				return
			}
		}
	}
}

// drain discards queued messages until the peer is removed.
func drain(peer *protocol.Peer) {
	for range peer.Out() {
	}
}
