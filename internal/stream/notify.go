package stream

import (
	"context"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/wal"
)

const (
	DefaultNotifyChannel = "dashboard_changes"

	listenerMinReconnect = 1 * time.Second
	listenerMaxReconnect = 30 * time.Second
	listenerPingInterval = 90 * time.Second
)

// NotifySource consumes the NOTIFY payloads emitted by the change triggers.
// lib/pq reconnects on its own; its listener events drive hub status.
type NotifySource struct {
	DSN     string
	Channel string

	Hub      *Hub
	Consumer *wal.Consumer
	Log      *zap.Logger
}

func (n *NotifySource) Run(ctx context.Context) error {
	if n.Channel == "" {
		n.Channel = DefaultNotifyChannel
	}
	if n.Log == nil {
		n.Log = zap.L()
	}
	if n.Consumer == nil {
		n.Consumer = &wal.Consumer{Sink: n.Hub, Log: n.Log}
	}

	n.Hub.SetStatus(StatusConnecting, nil)
	listener := pq.NewListener(n.DSN, listenerMinReconnect, listenerMaxReconnect, n.onEvent)
	defer listener.Close()

	if err := listener.Listen(n.Channel); err != nil {
		n.Hub.SetStatus(StatusError, err)
		return err
	}
	n.Log.Info("listening for changes", zap.String("channel", n.Channel))
	n.Hub.SetStatus(StatusOpen, nil)

	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			n.Hub.SetStatus(StatusClosed, nil)
			return nil
		case note := <-listener.Notify:
			if note == nil {
				// Sent after a reconnect; anything committed while down is lost.
				n.Log.Warn("listener reconnected, notifications may have been missed")
				continue
			}
			n.Consumer.OnNotify(note.Extra)
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					n.Log.Warn("listener ping", zap.Error(err))
				}
			}()
		}
	}
}

func (n *NotifySource) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventReconnected:
		// Listen re-issues LISTEN before this event fires. The first
		// connection is reported open once Listen returns.
		n.Hub.SetStatus(StatusOpen, nil)
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		n.Hub.SetStatus(StatusError, err)
	}
}
