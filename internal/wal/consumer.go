package wal

import (
	"errors"

	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/logutil"
)

// Publisher receives decoded row changes in commit order.
type Publisher interface {
	Publish(RowChange)
}

// Invalidator is implemented by sinks that can tell their subscribers a
// change on table was lost.
type Invalidator interface {
	Invalidate(schema, table string)
}

// Consumer turns raw transport messages into RowChanges for a Publisher.
// Undecodable messages are logged and dropped.
type Consumer struct {
	Sink Publisher
	Log  *zap.Logger
}

func (c *Consumer) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.L()
}

// OnMessage handles one wal2json message (one transaction).
func (c *Consumer) OnMessage(line []byte) {
	log := c.logger()
	log.Debug("wal message", zap.ByteString("raw", line))

	changes, err := DecodeEnvelope(line)
	if err != nil {
		log.Warn("wal decode error", zap.Error(err), zap.Int("decoded", len(changes)))
	}
	if len(changes) == 0 {
		log.Debug("wal message without changes")
		return
	}

	for idx, ch := range changes {
		log.Debug("wal change",
			zap.Int("index", idx),
			logutil.Values(
				zap.String("table", ch.Qualified()),
				zap.Stringer("kind", ch.Kind),
			),
		)
		c.Sink.Publish(ch)
	}
}

// OnNotify handles one LISTEN/NOTIFY payload.
func (c *Consumer) OnNotify(payload string) {
	ch, err := DecodeNotify([]byte(payload))
	switch {
	case errors.Is(err, ErrTruncated):
		c.logger().Warn("change too large for notify, invalidating", zap.String("table", ch.Qualified()))
		if inv, ok := c.Sink.(Invalidator); ok {
			inv.Invalidate(ch.Schema, ch.Table)
		}
		return
	case err != nil:
		c.logger().Warn("notify decode error", zap.Error(err), zap.String("payload", payload))
		return
	}
	c.Sink.Publish(ch)
}
