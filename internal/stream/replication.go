package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/wal"
)

const (
	DefaultSlot   = "dashboard_slot"
	DefaultPlugin = "wal2json"

	standbyMessageTimeout = 10 * time.Second
	duplicateObject       = "42710"
)

// ReplicationSource reads wal2json logical replication and publishes every
// decoded change. Connection errors are reported on the hub and the reader
// reconnects after ReconnectDelay.
type ReplicationSource struct {
	DSN            string
	Slot           string
	Plugin         string
	ReconnectDelay time.Duration

	Hub      *Hub
	Consumer *wal.Consumer
	Log      *zap.Logger
}

func (r *ReplicationSource) Run(ctx context.Context) error {
	if r.Slot == "" {
		r.Slot = DefaultSlot
	}
	if r.Plugin == "" {
		r.Plugin = DefaultPlugin
	}
	if r.ReconnectDelay <= 0 {
		r.ReconnectDelay = DefaultReconnectDelay
	}
	if r.Log == nil {
		r.Log = zap.L()
	}
	if r.Consumer == nil {
		r.Consumer = &wal.Consumer{Sink: r.Hub, Log: r.Log}
	}

	for {
		r.Hub.SetStatus(StatusConnecting, nil)
		err := r.connectAndRead(ctx)
		if ctx.Err() != nil {
			r.Hub.SetStatus(StatusClosed, nil)
			return nil
		}
		r.Hub.SetStatus(StatusError, err)
		r.Log.Warn("replication connection error, reconnecting",
			zap.Error(err),
			zap.Duration("delay", r.ReconnectDelay),
		)
		if !sleepCtx(ctx, r.ReconnectDelay) {
			r.Hub.SetStatus(StatusClosed, nil)
			return nil
		}
	}
}

func (r *ReplicationSource) connectAndRead(ctx context.Context) error {
	dsn, err := replicationDSN(r.DSN)
	if err != nil {
		return err
	}
	conn, err := pgconn.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	sys, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		return fmt.Errorf("identify system: %w", err)
	}
	r.Log.Info("replication system identified",
		zap.String("system_id", sys.SystemID),
		zap.Int32("timeline", sys.Timeline),
		zap.Stringer("xlogpos", sys.XLogPos),
		zap.String("dbname", sys.DBName),
	)

	if err := r.ensureSlot(ctx, conn); err != nil {
		return err
	}

	err = pglogrepl.StartReplication(ctx, conn, r.Slot, sys.XLogPos,
		pglogrepl.StartReplicationOptions{PluginArgs: []string{`"format-version" '1'`}})
	if err != nil {
		return fmt.Errorf("start replication: %w", err)
	}
	r.Log.Info("logical replication started", zap.String("slot", r.Slot))
	r.Hub.SetStatus(StatusOpen, nil)

	lastLSN := sys.XLogPos
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)

	for {
		if time.Now().After(nextStandbyMessageDeadline) {
			err = pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{WALWritePosition: lastLSN})
			if err != nil {
				return fmt.Errorf("standby status update: %w", err)
			}
			r.Log.Debug("sent standby status", zap.Stringer("lsn", lastLSN))
			nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
		}

		recvCtx, cancel := context.WithDeadline(ctx, nextStandbyMessageDeadline)
		rawMsg, err := conn.ReceiveMessage(recvCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}

		if errMsg, ok := rawMsg.(*pgproto3.ErrorResponse); ok {
			return fmt.Errorf("postgres wal error: %s", errMsg.Message)
		}

		msg, ok := rawMsg.(*pgproto3.CopyData)
		if !ok {
			r.Log.Debug("unexpected replication message", zap.String("type", fmt.Sprintf("%T", rawMsg)))
			continue
		}

		switch msg.Data[0] {
		case pglogrepl.PrimaryKeepaliveMessageByteID:
			pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
			if err != nil {
				r.Log.Warn("parse keepalive", zap.Error(err))
				continue
			}
			if pkm.ReplyRequested {
				nextStandbyMessageDeadline = time.Time{}
			}

		case pglogrepl.XLogDataByteID:
			xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
			if err != nil {
				r.Log.Warn("parse xlogdata", zap.Error(err))
				continue
			}
			r.Consumer.OnMessage(xld.WALData)
			if end := xld.WALStart + pglogrepl.LSN(len(xld.WALData)); end > lastLSN {
				lastLSN = end
			}
		}
	}
}

func (r *ReplicationSource) ensureSlot(ctx context.Context, conn *pgconn.PgConn) error {
	_, err := pglogrepl.CreateReplicationSlot(ctx, conn, r.Slot, r.Plugin,
		pglogrepl.CreateReplicationSlotOptions{})
	if err == nil {
		r.Log.Info("replication slot created", zap.String("slot", r.Slot), zap.String("plugin", r.Plugin))
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == duplicateObject {
		return nil
	}
	return fmt.Errorf("create slot %s: %w", r.Slot, err)
}
