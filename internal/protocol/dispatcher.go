package protocol

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zoravur/dashboard-sync/internal/logutil"
)

// Refetcher re-runs the snapshot load of a resource.
type Refetcher interface {
	Refetch(ctx context.Context, resource string) error
}

// HandleMessage answers one inbound message on p.
func HandleMessage(ctx context.Context, p *Peer, raw []byte, h Refetcher) {
	log := logutil.L(ctx)
	msg, err := DecodeMessage(raw)
	if err != nil {
		log.Debug("decode error", zap.Error(err))
		p.Send(Errorf("", "invalid message: "+err.Error()))
		return
	}

	switch strings.ToLower(msg.Type) {
	case TypePing:
		p.Send(Message{Type: TypePong})

	case TypeRefetch:
		if msg.Resource == "" {
			p.Send(Errorf("", "refetch needs a resource"))
			return
		}
		if err := h.Refetch(ctx, msg.Resource); err != nil {
			log.Info("refetch failed", zap.String("resource", msg.Resource), zap.Error(err))
			p.Send(Errorf(msg.Resource, err.Error()))
		}

	default:
		p.Send(Errorf(msg.Resource, fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}
