package protocol

import (
	"sync"

	"go.uber.org/zap"
)

// Peer is one websocket connection's outbound queue. The connection's writer
// drains Out.
type Peer struct {
	ID  string
	out chan Message

	closeOnce sync.Once
}

func NewPeer(id string, buffer int) *Peer {
	if buffer <= 0 {
		buffer = 64
	}
	return &Peer{ID: id, out: make(chan Message, buffer)}
}

func (p *Peer) Out() <-chan Message { return p.out }

// Send queues msg without blocking. It reports false when the queue is full.
func (p *Peer) Send(msg Message) bool {
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

// Registry is the set of connected peers.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	log   *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.L()
	}
	return &Registry{peers: make(map[string]*Peer), log: log}
}

func (r *Registry) Add(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID] = p
}

// Remove drops the peer and closes its queue.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	p, ok := r.peers[id]
	delete(r.peers, id)
	r.mu.Unlock()
	if ok {
		p.closeOnce.Do(func() { close(p.out) })
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Broadcast queues msg for every peer. Peers with a full queue miss it.
func (r *Registry) Broadcast(msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.peers {
		if !p.Send(msg) {
			r.log.Warn("peer queue full, dropping message",
				zap.String("peer", p.ID), zap.String("type", msg.Type), zap.String("resource", msg.Resource))
		}
	}
}
