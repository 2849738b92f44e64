package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// mailbox is a FIFO queue of envelopes addressed to one (rank, tag) pair,
// guarded by a mutex and condition variable in the same style as
// internal/workerpool's task queue.
type mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []Envelope
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) push(e Envelope) {
	m.mu.Lock()
	m.queue = append(m.queue, e)
	m.mu.Unlock()
	m.cond.Broadcast()
}

func (m *mailbox) probe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0
}

func (m *mailbox) recv(ctx context.Context) (Envelope, error) {
	stopWaiting := make(chan struct{})
	defer close(stopWaiting)
	go func() {
		select {
		case <-ctx.Done():
			m.cond.Broadcast()
		case <-stopWaiting:
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 {
		if err := ctx.Err(); err != nil {
			return Envelope{}, err
		}
		m.cond.Wait()
	}

	e := m.queue[0]
	m.queue = m.queue[1:]
	return e, nil
}

// Hub is an in-process switchboard: every rank's Endpoint sends into and
// receives from mailboxes owned by this Hub. It is the channel substitute
// for the distributed-runtime "world" handle: shared state that must be
// created with NewHub before use. It has no shutdown step; a blocked Recv
// is released by cancelling its context.
type Hub struct {
	mu        sync.Mutex
	mailboxes map[int]map[Tag]*mailbox
}

// NewHub constructs an empty switchboard. Endpoints register lazily on
// first use, so ranks need not be declared up front.
func NewHub() *Hub {
	return &Hub{mailboxes: map[int]map[Tag]*mailbox{}}
}

func (h *Hub) mailboxFor(rank int, tag Tag) *mailbox {
	h.mu.Lock()
	defer h.mu.Unlock()

	byTag, ok := h.mailboxes[rank]
	if !ok {
		byTag = map[Tag]*mailbox{}
		h.mailboxes[rank] = byTag
	}

	mb, ok := byTag[tag]
	if !ok {
		mb = newMailbox()
		byTag[tag] = mb
	}
	return mb
}

// Endpoint returns the Transport view for rank, bound to this Hub.
func (h *Hub) Endpoint(rank int) Endpoint {
	return &channelEndpoint{hub: h, self: rank}
}

type channelEndpoint struct {
	hub  *Hub
	self int
}

func (c *channelEndpoint) Send(ctx context.Context, tag Tag, peer int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "send", Peer: peer, Tag: tag, Err: err}
	}
	c.hub.mailboxFor(peer, tag).push(Envelope{From: c.self, Payload: payload, CorrelationID: uuid.NewString()})
	return nil
}

func (c *channelEndpoint) Probe(tag Tag) bool {
	return c.hub.mailboxFor(c.self, tag).probe()
}

func (c *channelEndpoint) Recv(ctx context.Context, tag Tag) (Envelope, error) {
	e, err := c.hub.mailboxFor(c.self, tag).recv(ctx)
	if err != nil {
		return Envelope{}, &TransportError{Op: "recv", Peer: c.self, Tag: tag, Err: err}
	}
	return e, nil
}
