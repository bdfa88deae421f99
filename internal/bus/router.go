package bus

import "context"

// Router is the concrete, in-process MessageRouter: two buffered channels
// connecting channel adapters (producers of InboundMessage, consumers of
// OutboundMessage) to the agent runtime (the reverse). A single address
// space needs nothing fancier than buffered channels (§5).
type Router struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// NewRouter creates a Router with the given per-direction buffer size.
func NewRouter(bufferSize int) *Router {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Router{
		inbound:  make(chan InboundMessage, bufferSize),
		outbound: make(chan OutboundMessage, bufferSize),
	}
}

// PublishInbound enqueues msg for the runtime's inbound consumer. Blocks
// if the buffer is full rather than silently dropping the message.
func (r *Router) PublishInbound(msg InboundMessage) {
	r.inbound <- msg
}

// ConsumeInbound blocks until an inbound message arrives or ctx is done.
func (r *Router) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-r.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues msg for delivery back out through a channel
// adapter.
func (r *Router) PublishOutbound(msg OutboundMessage) {
	r.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message is ready or ctx is
// done.
func (r *Router) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-r.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}
