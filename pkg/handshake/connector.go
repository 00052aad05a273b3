// Package handshake implements the SYN/ACK exchange that turns a bare pair
// of fabric publications into a FramedStream known to both parties:
// Connector dials out and waits for an ack; Listener accepts an inbound syn
// and replies with one.
package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"aeroncap/pkg/fabric"
	"aeroncap/pkg/idle"
	"aeroncap/pkg/stream"
)

// Options configures the write-retry policy a Connector or Listener uses,
// both for its own Syn or Ack write and on the streams it establishes. A
// zero Options gets a sensible default.
type Options struct {
	WriteIdlers idle.Factory
}

func (o Options) withDefaults() Options {
	if o.WriteIdlers == nil {
		o.WriteIdlers = idle.BackoffFactory(idle.DefaultBackoffOptions())
	}
	return o
}

type fulfillResult struct {
	image fabric.Image
	err   error
}

// Connector is the client side of the handshake. It advertises its own
// (channel, streamID) as a return address: any Listener it connects to
// opens a reply publication back to that address, per the Syn it sends.
type Connector struct {
	log    *zap.Logger
	client fabric.Client
	recv   *fabric.ImageReceiver

	channel  string
	streamID int32

	writeIdlers idle.Factory

	mu         sync.Mutex
	fulfillers map[int32]chan fulfillResult
	closed     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnector subscribes on (channel, streamID) and starts the background
// loop that matches inbound Acks to pending Connect calls. The returned
// Connector must eventually be Closed.
func NewConnector(ctx context.Context, log *zap.Logger, client fabric.Client, channel string, streamID int32, opts Options) (*Connector, error) {
	opts = opts.withDefaults()
	recv, err := fabric.NewImageReceiver(log, client, channel, streamID)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := &Connector{
		log:         log,
		client:      client,
		recv:        recv,
		channel:     channel,
		streamID:    streamID,
		writeIdlers: opts.WriteIdlers,
		fulfillers:  make(map[int32]chan fulfillResult),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go c.handleResponses(runCtx)
	return c, nil
}

// Close stops the response loop and rejects every connection still waiting
// on an Ack, the original design's destructor behavior.
func (c *Connector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.fulfillers
	c.fulfillers = nil
	c.mu.Unlock()

	c.cancel()
	for _, ch := range pending {
		ch <- fulfillResult{err: fmt.Errorf("handshake: connector closed: %w", fabric.ErrDisconnected)}
	}
	<-c.done
	return nil
}

// Connect opens a publication to (channel, streamID) — where some Listener
// is expected to be subscribed — sends a Syn advertising this Connector's
// own address, and waits for the matching Ack.
func (c *Connector) Connect(ctx context.Context, channel string, streamID int32) (*stream.FramedStream, error) {
	pub, err := addPublication(ctx, c.client, channel, streamID, idle.Backoff(idle.DefaultBackoffOptions()))
	if err != nil {
		return nil, fmt.Errorf("handshake: connect: %w", err)
	}
	sessionID := pub.SessionID()

	ch := make(chan fulfillResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("handshake: connector closed: %w", fabric.ErrDisconnected)
	}
	c.fulfillers[sessionID] = ch
	c.mu.Unlock()

	c.log.Info("connector > syn", fabric.ChannelField(c.channel), fabric.StreamIDField(c.streamID))
	b, err := marshalSyn(c.channel, c.streamID)
	if err != nil {
		c.removeFulfiller(sessionID)
		return nil, fmt.Errorf("handshake: build syn: %w", err)
	}
	if err := stream.WriteBytes(ctx, pub, b, c.writeIdlers); err != nil {
		c.removeFulfiller(sessionID)
		return nil, fmt.Errorf("handshake: send syn: %w", err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return stream.New(c.log, pub, res.image, c.writeIdlers), nil
	case <-ctx.Done():
		c.removeFulfiller(sessionID)
		return nil, ctx.Err()
	}
}

func (c *Connector) removeFulfiller(sessionID int32) {
	c.mu.Lock()
	if c.fulfillers != nil {
		delete(c.fulfillers, sessionID)
	}
	c.mu.Unlock()
}

func (c *Connector) handleResponses(ctx context.Context) {
	defer close(c.done)
	recvIdler := idle.Periodic(idle.DefaultPeriodicOptions())
	readIdler := idle.Periodic(idle.DefaultPeriodicOptions())
	for {
		img, err := c.recv.Receive(ctx, recvIdler)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("connector: failed to accept connection", zap.Error(err))
			if !pause(ctx, 100*time.Microsecond) {
				return
			}
			continue
		}

		c.log.Info("connector: inbound image", fabric.SourceField(img.SourceIdentity()))
		msg, err := stream.ReadMessage(ctx, img, readIdler)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("connector: failed to read ack", zap.Error(err))
			if !pause(ctx, 100*time.Microsecond) {
				return
			}
			continue
		}

		ack, err := ReadRootAck(msg)
		if err != nil {
			c.log.Error("connector: malformed ack", zap.Error(err))
			continue
		}
		sessionID := ack.SessionID()
		c.log.Info("connector < ack", fabric.SessionIDField(sessionID))

		c.mu.Lock()
		ch, ok := c.fulfillers[sessionID]
		if ok {
			delete(c.fulfillers, sessionID)
		}
		c.mu.Unlock()
		if !ok {
			c.log.Error("connector: received unknown ack", fabric.SessionIDField(sessionID))
			continue
		}
		ch <- fulfillResult{image: img}
	}
}

// pause sleeps d, returning false if ctx is canceled first.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
