// Package inproc is an in-process double for pkg/fabric's Client contract,
// grounded on the donor's net.Pipe-backed pkg/transport/mem: instead of a
// real Aeron media driver process, publications and subscriptions on the
// same (channel, streamID) are wired together in-memory. It reproduces the
// fabric's fragmentation and back-pressure behavior closely enough to drive
// pkg/stream's reassembly and retry paths in tests, but it is not a media
// driver: no wire format, no flow control beyond a bounded queue.
package inproc

import (
	"sync"

	"aeroncap/pkg/fabric"
)

type topic struct {
	channel  string
	streamID int32
}

// Options bounds the simulated fabric limits a Client hands out to every
// publication it creates.
type Options struct {
	MaxPayloadLength  int
	TermBufferLength  int
	BackpressureDepth int
}

// DefaultOptions mirrors realistic Aeron IPC defaults: a ~1.4KB MTU-sized
// max payload, a 16MB term buffer (so max message length is 2MB), and a
// modest queue depth so back-pressure is actually reachable in tests.
func DefaultOptions() Options {
	return Options{
		MaxPayloadLength:  1376,
		TermBufferLength:  16 * 1024 * 1024,
		BackpressureDepth: 64,
	}
}

type subscription struct {
	onAvailable   func(fabric.Image)
	onUnavailable func(fabric.Image)
}

// Client is a fabric.Client implementation that lives entirely in one
// process. Two parties sharing a Client can exchange streams without any
// actual network or shared memory; separate Clients do not see each
// other's publications or subscriptions.
type Client struct {
	opts Options

	mu          sync.Mutex
	nextSession int32
	subs        map[topic][]*subscription
	pending     map[topic][]*publication

	regMu   sync.Mutex
	nextReg int64
	regs    map[fabric.Registration]*publication
}

// NewClient returns a Client with the given simulated fabric limits.
func NewClient(opts Options) *Client {
	return &Client{
		opts:    opts,
		subs:    make(map[topic][]*subscription),
		pending: make(map[topic][]*publication),
		regs:    make(map[fabric.Registration]*publication),
	}
}

func (c *Client) AddSubscription(channel string, streamID int32, onAvailable func(fabric.Image), onUnavailable func(fabric.Image)) (fabric.Registration, error) {
	t := topic{channel, streamID}
	sub := &subscription{onAvailable: onAvailable, onUnavailable: onUnavailable}

	c.mu.Lock()
	c.subs[t] = append(c.subs[t], sub)
	waiting := c.pending[t]
	c.pending[t] = nil
	c.mu.Unlock()

	for _, pub := range waiting {
		c.attach(pub, sub)
	}
	return fabric.Registration(0), nil
}

func (c *Client) AddExclusivePublication(channel string, streamID int32) (fabric.Registration, error) {
	t := topic{channel, streamID}

	c.mu.Lock()
	c.nextSession++
	pub := newPublication(c.opts, c.nextSession, t)
	subs := append([]*subscription(nil), c.subs[t]...)
	if len(subs) == 0 {
		c.pending[t] = append(c.pending[t], pub)
	}
	c.mu.Unlock()

	// This design is strictly two-party (spec Non-goal: >2 parties), so a
	// publication attaches to at most one subscriber: the first on its topic.
	// Any other subscriber on the same topic receives nothing from it.
	if len(subs) > 0 {
		c.attach(pub, subs[0])
	}

	c.regMu.Lock()
	c.nextReg++
	reg := fabric.Registration(c.nextReg)
	c.regs[reg] = pub
	c.regMu.Unlock()
	return reg, nil
}

func (c *Client) attach(pub *publication, sub *subscription) {
	img := pub.attach()
	sub.onAvailable(img)
}

func (c *Client) FindExclusivePublication(reg fabric.Registration) (fabric.Publication, bool) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	pub, ok := c.regs[reg]
	if !ok {
		return nil, false
	}
	return pub, true
}
