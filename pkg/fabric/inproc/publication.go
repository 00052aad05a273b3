package inproc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"aeroncap/pkg/fabric"
)

type publication struct {
	opts    Options
	session int32
	topic   topic
	closed  atomic.Bool

	mu    sync.Mutex
	image *image
}

func newPublication(opts Options, session int32, t topic) *publication {
	return &publication{opts: opts, session: session, topic: t}
}

func (p *publication) attach() *image {
	img := newImage(p)
	p.mu.Lock()
	p.image = img
	p.mu.Unlock()
	return img
}

func (p *publication) currentImage() *image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.image
}

func (p *publication) SessionID() int32       { return p.session }
func (p *publication) MaxPayloadLength() int  { return p.opts.MaxPayloadLength }
func (p *publication) TermBufferLength() int  { return p.opts.TermBufferLength }
func (p *publication) MaxMessageLength() int  { return p.opts.TermBufferLength / 8 }

func (p *publication) Offer(b []byte) fabric.ResultCode {
	if p.closed.Load() {
		return fabric.PublicationClosed
	}
	img := p.currentImage()
	if img == nil {
		return fabric.NotConnected
	}
	return img.deliverMessage(b)
}

func (p *publication) TryClaim(length int) (fabric.BufferClaim, fabric.ResultCode) {
	if p.closed.Load() {
		return nil, fabric.PublicationClosed
	}
	img := p.currentImage()
	if img == nil {
		return nil, fabric.NotConnected
	}
	img.mu.Lock()
	if !img.capacityFor(1) {
		img.mu.Unlock()
		return nil, fabric.BackPressured
	}
	img.reserved++
	img.mu.Unlock()
	return &claim{img: img, buf: make([]byte, length)}, fabric.ResultCode(1)
}

func (p *publication) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if img := p.currentImage(); img != nil {
		img.mu.Lock()
		img.pubClosed = true
		img.mu.Unlock()
	}
	return nil
}

type fragment struct {
	data  []byte
	flags uint8
}

type image struct {
	pub      *publication
	session  int32
	sourceID string

	mu        sync.Mutex
	queue     []fragment
	reserved  int
	pubClosed bool
}

func newImage(p *publication) *image {
	return &image{
		pub:      p,
		session:  p.session,
		sourceID: fmt.Sprintf("inproc:%s:%d:%d", p.topic.channel, p.topic.streamID, p.session),
	}
}

func (img *image) SessionID() int32       { return img.session }
func (img *image) SourceIdentity() string { return img.sourceID }

func (img *image) IsEndOfStream() bool {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.pubClosed && len(img.queue) == 0
}

func (img *image) Close() error { return nil }

func (img *image) capacityFor(n int) bool {
	return len(img.queue)+img.reserved+n <= img.pub.opts.BackpressureDepth
}

func (img *image) deliverMessage(b []byte) fabric.ResultCode {
	frags := fragmentize(b, img.pub.opts.MaxPayloadLength)
	img.mu.Lock()
	defer img.mu.Unlock()
	if !img.capacityFor(len(frags)) {
		return fabric.BackPressured
	}
	img.queue = append(img.queue, frags...)
	return fabric.ResultCode(1)
}

func (img *image) ControlledPoll(handler fabric.FragmentHandler, fragmentLimit int) int {
	img.mu.Lock()
	n := len(img.queue)
	if n > fragmentLimit {
		n = fragmentLimit
	}
	batch := make([]fragment, n)
	copy(batch, img.queue[:n])
	img.mu.Unlock()

	read := 0
	for _, f := range batch {
		action := handler(f.data, fabric.FrameHeader{Flags: f.flags})
		read++
		if action == fabric.BreakPoll {
			break
		}
	}

	img.mu.Lock()
	img.queue = img.queue[read:]
	img.mu.Unlock()
	return read
}

type claim struct {
	img  *image
	buf  []byte
	done bool
}

func (c *claim) Buffer() []byte { return c.buf }

func (c *claim) Commit() {
	if c.done {
		return
	}
	c.done = true
	c.img.mu.Lock()
	c.img.reserved--
	c.img.queue = append(c.img.queue, fragment{data: c.buf, flags: fabric.FlagUnfragmented})
	c.img.mu.Unlock()
}

func (c *claim) Abort() {
	if c.done {
		return
	}
	c.done = true
	c.img.mu.Lock()
	c.img.reserved--
	c.img.mu.Unlock()
}

func fragmentize(b []byte, maxPayload int) []fragment {
	if len(b) <= maxPayload {
		cp := append([]byte(nil), b...)
		return []fragment{{data: cp, flags: fabric.FlagUnfragmented}}
	}
	var frags []fragment
	for off := 0; off < len(b); off += maxPayload {
		end := off + maxPayload
		if end > len(b) {
			end = len(b)
		}
		var flags uint8
		switch {
		case off == 0:
			flags = fabric.FlagBeginFrag
		case end == len(b):
			flags = fabric.FlagEndFrag
		}
		cp := append([]byte(nil), b[off:end]...)
		frags = append(frags, fragment{data: cp, flags: flags})
	}
	return frags
}
