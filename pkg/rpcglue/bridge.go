// Package rpcglue wires a handshake-established stream.FramedStream to the
// external RPC runtime (capnproto.org/go/capnp/v3's rpc subpackage). The RPC
// layer's own dispatch and capability tables are an external collaborator —
// out of scope here — this package only establishes and tears down the
// rpc.Conn riding on top of one FramedStream.
package rpcglue

import (
	"context"
	"errors"
	"io"
	"sync"

	"aeroncap/pkg/fabric"
	"aeroncap/pkg/stream"
)

// streamConn adapts a FramedStream to io.ReadWriteCloser so it can back an
// rpc.StreamTransport. The read side is robust to however many bytes the
// decoder asks for per call: it pulls one whole framed message at a time
// and serves it out of an internal buffer. The write side assumes the
// encoder issues one Write per outgoing message — true for Cap'n Proto's
// single-segment flat-array encoding of small messages, which is what this
// module's message sizes stay within; see DESIGN.md for the tradeoff.
type streamConn struct {
	ctx context.Context
	fs  *stream.FramedStream

	mu      sync.Mutex
	pending []byte
}

func newStreamConn(ctx context.Context, fs *stream.FramedStream) *streamConn {
	return &streamConn{ctx: ctx, fs: fs}
}

func (c *streamConn) Write(p []byte) (int, error) {
	if err := c.fs.WriteBytes(c.ctx, append([]byte(nil), p...)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *streamConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		b, err := c.fs.ReadBytes(c.ctx)
		if err != nil {
			if errors.Is(err, fabric.ErrDisconnected) {
				return 0, io.EOF
			}
			return 0, err
		}
		c.pending = b
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *streamConn) Close() error {
	return c.fs.End()
}
