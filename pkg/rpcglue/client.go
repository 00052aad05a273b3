package rpcglue

import (
	"context"

	"capnproto.org/go/capnp/v3"
	"capnproto.org/go/capnp/v3/rpc"

	"aeroncap/pkg/handshake"
)

// Client is the TwoPartyEndpoint's client side: one rpc.Conn over the
// FramedStream produced by a successful handshake.Connector.Connect.
type Client struct {
	conn *rpc.Conn
}

// Dial performs the handshake against (channel, streamID) and starts an
// rpc.Conn on the resulting stream.
func Dial(ctx context.Context, connector *handshake.Connector, channel string, streamID int32) (*Client, error) {
	fs, err := connector.Connect(ctx, channel, streamID)
	if err != nil {
		return nil, err
	}
	conn := rpc.NewConn(rpc.NewStreamTransport(newStreamConn(ctx, fs)), nil)
	return &Client{conn: conn}, nil
}

// Bootstrap returns the peer's bootstrap capability, the original design's
// TwoPartyClient::bootstrap().
func (c *Client) Bootstrap(ctx context.Context) capnp.Client {
	return c.conn.Bootstrap(ctx)
}

// Done reports the connection's disconnect signal.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Done()
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
