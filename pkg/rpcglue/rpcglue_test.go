package rpcglue

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"capnproto.org/go/capnp/v3"

	"aeroncap/pkg/fabric/inproc"
	"aeroncap/pkg/handshake"
)

// TestClientServerConnectionEstablishesAndDrains drives the full transport
// leg of the stack — inproc fabric, handshake.Listener/Connector, and an
// rpc.Conn on each side — the way TwoPartyServer.listen/Connector.connect/
// TwoPartyClient are exercised together in the original design's TwoParty
// test. The bootstrap capability itself is a null capnp.Client and no
// method call is sent or resolved: the method/capability dispatch table a
// real HelloServer.greet call would need is an external collaborator, out
// of scope for this module.
//
// It also asserts Drain's tasks_.onEmpty() semantics: Drain must not return,
// and must not force the still-active connection closed, until the client
// disconnects on its own.
func TestClientServerConnectionEstablishesAndDrains(t *testing.T) {
	client := inproc.NewClient(inproc.DefaultOptions())
	log := zap.NewNop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	listener, err := handshake.NewListener(log, client, "server:chan", 1, handshake.Options{})
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	srv := NewServer(log, listener, capnp.Client{})

	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	go srv.Listen(listenCtx)

	connector, err := handshake.NewConnector(ctx, log, client, "client:chan", 2, handshake.Options{})
	if err != nil {
		t.Fatalf("new connector: %v", err)
	}
	defer connector.Close()

	cl, err := Dial(ctx, connector, "server:chan", 1)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer cl.Close()

	boot := cl.Bootstrap(ctx)
	defer boot.Release()

	drained := make(chan error, 1)
	go func() {
		drained <- srv.Drain()
	}()

	select {
	case err := <-drained:
		t.Fatalf("drain returned before the client connection closed (err=%v): it must wait, not force-close", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := cl.Close(); err != nil {
		t.Fatalf("close client: %v", err)
	}

	select {
	case err := <-drained:
		if err != nil {
			t.Fatalf("drain: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("drain never returned after the client connection closed")
	}

	stopListening()
}
