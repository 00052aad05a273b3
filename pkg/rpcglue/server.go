package rpcglue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"capnproto.org/go/capnp/v3"
	"capnproto.org/go/capnp/v3/rpc"

	"aeroncap/pkg/handshake"
	"aeroncap/pkg/stream"
)

// Server is the TwoPartyEndpoint's server side: it drives handshake.Listener
// to accept FramedStreams and starts one rpc.Conn per accepted stream,
// offering the same bootstrap capability to every peer.
type Server struct {
	log       *zap.Logger
	listener  *handshake.Listener
	bootstrap capnp.Client

	wg sync.WaitGroup
}

// NewServer returns a Server that answers every accepted connection's
// bootstrap call with bootstrap.
func NewServer(log *zap.Logger, listener *handshake.Listener, bootstrap capnp.Client) *Server {
	return &Server{
		log:       log,
		listener:  listener,
		bootstrap: bootstrap,
	}
}

// Accept completes one handshake and starts an rpc.Conn on the resulting
// stream.
func (s *Server) Accept(ctx context.Context) error {
	fs, err := s.listener.Accept(ctx)
	if err != nil {
		return err
	}
	s.start(ctx, fs)
	return nil
}

func (s *Server) start(ctx context.Context, fs *stream.FramedStream) {
	conn := rpc.NewConn(rpc.NewStreamTransport(newStreamConn(ctx, fs)), &rpc.Options{
		BootstrapClient: s.bootstrap,
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-conn.Done()
	}()
}

// Listen accepts connections until ctx is canceled, logging and continuing
// past any one accept failure — the original design's recursive
// accept-then-relisten loop (TwoPartyServer::listen).
func (s *Server) Listen(ctx context.Context) error {
	for {
		if err := s.Accept(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("rpcglue: accept failed", zap.Error(err))
			continue
		}
	}
}

// Drain waits for every connection this Server has accepted to disconnect
// on its own, the original design's drain() (tasks_.onEmpty()) — it does
// not force any connection closed, so a call still in flight on one
// connection is left to finish rather than severed.
func (s *Server) Drain() error {
	s.wg.Wait()
	return nil
}
