package handshake

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aeroncap/pkg/fabric"
	"aeroncap/pkg/idle"
	"aeroncap/pkg/stream"
)

// Listener is the server side of the handshake: it accepts an inbound Syn
// and replies with an Ack carrying the session id the connector correlates
// its pending connect call against.
type Listener struct {
	log    *zap.Logger
	client fabric.Client
	recv   *fabric.ImageReceiver

	writeIdlers idle.Factory
}

// NewListener subscribes on (channel, streamID), where it expects Connectors
// to send their Syn.
func NewListener(log *zap.Logger, client fabric.Client, channel string, streamID int32, opts Options) (*Listener, error) {
	opts = opts.withDefaults()
	recv, err := fabric.NewImageReceiver(log, client, channel, streamID)
	if err != nil {
		return nil, err
	}
	return &Listener{log: log, client: client, recv: recv, writeIdlers: opts.WriteIdlers}, nil
}

// Accept waits for one inbound connection attempt, completes the handshake,
// and returns the resulting FramedStream.
func (l *Listener) Accept(ctx context.Context) (*stream.FramedStream, error) {
	img, err := l.recv.Receive(ctx, idle.Periodic(idle.DefaultPeriodicOptions()))
	if err != nil {
		return nil, err
	}
	l.log.Info("listener: inbound image", fabric.SourceField(img.SourceIdentity()))

	msg, err := stream.ReadMessage(ctx, img, idle.Periodic(idle.DefaultPeriodicOptions()))
	if err != nil {
		return nil, fmt.Errorf("handshake: read syn: %w", err)
	}
	syn, err := ReadRootSyn(msg)
	if err != nil {
		return nil, fmt.Errorf("handshake: malformed syn: %w", err)
	}
	channel, err := syn.Channel()
	if err != nil {
		return nil, fmt.Errorf("handshake: malformed syn channel: %w", err)
	}
	streamID := syn.StreamID()
	l.log.Info("listener < syn", fabric.ChannelField(channel), fabric.StreamIDField(streamID))

	pub, err := addPublication(ctx, l.client, channel, streamID, idle.Backoff(idle.DefaultBackoffOptions()))
	if err != nil {
		return nil, fmt.Errorf("handshake: accept: %w", err)
	}

	sessionID := img.SessionID()
	l.log.Info("listener > ack", fabric.SessionIDField(sessionID))
	b, err := marshalAck(sessionID)
	if err != nil {
		return nil, fmt.Errorf("handshake: build ack: %w", err)
	}
	if err := stream.WriteBytes(ctx, pub, b, l.writeIdlers); err != nil {
		return nil, fmt.Errorf("handshake: send ack: %w", err)
	}

	return stream.New(l.log, pub, img, l.writeIdlers), nil
}
