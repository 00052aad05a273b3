package stream

import (
	"context"
	"fmt"

	"capnproto.org/go/capnp/v3"

	"aeroncap/pkg/fabric"
	"aeroncap/pkg/idle"
)

// WriteMessage marshals msg to the flat-array wire form (a self-describing
// segment table followed by segment data, Cap'n Proto's framing for a
// single message with no stream-level delimiter) and writes it as one
// framed message.
func (s *FramedStream) WriteMessage(ctx context.Context, msg *capnp.Message) error {
	return WriteMessage(ctx, s.pub, msg, s.writeIdlers)
}

// ReadMessage reads one framed message and unmarshals it.
func (s *FramedStream) ReadMessage(ctx context.Context) (*capnp.Message, error) {
	return ReadMessage(ctx, s.img, s.readIdler)
}

// WriteMessage marshals msg and writes it to pub.
func WriteMessage(ctx context.Context, pub fabric.Publication, msg *capnp.Message, idlers idle.Factory) error {
	b, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("stream: marshal message: %w", err)
	}
	return WriteBytes(ctx, pub, b, idlers)
}

// ReadMessage reads one framed message from img and unmarshals it.
func ReadMessage(ctx context.Context, img fabric.Image, idler idle.Idler) (*capnp.Message, error) {
	b, err := ReadBytes(ctx, img, idler)
	if err != nil {
		return nil, err
	}
	msg, err := capnp.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("stream: unmarshal message: %w", err)
	}
	return msg, nil
}
