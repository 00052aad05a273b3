// Package stream implements FramedStream, the bidirectional, message-framed
// connection this module builds on top of one fabric publication and one
// fabric image. It is the piece that turns the fabric's raw fragmented byte
// streams into whole messages: a write picks the zero-copy claim path or the
// copying offer path based on message size, and a read reassembles whatever
// the fabric fragmented on the way in.
//
// ReadBytes and WriteBytes are exported as free functions as well as
// FramedStream methods: the handshake package reads a raw Syn/Ack off a bare
// fabric.Image, and writes one to a bare fabric.Publication, before either
// side has a full publication+image pair to build a FramedStream from.
package stream

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aeroncap/pkg/fabric"
	"aeroncap/pkg/idle"
)

// readPollBatch mirrors the original design's controlledPoll(handler, 16):
// at most this many fragments are inspected per poll call before the read
// loop decides whether to retry immediately or idle.
const readPollBatch = 16

// FramedStream pairs one outbound publication with one inbound image and
// presents them as a single message-oriented connection. Writes and reads
// are each safe to call from one goroutine at a time; a FramedStream itself
// does not serialize concurrent writers, so callers with several writing
// goroutines must serialize them themselves.
type FramedStream struct {
	log *zap.Logger

	pub fabric.Publication
	img fabric.Image

	writeIdlers idle.Factory
	readIdler   idle.Idler
}

// New returns a FramedStream over pub/img. writeIdlers builds a fresh Idler
// for every write's retry loop; a nil factory defaults to Backoff with
// idle.DefaultBackoffOptions, matching the original design's default
// idle::backoff(timer) constructor.
func New(log *zap.Logger, pub fabric.Publication, img fabric.Image, writeIdlers idle.Factory) *FramedStream {
	if writeIdlers == nil {
		writeIdlers = idle.BackoffFactory(idle.DefaultBackoffOptions())
	}
	return &FramedStream{
		log:         log,
		pub:         pub,
		img:         img,
		writeIdlers: writeIdlers,
		readIdler:   idle.Periodic(idle.DefaultPeriodicOptions()),
	}
}

// SendBufferSize reports the fabric's term buffer length, the original
// design's getSendBufferSize.
func (s *FramedStream) SendBufferSize() int {
	return s.pub.TermBufferLength()
}

// WriteBytes sends one already-framed message over s's publication.
func (s *FramedStream) WriteBytes(ctx context.Context, b []byte) error {
	return WriteBytes(ctx, s.pub, b, s.writeIdlers)
}

// WriteMessages sends each message in order. The original design fires all
// of its writes and joins the resulting promises; a fabric stream delivers
// in order regardless, so a sequential loop is equivalent here.
func (s *FramedStream) WriteMessages(ctx context.Context, msgs [][]byte) error {
	for i, b := range msgs {
		if err := s.WriteBytes(ctx, b); err != nil {
			return fmt.Errorf("write message %d of %d: %w", i, len(msgs), err)
		}
	}
	return nil
}

// ReadBytes blocks until one whole message has been reassembled from s's
// image. It returns fabric.ErrDisconnected once the image reports end of
// stream with nothing left queued.
func (s *FramedStream) ReadBytes(ctx context.Context) ([]byte, error) {
	return ReadBytes(ctx, s.img, s.readIdler)
}

// End closes the underlying publication and image, the original design's
// destructor behavior (pub_->close(); image_.close();).
func (s *FramedStream) End() error {
	pubErr := s.pub.Close()
	imgErr := s.img.Close()
	if pubErr != nil {
		return pubErr
	}
	return imgErr
}

// WriteBytes sends one already-framed message on pub. Messages that fit
// within the fabric's max payload length go through the zero-copy claim
// path; everything else (up to the fabric's max message length) goes
// through the copying offer path, which the fabric fragments internally.
// idlers builds a fresh Idler for this call's own back-pressure retry loop.
func WriteBytes(ctx context.Context, pub fabric.Publication, b []byte, idlers idle.Factory) error {
	if len(b) == 0 {
		return fmt.Errorf("stream: refusing to write an empty message")
	}
	if len(b) > pub.MaxMessageLength() {
		return fmt.Errorf("stream: message of %d bytes exceeds max message length %d", len(b), pub.MaxMessageLength())
	}
	if idlers == nil {
		idlers = idle.BackoffFactory(idle.DefaultBackoffOptions())
	}
	if len(b) <= pub.MaxPayloadLength() {
		return writeClaim(ctx, pub, b, idlers())
	}
	return writeOffer(ctx, pub, b, idlers())
}

func writeClaim(ctx context.Context, pub fabric.Publication, b []byte, idler idle.Idler) error {
	for {
		claim, code := pub.TryClaim(len(b))
		switch {
		case code.IsSuccess():
			copy(claim.Buffer(), b)
			claim.Commit()
			return nil
		case code.IsTransientFailure():
			if err := idler.Idle(ctx); err != nil {
				return err
			}
		default:
			return fabric.ToError(code)
		}
	}
}

func writeOffer(ctx context.Context, pub fabric.Publication, b []byte, idler idle.Idler) error {
	for {
		code := pub.Offer(b)
		switch {
		case code.IsSuccess():
			return nil
		case code.IsTransientFailure():
			if err := idler.Idle(ctx); err != nil {
				return err
			}
		default:
			return fabric.ToError(code)
		}
	}
}

// ReadBytes reassembles and returns one whole message from img, idling via
// idler between empty polls and resetting it whenever a poll makes fragment
// progress. It returns fabric.ErrDisconnected once img reports end of
// stream with nothing left queued.
func ReadBytes(ctx context.Context, img fabric.Image, idler idle.Idler) ([]byte, error) {
	idler.Reset()
	var acc []byte

	for {
		var result []byte
		n := img.ControlledPoll(func(buf []byte, h fabric.FrameHeader) fabric.ControlledPollAction {
			if h.HasFlag(fabric.FlagUnfragmented) {
				result = append([]byte(nil), buf...)
				return fabric.BreakPoll
			}
			// BeginFrag and EndFrag are independent flags, not mutually
			// exclusive: a fragment can carry both, completing the message
			// in this same poll.
			if h.HasFlag(fabric.FlagBeginFrag) {
				acc = append([]byte(nil), buf...)
			} else {
				acc = append(acc, buf...)
			}
			if h.HasFlag(fabric.FlagEndFrag) {
				result = acc
				acc = nil
				return fabric.BreakPoll
			}
			return fabric.ContinuePoll
		}, readPollBatch)

		if result != nil {
			return result, nil
		}
		if n > 0 {
			// Fragments arrived but the message isn't complete yet; retry
			// right away instead of idling.
			idler.Reset()
			continue
		}
		if img.IsEndOfStream() {
			return nil, fabric.ErrDisconnected
		}
		if err := idler.Idle(ctx); err != nil {
			return nil, err
		}
	}
}
