package inproc

import (
	"testing"

	"aeroncap/pkg/fabric"
)

func mustPublication(t *testing.T, c *Client, channel string, streamID int32) fabric.Publication {
	t.Helper()
	reg, err := c.AddExclusivePublication(channel, streamID)
	if err != nil {
		t.Fatalf("add publication: %v", err)
	}
	pub, ok := c.FindExclusivePublication(reg)
	if !ok {
		t.Fatalf("publication not found immediately")
	}
	return pub
}

func TestOfferDeliversToSubscribedImage(t *testing.T) {
	c := NewClient(DefaultOptions())

	var got fabric.Image
	if _, err := c.AddSubscription("aeron:ipc", 1, func(img fabric.Image) { got = img }, nil); err != nil {
		t.Fatalf("add subscription: %v", err)
	}

	pub := mustPublication(t, c, "aeron:ipc", 1)
	if got == nil {
		t.Fatalf("subscription did not see the publication attach")
	}

	if code := pub.Offer([]byte("hello")); !code.IsSuccess() {
		t.Fatalf("offer failed: %v", code)
	}

	var received []byte
	n := got.ControlledPoll(func(buf []byte, h fabric.FrameHeader) fabric.ControlledPollAction {
		if !h.HasFlag(fabric.FlagUnfragmented) {
			t.Fatalf("expected a single unfragmented frame")
		}
		received = append([]byte(nil), buf...)
		return fabric.ContinuePoll
	}, 16)
	if n != 1 {
		t.Fatalf("expected 1 fragment read, got %d", n)
	}
	if string(received) != "hello" {
		t.Fatalf("got %q, want %q", received, "hello")
	}
}

func TestOfferWithoutSubscriberIsNotConnected(t *testing.T) {
	c := NewClient(DefaultOptions())
	pub := mustPublication(t, c, "aeron:ipc", 1)
	if code := pub.Offer([]byte("x")); code != fabric.NotConnected {
		t.Fatalf("got %v, want NotConnected", code)
	}
}

func TestLargeMessageFragmentsAcrossPolls(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPayloadLength = 8
	c := NewClient(opts)

	var got fabric.Image
	if _, err := c.AddSubscription("aeron:ipc", 1, func(img fabric.Image) { got = img }, nil); err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	pub := mustPublication(t, c, "aeron:ipc", 1)

	msg := []byte("this message is longer than eight bytes")
	if code := pub.Offer(msg); !code.IsSuccess() {
		t.Fatalf("offer failed: %v", code)
	}

	var reassembled []byte
	var sawBegin, sawEnd bool
	for {
		n := got.ControlledPoll(func(buf []byte, h fabric.FrameHeader) fabric.ControlledPollAction {
			if h.HasFlag(fabric.FlagBeginFrag) {
				sawBegin = true
			}
			if h.HasFlag(fabric.FlagEndFrag) {
				sawEnd = true
			}
			reassembled = append(reassembled, buf...)
			return fabric.ContinuePoll
		}, 1)
		if n == 0 {
			break
		}
	}
	if !sawBegin || !sawEnd {
		t.Fatalf("expected both BEGIN_FRAG and END_FRAG flags, got begin=%v end=%v", sawBegin, sawEnd)
	}
	if string(reassembled) != string(msg) {
		t.Fatalf("got %q, want %q", reassembled, msg)
	}
}

func TestOfferBackPressuredWhenQueueFull(t *testing.T) {
	opts := DefaultOptions()
	opts.BackpressureDepth = 1
	c := NewClient(opts)

	if _, err := c.AddSubscription("aeron:ipc", 1, func(fabric.Image) {}, nil); err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	pub := mustPublication(t, c, "aeron:ipc", 1)

	if code := pub.Offer([]byte("a")); !code.IsSuccess() {
		t.Fatalf("first offer should succeed, got %v", code)
	}
	if code := pub.Offer([]byte("b")); code != fabric.BackPressured {
		t.Fatalf("second offer should be back-pressured, got %v", code)
	}
}

func TestCloseMarksEndOfStreamOnceDrained(t *testing.T) {
	c := NewClient(DefaultOptions())
	var got fabric.Image
	if _, err := c.AddSubscription("aeron:ipc", 1, func(img fabric.Image) { got = img }, nil); err != nil {
		t.Fatalf("add subscription: %v", err)
	}
	pub := mustPublication(t, c, "aeron:ipc", 1)

	if code := pub.Offer([]byte("x")); !code.IsSuccess() {
		t.Fatalf("offer: %v", code)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got.IsEndOfStream() {
		t.Fatalf("image should not be end-of-stream until its queued fragment is drained")
	}
	got.ControlledPoll(func([]byte, fabric.FrameHeader) fabric.ControlledPollAction { return fabric.ContinuePoll }, 16)
	if !got.IsEndOfStream() {
		t.Fatalf("image should be end-of-stream once drained after publisher close")
	}
}
