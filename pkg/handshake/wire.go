package handshake

// Syn and Ack are the two handshake records, written to a bare fabric
// publication and read off a bare fabric image before the pair is wrapped
// in a FramedStream and any RPC traffic flows. Hand-written directly against
// capnproto.org/go/capnp/v3's low-level Struct API in the shape capnpc-go
// would have produced from a two-field and a one-field struct schema — the
// schema compiler itself is out of scope, so there is no .capnp source file,
// only its generated-code equivalent.

import (
	"capnproto.org/go/capnp/v3"
)

// synSize is one text pointer (channel) plus one data word (streamId,
// padded to a full word).
var synSize = capnp.ObjectSize{DataSize: 8, PointerCount: 1}

// ackSize is one data word (sessionId).
var ackSize = capnp.ObjectSize{DataSize: 8, PointerCount: 0}

// Syn is the client's request to open a stream: "meet me at (channel,
// streamId)."
type Syn capnp.Struct

// NewRootSyn allocates a Syn as the root object of a fresh message.
func NewRootSyn(seg *capnp.Segment) (Syn, error) {
	st, err := capnp.NewRootStruct(seg, synSize)
	return Syn(st), err
}

// ReadRootSyn reads msg's root object as a Syn.
func ReadRootSyn(msg *capnp.Message) (Syn, error) {
	root, err := msg.Root()
	if err != nil {
		return Syn{}, err
	}
	return Syn(root.Struct()), nil
}

func (s Syn) StreamID() int32 {
	return int32(capnp.Struct(s).Uint32(0))
}

func (s Syn) SetStreamID(v int32) {
	capnp.Struct(s).SetUint32(0, uint32(v))
}

func (s Syn) Channel() (string, error) {
	p, err := capnp.Struct(s).Ptr(0)
	if err != nil {
		return "", err
	}
	return p.Text(), nil
}

func (s Syn) SetChannel(v string) error {
	return capnp.Struct(s).SetText(0, v)
}

// Ack is the server's reply: "I've opened my side; here is its session id."
type Ack capnp.Struct

// NewRootAck allocates an Ack as the root object of a fresh message.
func NewRootAck(seg *capnp.Segment) (Ack, error) {
	st, err := capnp.NewRootStruct(seg, ackSize)
	return Ack(st), err
}

// ReadRootAck reads msg's root object as an Ack.
func ReadRootAck(msg *capnp.Message) (Ack, error) {
	root, err := msg.Root()
	if err != nil {
		return Ack{}, err
	}
	return Ack(root.Struct()), nil
}

func (a Ack) SessionID() int32 {
	return int32(capnp.Struct(a).Uint32(0))
}

func (a Ack) SetSessionID(v int32) {
	capnp.Struct(a).SetUint32(0, uint32(v))
}

// marshalSyn builds a flat-array-encoded Syn message.
func marshalSyn(channel string, streamID int32) ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, err
	}
	syn, err := NewRootSyn(seg)
	if err != nil {
		return nil, err
	}
	if err := syn.SetChannel(channel); err != nil {
		return nil, err
	}
	syn.SetStreamID(streamID)
	return msg.Marshal()
}

// marshalAck builds a flat-array-encoded Ack message.
func marshalAck(sessionID int32) ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, err
	}
	ack, err := NewRootAck(seg)
	if err != nil {
		return nil, err
	}
	ack.SetSessionID(sessionID)
	return msg.Marshal()
}

func unmarshalSyn(b []byte) (Syn, error) {
	msg, err := capnp.Unmarshal(b)
	if err != nil {
		return Syn{}, err
	}
	return ReadRootSyn(msg)
}

func unmarshalAck(b []byte) (Ack, error) {
	msg, err := capnp.Unmarshal(b)
	if err != nil {
		return Ack{}, err
	}
	return ReadRootAck(msg)
}
