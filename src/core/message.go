package core

import (
	"fmt"

	"github.com/gossiplearn/gossiplearn/src/cache"
)

// NodeID identifies a node in the overlay. IDs are dense integers in [0, N)
// assigned by the data dispatcher at construction time.
type NodeID int

// MsgType is the type of an anti-entropy message.
type MsgType uint8

const (
	// Push carries a snapshot key from sender to receiver.
	Push MsgType = iota
	// Pull requests a snapshot from the receiver.
	Pull
	// PushPull combines Push and Pull in a single exchange.
	PushPull
	// Reply carries the snapshot key answering a Pull or PushPull.
	Reply
)

// String ...
func (m MsgType) String() string {
	switch m {
	case Push:
		return "PUSH"
	case Pull:
		return "PULL"
	case PushPull:
		return "PUSH_PULL"
	case Reply:
		return "REPLY"
	default:
		return "Unknown"
	}
}

// Payload references a cached model snapshot plus the variant-specific merge
// argument. A Pull message carries no payload.
type Payload struct {
	// Key is the handle of the snapshot in the shared cache. It is consumed
	// by exactly one Pop on the receiving side.
	Key cache.Key

	// SampleSize is the fraction of model components the receiver should
	// sample before merging. Only set by sampling-based nodes.
	SampleSize float64

	// Partition is the id of the model partition carried by this exchange.
	// It is -1 when the exchange is not partition-based.
	Partition int
}

// NewKeyPayload returns a payload carrying only a snapshot key.
func NewKeyPayload(key cache.Key) *Payload {
	return &Payload{Key: key, Partition: -1}
}

// Message is the envelope exchanged between gossip nodes. Delivery is
// performed by the simulator, which may delay or drop it.
type Message struct {
	Timestamp int
	Sender    NodeID
	Receiver  NodeID
	Type      MsgType
	Value     *Payload
}

// NewMessage ...
func NewMessage(t int, sender, receiver NodeID, msgType MsgType, value *Payload) *Message {
	return &Message{
		Timestamp: t,
		Sender:    sender,
		Receiver:  receiver,
		Type:      msgType,
		Value:     value,
	}
}

// String ...
func (m *Message) String() string {
	return fmt.Sprintf("%s t=%d %d->%d", m.Type, m.Timestamp, m.Sender, m.Receiver)
}

// ChordMessage is a Message bounded by a propagation limit: the id of the
// node at which accumulated pushes are eventually merged and evicted.
type ChordMessage struct {
	Message
	Limit NodeID
}

// NewChordMessage ...
func NewChordMessage(t int, sender, receiver, limit NodeID, msgType MsgType, value *Payload) *ChordMessage {
	return &ChordMessage{
		Message: Message{
			Timestamp: t,
			Sender:    sender,
			Receiver:  receiver,
			Type:      msgType,
			Value:     value,
		},
		Limit: limit,
	}
}
