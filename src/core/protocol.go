package core

// Protocol selects the anti-entropy exchange pattern used by a node when it
// wakes up.
type Protocol uint8

const (
	// ProtocolPush sends the local snapshot to the peer.
	ProtocolPush Protocol = iota
	// ProtocolPull asks the peer for its snapshot.
	ProtocolPull
	// ProtocolPushPull does both in one exchange.
	ProtocolPushPull
)

// String ...
func (p Protocol) String() string {
	switch p {
	case ProtocolPush:
		return "push"
	case ProtocolPull:
		return "pull"
	case ProtocolPushPull:
		return "push_pull"
	default:
		return "Unknown"
	}
}

// ParseProtocol maps a configuration string onto a Protocol.
func ParseProtocol(s string) (Protocol, bool) {
	switch s {
	case "push":
		return ProtocolPush, true
	case "pull":
		return ProtocolPull, true
	case "push_pull":
		return ProtocolPushPull, true
	}
	return ProtocolPush, false
}
