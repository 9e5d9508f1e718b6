package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// MsgType discriminates the datagram type tags.
type MsgType int

const (
	Unknown MsgType = iota
	Peer
	Snip
	Stop
	Ack
)

// String returns the wire tag for the message type.
func (t MsgType) String() string {
	switch t {
	case Peer:
		return "peer"
	case Snip:
		return "snip"
	case Stop:
		return "stop"
	case Ack:
		return "ack"
	default:
		return "unknown"
	}
}

// Message is a decoded datagram. Only the fields relevant to Type are
// populated: Addr for Peer, Timestamp/Content for Snip, Identity for Ack.
type Message struct {
	Type      MsgType
	Addr      Address
	Timestamp int
	Content   string
	Identity  string
}

// PeerMessage builds a peer announcement for addr.
func PeerMessage(addr Address) Message {
	return Message{Type: Peer, Addr: addr}
}

// SnipMessage builds a snippet carrying content at the given logical time.
func SnipMessage(timestamp int, content string) Message {
	return Message{Type: Snip, Timestamp: timestamp, Content: content}
}

// StopMessage builds a shutdown request.
func StopMessage() Message {
	return Message{Type: Stop}
}

// AckMessage builds a shutdown acknowledgment carrying identity.
func AckMessage(identity string) Message {
	return Message{Type: Ack, Identity: identity}
}

// Encode renders a message into its datagram bytes.
func Encode(m Message) []byte {
	switch m.Type {
	case Peer:
		return []byte("peer" + m.Addr.String())
	case Snip:
		return []byte(fmt.Sprintf("snip%d %s", m.Timestamp, m.Content))
	case Stop:
		return []byte("stop")
	case Ack:
		return []byte("ack" + m.Identity)
	default:
		return nil
	}
}

// Decode parses datagram bytes into a Message. Anything that does not
// match the protocol decodes to Unknown; Decode never returns an error
// because the substrate is unauthenticated and fail-open.
func Decode(b []byte) Message {
	s := strings.TrimSpace(string(b))
	if len(s) < 3 {
		return Message{Type: Unknown}
	}

	// "ack" is the one three-byte tag.
	if strings.HasPrefix(strings.ToLower(s), "ack") {
		return Message{Type: Ack, Identity: strings.TrimSpace(s[3:])}
	}

	if len(s) < 4 {
		return Message{Type: Unknown}
	}
	tag := strings.ToLower(s[:4])
	body := strings.TrimSpace(s[4:])

	switch tag {
	case "peer":
		addr, err := ParseAddress(body)
		if err != nil {
			return Message{Type: Unknown}
		}
		return Message{Type: Peer, Addr: addr}
	case "snip":
		ts, content, ok := splitSnip(body)
		if !ok {
			return Message{Type: Unknown}
		}
		return Message{Type: Snip, Timestamp: ts, Content: content}
	case "stop":
		return Message{Type: Stop}
	default:
		return Message{Type: Unknown}
	}
}

// splitSnip separates a snip body into its leading integer timestamp and
// the remaining content.
func splitSnip(body string) (int, string, bool) {
	tsStr, content, _ := strings.Cut(body, " ")
	ts, err := strconv.Atoi(tsStr)
	if err != nil {
		return 0, "", false
	}
	return ts, strings.TrimSpace(content), true
}
