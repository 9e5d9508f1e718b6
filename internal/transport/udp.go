// Package transport provides the unreliable datagram channel the gossip
// engine runs over: fire-and-forget sends and deadline-bounded receives
// of wire messages.
package transport

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gossipnet/internal/telemetry"
	"gossipnet/internal/wire"
)

// ErrTimeout is returned by Receive when no datagram arrived within the
// deadline. Loops treat it as a normal wakeup to re-check cancellation.
var ErrTimeout = errors.New("transport: receive timed out")

// maxDatagram bounds a single inbound message.
const maxDatagram = 1024

// UDP owns a datagram socket. SendTo and Receive may be called from
// different goroutines; net.UDPConn serializes access internally.
type UDP struct {
	conn *net.UDPConn
	log  *zap.Logger
}

// Listen binds a UDP socket on the given port; port 0 picks an ephemeral
// one. Bind failure is the caller's problem: a node cannot gossip
// without its socket.
func Listen(port int, logger *zap.Logger) (*UDP, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, errors.Wrapf(err, "binding udp port %d", port)
	}
	u := &UDP{conn: conn, log: logger}
	logger.Info("udp transport listening", zap.Int("port", u.Port()))
	return u, nil
}

// Port returns the bound local port.
func (u *UDP) Port() int {
	return u.conn.LocalAddr().(*net.UDPAddr).Port
}

// SendTo encodes and sends one message to addr. Best effort: the
// transport gives no delivery confirmation, and callers are expected to
// log-and-continue on error.
func (u *UDP) SendTo(addr wire.Address, m wire.Message) error {
	b := wire.Encode(m)
	if b == nil {
		return errors.Errorf("refusing to send message type %v", m.Type)
	}
	dst := &net.UDPAddr{IP: net.ParseIP(addr.Host), Port: addr.Port}
	if dst.IP == nil {
		return errors.Errorf("bad destination host %q", addr.Host)
	}
	if _, err := u.conn.WriteToUDP(b, dst); err != nil {
		return errors.Wrapf(err, "sending %s to %s", m.Type, addr)
	}
	telemetry.DatagramsSent.WithLabelValues(m.Type.String()).Inc()
	return nil
}

// Receive blocks for the next inbound datagram, up to timeout, and
// decodes it. Malformed payloads come back as wire.Unknown; the error is
// only for socket-level failures and ErrTimeout.
func (u *UDP) Receive(timeout time.Duration) (wire.Message, wire.Address, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return wire.Message{}, wire.Address{}, errors.Wrap(err, "setting read deadline")
	}

	buf := make([]byte, maxDatagram)
	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return wire.Message{}, wire.Address{}, ErrTimeout
		}
		return wire.Message{}, wire.Address{}, errors.Wrap(err, "reading datagram")
	}

	m := wire.Decode(buf[:n])
	sender := wire.Address{Host: from.IP.String(), Port: from.Port}
	telemetry.DatagramsReceived.WithLabelValues(m.Type.String()).Inc()
	if m.Type == wire.Unknown {
		telemetry.DecodeDrops.Inc()
		u.log.Debug("dropping malformed datagram",
			zap.String("from", sender.String()),
			zap.Int("bytes", n))
	}
	return m, sender, nil
}

// Close releases the socket. A Receive blocked in read returns with an
// error after Close.
func (u *UDP) Close() error {
	return u.conn.Close()
}
