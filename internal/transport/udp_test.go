package transport

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gossipnet/internal/wire"
)

func TestUDP_SendReceive(t *testing.T) {
	logger := zaptest.NewLogger(t)

	a, err := Listen(0, logger)
	require.NoError(t, err)
	defer a.Close()

	b, err := Listen(0, logger)
	require.NoError(t, err)
	defer b.Close()

	dst := wire.Address{Host: "127.0.0.1", Port: b.Port()}
	sent := wire.SnipMessage(3, "over the wire")
	require.NoError(t, a.SendTo(dst, sent))

	got, from, err := b.Receive(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, sent, got)
	require.Equal(t, a.Port(), from.Port)
}

func TestUDP_ReceiveTimeout(t *testing.T) {
	u, err := Listen(0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer u.Close()

	start := time.Now()
	_, _, err = u.Receive(50 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestUDP_MalformedDecodesToUnknown(t *testing.T) {
	logger := zaptest.NewLogger(t)

	b, err := Listen(0, logger)
	require.NoError(t, err)
	defer b.Close()

	// Raw garbage straight through a plain socket.
	raw, err := net.Dial("udp4", fmt.Sprintf("127.0.0.1:%d", b.Port()))
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Write([]byte("peer999.1.2.3:banana"))
	require.NoError(t, err)

	got, _, err := b.Receive(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.Unknown, got.Type)
}

func TestUDP_BindConflict(t *testing.T) {
	logger := zaptest.NewLogger(t)

	a, err := Listen(0, logger)
	require.NoError(t, err)
	defer a.Close()

	_, err = Listen(a.Port(), logger)
	require.Error(t, err)
}
