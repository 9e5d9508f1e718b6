package wire

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Address identifies a gossip transport endpoint as an IPv4 host and a
// UDP port. It is a value type: equality and map-key behavior follow
// from field equality. An Address names an endpoint, not an identity.
type Address struct {
	Host string
	Port int
}

// String renders the address in the wire's <ip>:<port> form.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// IsZero reports whether the address is the empty value.
func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// ParseAddress parses and validates an <ip>:<port> string. The host must
// be a dotted-quad IPv4 address and the port must be in [0, 65535].
func ParseAddress(s string) (Address, error) {
	host, portStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Address{}, errors.Errorf("address %q: missing port separator", s)
	}

	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil {
		return Address{}, errors.Errorf("address %q: host is not a valid IPv4 address", s)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, errors.Wrapf(err, "address %q: bad port", s)
	}
	if port < 0 || port > 65535 {
		return Address{}, errors.Errorf("address %q: port %d out of range", s, port)
	}

	return Address{Host: host, Port: port}, nil
}
