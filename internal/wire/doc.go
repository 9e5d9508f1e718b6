// Package wire defines the ASCII datagram protocol spoken between peers
// and the registry. One datagram carries one message: a 4-byte type tag
// followed by a textual payload. Malformed payloads decode to Unknown
// rather than an error so the receive path can drop them and move on.
package wire
