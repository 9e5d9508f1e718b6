// Package report assembles the interaction report a node hands to the
// registry during the drain window: known peers, peer-list sources, the
// individual peer announcements received and sent, and the all-time
// snippet archive in timestamp order. Everything on the wire is textual
// and counted so the registry can read each section without framing.
package report

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gossipnet/internal/snippet"
	"gossipnet/internal/wire"
)

// DateFormat is the timestamp layout used throughout the report.
const DateFormat = "2006-01-02 15:04:05"

// Source records one peer-list delivery from the registry.
type Source struct {
	Addr       wire.Address
	ReceivedAt time.Time
	Peers      []wire.Address
}

// PeerEvent records a single peer announcement crossing the transport:
// Counterpart is who it came from or went to, Announced is the address
// named inside the message.
type PeerEvent struct {
	Counterpart wire.Address
	Announced   wire.Address
	At          time.Time
}

func (e PeerEvent) String() string {
	return fmt.Sprintf("%s %s %s", e.Counterpart, e.Announced, e.At.Format(DateFormat))
}

// Builder accumulates report material across the node's lifetime. Safe
// for concurrent use by the engine loops.
type Builder struct {
	mu       sync.Mutex
	sources  []Source
	received []PeerEvent
	sent     []PeerEvent
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddSource records a peer-list delivery.
func (b *Builder) AddSource(s Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, s)
}

// RecordPeerReceived notes an inbound peer announcement.
func (b *Builder) RecordPeerReceived(from, announced wire.Address, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.received = append(b.received, PeerEvent{Counterpart: from, Announced: announced, At: at})
}

// RecordPeerSent notes an outbound peer announcement.
func (b *Builder) RecordPeerSent(to, announced wire.Address, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, PeerEvent{Counterpart: to, Announced: announced, At: at})
}

// Render serializes the full report in the wire's counted-section
// format: known peers, sources, received announcements, sent
// announcements, then the snippet archive.
func (b *Builder) Render(known []wire.Address, snippets []snippet.Snippet) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder

	fmt.Fprintf(&sb, "%d\n", len(known))
	for _, a := range known {
		fmt.Fprintf(&sb, "%s\n", a)
	}

	fmt.Fprintf(&sb, "%d\n", len(b.sources))
	for _, s := range b.sources {
		fmt.Fprintf(&sb, "%s\n", s.Addr)
		fmt.Fprintf(&sb, "%s\n", s.ReceivedAt.Format(DateFormat))
		fmt.Fprintf(&sb, "%d\n", len(s.Peers))
		for _, p := range s.Peers {
			fmt.Fprintf(&sb, "%s\n", p)
		}
	}

	fmt.Fprintf(&sb, "%d\n", len(b.received))
	for _, e := range b.received {
		fmt.Fprintf(&sb, "%s\n", e)
	}

	fmt.Fprintf(&sb, "%d\n", len(b.sent))
	for _, e := range b.sent {
		fmt.Fprintf(&sb, "%s\n", e)
	}

	fmt.Fprintf(&sb, "%d\n", len(snippets))
	for _, s := range snippets {
		fmt.Fprintf(&sb, "%s\n", s)
	}

	return sb.String()
}

// Consume reads a rendered report from br and returns it reformatted
// with section headers for persistence. It is the registry-side inverse
// of Render: counted sections, no framing beyond newlines.
func Consume(br *bufio.Reader) (string, error) {
	var sb strings.Builder

	n, err := readCount(br)
	if err != nil {
		return "", errors.Wrap(err, "reading peer list count")
	}
	fmt.Fprintf(&sb, "%d in list:\n", n)
	if err := copyLines(br, &sb, n); err != nil {
		return "", errors.Wrap(err, "reading peer list")
	}

	n, err = readCount(br)
	if err != nil {
		return "", errors.Wrap(err, "reading source count")
	}
	fmt.Fprintf(&sb, "%d sources:\n", n)
	for i := 0; i < n; i++ {
		src, err := readLine(br)
		if err != nil {
			return "", errors.Wrap(err, "reading source address")
		}
		date, err := readLine(br)
		if err != nil {
			return "", errors.Wrap(err, "reading source date")
		}
		peers, err := readCount(br)
		if err != nil {
			return "", errors.Wrap(err, "reading source peer count")
		}
		fmt.Fprintf(&sb, "Source: %s\nDate: %s\nNum of peers received: %d\n", src, date, peers)
		if err := copyLines(br, &sb, peers); err != nil {
			return "", errors.Wrap(err, "reading source peers")
		}
	}

	n, err = readCount(br)
	if err != nil {
		return "", errors.Wrap(err, "reading received count")
	}
	fmt.Fprintf(&sb, "%d single peers received:\n", n)
	if err := copyLines(br, &sb, n); err != nil {
		return "", errors.Wrap(err, "reading received announcements")
	}

	n, err = readCount(br)
	if err != nil {
		return "", errors.Wrap(err, "reading sent count")
	}
	fmt.Fprintf(&sb, "%d sends:\n", n)
	if err := copyLines(br, &sb, n); err != nil {
		return "", errors.Wrap(err, "reading sent announcements")
	}

	n, err = readCount(br)
	if err != nil {
		return "", errors.Wrap(err, "reading snippet count")
	}
	fmt.Fprintf(&sb, "%d snippets:\n", n)
	if err := copyLines(br, &sb, n); err != nil {
		return "", errors.Wrap(err, "reading snippets")
	}

	return sb.String(), nil
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readCount(br *bufio.Reader) (int, error) {
	line, err := readLine(br)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, errors.Wrapf(err, "expected a count, got %q", line)
	}
	if n < 0 {
		return 0, errors.Errorf("negative count %d", n)
	}
	return n, nil
}

func copyLines(br *bufio.Reader, sb *strings.Builder, n int) error {
	for i := 0; i < n; i++ {
		line, err := readLine(br)
		if err != nil {
			return err
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return nil
}
