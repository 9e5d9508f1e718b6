// Package regclient implements the node side of the registry's TCP
// onboarding conversation. The registry drives the session with
// line-oriented prompts; prompts may arrive in any order and may
// repeat, and the session ends when the registry says close.
package regclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gossipnet/internal/wire"
)

// Config describes one node's answers to the registry prompts.
type Config struct {
	// RegistryAddr is the host:port of the registry's TCP listener.
	RegistryAddr string
	// TeamName answers "get team name" and doubles as the shutdown
	// ack identity.
	TeamName string
	// Location answers "get location" with the node's UDP endpoint.
	Location wire.Address
	// CodePath names the source listing sent for "get code". Empty or
	// unreadable paths degrade to a placeholder listing.
	CodePath string
}

// Result carries what a session yielded.
type Result struct {
	// Seeds holds the peer subset sent by "receive peers", if any.
	Seeds []wire.Address
	// SeedsReceivedAt is when the subset arrived.
	SeedsReceivedAt time.Time
}

// Client runs registry sessions for one node.
type Client struct {
	cfg Config
	log *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{cfg: cfg, log: logger.Named("regclient")}
}

// Session dials the registry and serves prompts until close. The
// report supplier is invoked at most once per "get report" prompt so
// the rendered text reflects the node's state at that moment.
func (c *Client) Session(ctx context.Context, report func() string) (*Result, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.cfg.RegistryAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial registry %s", c.cfg.RegistryAddr)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	res := &Result{}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "read registry prompt")
		}
		prompt := strings.TrimSpace(line)
		c.log.Debug("registry prompt", zap.String("prompt", prompt))

		switch prompt {
		case "get team name":
			fmt.Fprintf(w, "%s\n", c.cfg.TeamName)
		case "get location":
			fmt.Fprintf(w, "%s\n", c.cfg.Location)
		case "get code":
			c.writeCode(w)
		case "receive peers":
			seeds, err := readPeerList(r)
			if err != nil {
				return nil, err
			}
			res.Seeds = seeds
			res.SeedsReceivedAt = time.Now()
		case "get report":
			w.WriteString(report())
		case "close":
			if err := w.Flush(); err != nil {
				return nil, errors.Wrap(err, "flush session")
			}
			return res, nil
		default:
			c.log.Warn("unknown registry prompt", zap.String("prompt", prompt))
		}
		if err := w.Flush(); err != nil {
			return nil, errors.Wrap(err, "flush session")
		}
	}
}

// writeCode sends the language tag, the source listing, and the lone
// terminator line.
func (c *Client) writeCode(w *bufio.Writer) {
	w.WriteString("go\n")
	data, err := os.ReadFile(c.cfg.CodePath)
	if err != nil {
		c.log.Warn("source listing unavailable", zap.String("path", c.cfg.CodePath), zap.Error(err))
		fmt.Fprintf(w, "// source listing unavailable: %s\n", c.cfg.CodePath)
	} else {
		w.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			w.WriteByte('\n')
		}
	}
	w.WriteString("...\n")
}

// readPeerList consumes "<count>\n" then count "<ip>:<port>\n" lines.
func readPeerList(r *bufio.Reader) ([]wire.Address, error) {
	countLine, err := r.ReadString('\n')
	if err != nil {
		return nil, errors.Wrap(err, "read peer count")
	}
	count, err := strconv.Atoi(strings.TrimSpace(countLine))
	if err != nil {
		return nil, errors.Wrapf(err, "parse peer count %q", strings.TrimSpace(countLine))
	}
	seeds := make([]wire.Address, 0, count)
	for i := 0; i < count; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(err, "read peer entry")
		}
		addr, err := wire.ParseAddress(strings.TrimSpace(line))
		if err != nil {
			return nil, errors.Wrapf(err, "peer entry %d", i)
		}
		seeds = append(seeds, addr)
	}
	return seeds, nil
}
