package registry

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gossipnet/internal/report"
	"gossipnet/internal/wire"
)

// handleSession drives one node conversation: identify the node,
// collect its source listing, then either send a peer subset (run
// window) or collect its report (drain window), then close. Session
// failures are logged and isolated to the connection.
func (s *Server) handleSession(conn net.Conn) {
	defer conn.Close()
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	team, err := prompt(bw, br, "get team name")
	if err != nil {
		log.Warn("session failed", zap.Error(err))
		return
	}
	location, err := prompt(bw, br, "get location")
	if err != nil {
		log.Warn("session failed", zap.Error(err))
		return
	}
	addr, err := wire.ParseAddress(location)
	if err != nil {
		log.Warn("bad location", zap.String("location", location), zap.Error(err))
		return
	}
	s.dir.Register(team, addr)
	log.Info("registered", zap.String("team", team), zap.Stringer("location", addr))

	lang, code, err := collectCode(bw, br)
	if err != nil {
		log.Warn("code collection failed", zap.Error(err))
		return
	}
	s.persistCode(team, lang, code, log)

	if s.draining.Load() {
		text, err := collectReport(bw, br)
		if err != nil {
			log.Warn("report collection failed", zap.Error(err))
			return
		}
		s.persistReport(team, text, log)
	} else {
		if err := sendPeers(bw, s.dir.SubsetFor(team)); err != nil {
			log.Warn("peer send failed", zap.Error(err))
			return
		}
	}

	bw.WriteString("close\n")
	if err := bw.Flush(); err != nil {
		log.Warn("close failed", zap.Error(err))
	}
}

// prompt sends one request line and reads the one-line answer.
func prompt(bw *bufio.Writer, br *bufio.Reader, req string) (string, error) {
	if _, err := fmt.Fprintf(bw, "%s\n", req); err != nil {
		return "", errors.Wrapf(err, "send %q", req)
	}
	if err := bw.Flush(); err != nil {
		return "", errors.Wrapf(err, "send %q", req)
	}
	line, err := br.ReadString('\n')
	if err != nil {
		return "", errors.Wrapf(err, "answer to %q", req)
	}
	return strings.TrimSpace(line), nil
}

// collectCode requests the source listing: a language tag line, then
// code lines until a lone "..." terminator.
func collectCode(bw *bufio.Writer, br *bufio.Reader) (lang, code string, err error) {
	lang, err = prompt(bw, br, "get code")
	if err != nil {
		return "", "", err
	}
	lang = strings.ToLower(lang)

	var b strings.Builder
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return "", "", errors.Wrap(err, "read code line")
		}
		if strings.TrimRight(line, "\r\n") == "..." {
			return lang, b.String(), nil
		}
		b.WriteString(line)
	}
}

// collectReport requests the counted report sections and returns the
// headered rendering.
func collectReport(bw *bufio.Writer, br *bufio.Reader) (string, error) {
	if _, err := bw.WriteString("get report\n"); err != nil {
		return "", errors.Wrap(err, "request report")
	}
	if err := bw.Flush(); err != nil {
		return "", errors.Wrap(err, "request report")
	}
	return report.Consume(br)
}

// sendPeers writes the subset: a count line then one endpoint per line.
func sendPeers(bw *bufio.Writer, subset []wire.Address) error {
	if _, err := bw.WriteString("receive peers\n"); err != nil {
		return errors.Wrap(err, "announce peer list")
	}
	if _, err := fmt.Fprintf(bw, "%d\n", len(subset)); err != nil {
		return errors.Wrap(err, "send peer count")
	}
	for _, a := range subset {
		if _, err := fmt.Fprintf(bw, "%s\n", a); err != nil {
			return errors.Wrap(err, "send peer entry")
		}
	}
	return bw.Flush()
}

func (s *Server) persistCode(team, lang, code string, log *zap.Logger) {
	dir := filepath.Join(s.cfg.DataDir, fmt.Sprintf("sourceCode%d", s.epoch.Load()))
	name := filepath.Join(dir, fileName(team)+"SourceCode."+fileName(lang))
	s.persist(name, code, log)
}

func (s *Server) persistReport(team, text string, log *zap.Logger) {
	dir := filepath.Join(s.cfg.DataDir, fmt.Sprintf("reports%d", s.epoch.Load()))
	name := filepath.Join(dir, fileName(team)+"Report.txt")
	s.persist(name, text, log)
}

// persist writes one collected artifact. Failures are logged, never
// fatal: one node's broken disk path must not end other sessions.
func (s *Server) persist(name, content string, log *zap.Logger) {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		log.Warn("persist mkdir", zap.String("path", name), zap.Error(err))
		return
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		log.Warn("persist write", zap.String("path", name), zap.Error(err))
		return
	}
	log.Info("persisted", zap.String("path", name))
}

// fileName keeps team-provided strings safe to use in file names.
func fileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
