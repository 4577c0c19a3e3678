package screener

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/flipfile/flipfile/internal/pipeline/port"
	"github.com/flipfile/flipfile/pkg/resilience"
)

const (
	clamChunkSize      = 32 * 1024
	defaultClamTimeout = 30 * time.Second
)

// ClamAV screens content against a clamd daemon over TCP using the
// INSTREAM command. Calls go through a circuit breaker so a down daemon
// fails submissions fast instead of stalling every upload.
type ClamAV struct {
	addr    string
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	dialer  net.Dialer
}

// NewClamAV creates a client for the clamd daemon at addr (host:port).
// A non-positive timeout falls back to 30 seconds per scan.
func NewClamAV(addr string, timeout time.Duration) *ClamAV {
	if timeout <= 0 {
		timeout = defaultClamTimeout
	}
	return &ClamAV{
		addr:    addr,
		timeout: timeout,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "clamav",
			FailureThreshold: 3,
			SuccessThreshold: 1,
			OpenTimeout:      10 * time.Second,
		}),
	}
}

// Screen streams r to clamd and reports its verdict.
func (c *ClamAV) Screen(ctx context.Context, r io.Reader) (port.Verdict, error) {
	var verdict port.Verdict
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := c.scan(ctx, r)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return port.Verdict{}, fmt.Errorf("screener: clamav: %w", err)
	}
	return verdict, nil
}

// scan runs one INSTREAM session: the command line, length-prefixed
// chunks, a zero-length terminator, then a single-line reply.
func (c *ClamAV) scan(ctx context.Context, r io.Reader) (port.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return port.Verdict{}, fmt.Errorf("dial clamd: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return port.Verdict{}, fmt.Errorf("send command: %w", err)
	}

	buf := make([]byte, clamChunkSize)
	var prefix [4]byte
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(prefix[:], uint32(n))
			if _, err := conn.Write(prefix[:]); err != nil {
				return port.Verdict{}, fmt.Errorf("send chunk: %w", err)
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return port.Verdict{}, fmt.Errorf("send chunk: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return port.Verdict{}, fmt.Errorf("read content: %w", rerr)
		}
	}

	binary.BigEndian.PutUint32(prefix[:], 0)
	if _, err := conn.Write(prefix[:]); err != nil {
		return port.Verdict{}, fmt.Errorf("send terminator: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\x00')
	if err != nil && err != io.EOF {
		return port.Verdict{}, fmt.Errorf("read reply: %w", err)
	}
	return parseReply(reply)
}

// parseReply maps a clamd reply line to a verdict.
func parseReply(reply string) (port.Verdict, error) {
	reply = strings.TrimSuffix(strings.TrimSpace(reply), "\x00")
	switch {
	case strings.HasSuffix(reply, "OK"):
		return port.Verdict{}, nil
	case strings.HasSuffix(reply, "FOUND"):
		sig := strings.TrimSuffix(strings.TrimPrefix(reply, "stream: "), " FOUND")
		return port.Verdict{Flagged: true, Reason: sig}, nil
	default:
		return port.Verdict{}, fmt.Errorf("unexpected reply %q", reply)
	}
}
