// Package cache publishes evaluation reports and optional session snapshots
// to a Valkey-compatible store, with in-memory and no-op stand-ins.
package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyProvider implements Provider against a Valkey/Redis-compatible
// server using a minimal RESP client. Connections are per-operation: the
// provider only handles small, infrequent payloads (reports and session
// snapshots), so pooling is not worth its complexity here.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// ValkeyConfig holds connection parameters for the cache server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

func (cfg *ValkeyConfig) applyDefaults() {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

// NewValkeyProvider validates the configuration and pings the target so
// bad credentials or connectivity fail at startup, not on first use.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	cfg.applyDefaults()
	provider := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := provider.ping(ctx); err != nil {
		return nil, err
	}
	return provider, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.withConn(ctx, func(rc *respConn) error {
		if err := rc.command("GET", []byte(key)); err != nil {
			return err
		}
		reply, err := rc.read()
		if err != nil {
			return err
		}
		switch reply.kind {
		case respNil:
			return ErrCacheMiss
		case respBulk:
			payload = reply.payload
			return nil
		default:
			return fmt.Errorf("unexpected GET reply type %q", reply.kind)
		}
	})
	return payload, err
}

// Set stores bytes under key with the provided TTL (0 means no expiry).
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.withConn(ctx, func(rc *respConn) error {
		args := [][]byte{[]byte(key), value}
		if ttl > 0 {
			args = append(args, []byte("PX"), []byte(strconv.FormatInt(ttl.Milliseconds(), 10)))
		}
		if err := rc.command("SET", args...); err != nil {
			return err
		}
		return rc.expectOK("SET")
	})
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	return p.withConn(ctx, func(rc *respConn) error {
		if err := rc.command("DEL", []byte(key)); err != nil {
			return err
		}
		_, err := rc.read()
		return err
	})
}

// Close is a no-op; the provider holds no persistent connections.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) ping(ctx context.Context) error {
	return p.withConn(ctx, func(rc *respConn) error {
		if err := rc.command("PING"); err != nil {
			return err
		}
		reply, err := rc.read()
		if err != nil {
			return err
		}
		if reply.kind != respStatus || string(reply.payload) != "PONG" {
			return fmt.Errorf("unexpected PING reply: %s", reply.payload)
		}
		return nil
	})
}

// withConn dials, authenticates, runs fn, and retries transient network
// failures with exponential backoff.
func (p *ValkeyProvider) withConn(ctx context.Context, fn func(*respConn) error) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := p.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == p.cfg.MaxRetries-1 {
			return err
		}
		time.Sleep(time.Duration(1<<attempt) * 25 * time.Millisecond)
	}
	return lastErr
}

func (p *ValkeyProvider) runOnce(ctx context.Context, fn func(*respConn) error) error {
	rc, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer rc.close()

	if err := p.handshake(rc); err != nil {
		return err
	}
	return fn(rc)
}

func (p *ValkeyProvider) dial(ctx context.Context) (*respConn, error) {
	dialer := net.Dialer{Timeout: dialBudget(ctx, p.cfg.DialTimeout)}

	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		host := p.cfg.Addr
		if h, _, splitErr := net.SplitHostPort(p.cfg.Addr); splitErr == nil {
			host = h
		}
		conn, err = tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: host,
		})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &respConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		readTimeout:  p.cfg.ReadTimeout,
		writeTimeout: p.cfg.WriteTimeout,
	}, nil
}

func (p *ValkeyProvider) handshake(rc *respConn) error {
	if p.cfg.Password != "" {
		args := [][]byte{[]byte(p.cfg.Password)}
		if p.cfg.Username != "" {
			args = [][]byte{[]byte(p.cfg.Username), []byte(p.cfg.Password)}
		}
		if err := rc.command("AUTH", args...); err != nil {
			return err
		}
		if err := rc.expectOK("AUTH"); err != nil {
			return err
		}
	}
	if p.cfg.DB > 0 {
		if err := rc.command("SELECT", []byte(strconv.Itoa(p.cfg.DB))); err != nil {
			return err
		}
		if err := rc.expectOK("SELECT"); err != nil {
			return err
		}
	}
	return nil
}

// respKind enumerates the subset of RESP reply types the provider speaks.
type respKind byte

const (
	respStatus  respKind = '+'
	respBulk    respKind = '$'
	respInteger respKind = ':'
	respNil     respKind = '_'
)

type respReply struct {
	kind    respKind
	payload []byte
}

// respConn wraps one network connection with RESP framing helpers.
type respConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (rc *respConn) close() {
	_ = rc.conn.Close()
}

// command writes one command as a RESP array of bulk strings.
func (rc *respConn) command(name string, args ...[]byte) error {
	if err := rc.conn.SetWriteDeadline(time.Now().Add(rc.writeTimeout)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(rc.writer, "*%d\r\n", len(args)+1); err != nil {
		return err
	}
	parts := append([][]byte{[]byte(name)}, args...)
	for _, part := range parts {
		if _, err := fmt.Fprintf(rc.writer, "$%d\r\n", len(part)); err != nil {
			return err
		}
		if _, err := rc.writer.Write(part); err != nil {
			return err
		}
		if _, err := rc.writer.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return rc.writer.Flush()
}

// expectOK consumes one reply and demands a simple-string OK.
func (rc *respConn) expectOK(op string) error {
	reply, err := rc.read()
	if err != nil {
		return err
	}
	if reply.kind != respStatus || !strings.EqualFold(string(reply.payload), "OK") {
		return fmt.Errorf("%s failed: %s", op, reply.payload)
	}
	return nil
}

func (rc *respConn) read() (respReply, error) {
	if err := rc.conn.SetReadDeadline(time.Now().Add(rc.readTimeout)); err != nil {
		return respReply{}, err
	}
	prefix, err := rc.reader.ReadByte()
	if err != nil {
		return respReply{}, err
	}

	switch prefix {
	case '+':
		line, err := rc.line()
		return respReply{kind: respStatus, payload: line}, err
	case '-':
		line, err := rc.line()
		if err != nil {
			return respReply{}, err
		}
		return respReply{}, errors.New(string(line))
	case ':':
		line, err := rc.line()
		return respReply{kind: respInteger, payload: line}, err
	case '$':
		line, err := rc.line()
		if err != nil {
			return respReply{}, err
		}
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return respReply{}, err
		}
		if size < 0 {
			return respReply{kind: respNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(rc.reader, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, errors.New("malformed bulk string terminator")
		}
		return respReply{kind: respBulk, payload: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (rc *respConn) line() ([]byte, error) {
	line, err := rc.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// dialBudget bounds the dial timeout by the caller's context deadline.
func dialBudget(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if d == 0 || remaining < d {
			return remaining
		}
	}
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func retryable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
