package singleinstance

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"

	handshakeTimeout = 3 * time.Second
	maxRequestBytes  = 1 << 20
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	mu       sync.Mutex
	lis      net.Listener
	port     int
	incoming chan *tcpConn
	done     chan struct{}
	once     sync.Once
}

func newTCPServer() *tcpServer {
	return &tcpServer{incoming: make(chan *tcpConn, 8), done: make(chan struct{})}
}

// Start binds ONLY the start port of the configured range. If occupied, fail.
func (s *tcpServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	start, _ := PortRange()
	addr := residentAddr(start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		return err
	}
	s.lis = lis
	s.port = start
	log.Printf("singleinstance: listening on %s", addr)
	go s.acceptLoop(ctx, lis)
	return nil
}

// Port returns the bound port (0 if not started).
func (s *tcpServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *tcpServer) acceptLoop(ctx context.Context, lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		tc, ok := s.handshake(c)
		if !ok {
			continue
		}
		select {
		case s.incoming <- tc:
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-s.done:
			_ = c.Close()
			return
		}
	}
}

// handshake reads the first line. PING is answered inline; anything else
// must be a JSON Request.
func (s *tcpServer) handshake(c net.Conn) (*tcpConn, bool) {
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(handshakeTimeout))
	br := bufio.NewReaderSize(c, 4096)
	bw := bufio.NewWriter(c)
	line, err := readLine(br)
	if err != nil {
		_ = c.Close()
		return nil, false
	}
	if line+"\n" == pingRequest {
		log.Printf("singleinstance: PING from %s -> PONG", remote)
		_, _ = bw.WriteString(pongResponse)
		_ = bw.Flush()
		_ = c.Close()
		return nil, false
	}

	tc := &tcpConn{c: c, w: bw}
	if err := json.Unmarshal([]byte(line), &tc.r); err != nil || tc.r.Op == "" {
		log.Printf("singleinstance: malformed request from %s", remote)
		_ = tc.RespondError("malformed request")
		_ = c.Close()
		return nil, false
	}
	_ = c.SetDeadline(time.Time{})
	log.Printf("singleinstance: request from %s op=%s", remote, tc.r.Op)
	return tc, true
}

func readLine(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := br.ReadString('\n')
		sb.WriteString(chunk)
		if sb.Len() > maxRequestBytes {
			return "", fmt.Errorf("request exceeds %d bytes", maxRequestBytes)
		}
		if err != nil {
			return "", err
		}
		if strings.HasSuffix(chunk, "\n") {
			return strings.TrimRight(sb.String(), "\r\n"), nil
		}
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, net.ErrClosed
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		_ = s.lis.Close()
		s.lis = nil
		s.port = 0
	}
	return nil
}

type tcpConn struct {
	c  net.Conn
	r  Request
	mu sync.Mutex
	w  *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) Respond(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if _, err := tc.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	return tc.Respond(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{false, msg})
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
