package singleinstance

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

type tcpClient struct{}

func (c *tcpClient) Call(ctx context.Context, req Request, out any) (bool, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return false, fmt.Errorf("encode request: %w", err)
	}
	timeout := dialTimeout(ctx, 2*time.Second)
	start, end := PortRange()
	for port := start; port <= end; port++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		addr := residentAddr(port)
		if !ping(addr, timeout) {
			continue
		}
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			continue
		}
		return true, exchange(ctx, conn, line, out)
	}
	return false, nil
}

// exchange sends one request line and decodes one response line. The reply
// may take as long as the operation does; ctx bounds it.
func exchange(ctx context.Context, conn net.Conn, line []byte, out any) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.Write(append(line, '\n')); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	resp, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read response: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
