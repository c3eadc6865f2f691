package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"time"
)

// DetectResidentPort scans the port range and returns (port, true) if a resident responds to PING.
func DetectResidentPort(ctx context.Context) (int, bool) {
	timeout := dialTimeout(ctx, 300*time.Millisecond)
	start, end := PortRange()
	for port := start; port <= end; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if ping(residentAddr(port), timeout) {
			return port, true
		}
	}
	return 0, false
}

func residentAddr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}

// dialTimeout is the time left on ctx, or def when ctx has no deadline.
func dialTimeout(ctx context.Context, def time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < def {
			return d
		}
	}
	return def
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(pingRequest); err != nil {
		return false
	}
	if err := w.Flush(); err != nil {
		return false
	}
	br := bufio.NewReader(conn)
	resp, err := br.ReadString('\n')
	return err == nil && resp == pongResponse
}
