package eventloop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"screen-ocr-assist/src/service"
	"screen-ocr-assist/src/session"
	"screen-ocr-assist/src/singleinstance"
)

type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	capturing bool
	release   chan struct{} // when set, CaptureSingle blocks until closed
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) StartCapture(ctx context.Context, interval string) service.Response {
	f.record("start:" + interval)
	f.mu.Lock()
	f.capturing = true
	f.mu.Unlock()
	return service.Response{Success: true}
}

func (f *fakeBackend) StopCapture() service.Response {
	f.record("stop")
	f.mu.Lock()
	f.capturing = false
	f.mu.Unlock()
	return service.Response{Success: true}
}

func (f *fakeBackend) CaptureSingle(ctx context.Context, mode string) service.Response {
	f.record("single:" + mode)
	if f.release != nil {
		<-f.release
	}
	return service.Response{Success: true, Text: "captured"}
}

func (f *fakeBackend) Cleanup() service.Response {
	f.record("cleanup")
	return service.Response{Success: true}
}

func (f *fakeBackend) SendText(ctx context.Context, text string) service.Response {
	f.record("send:" + text)
	return service.Response{Success: true}
}

func (f *fakeBackend) Capturing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capturing
}

type fakeConn struct {
	req    singleinstance.Request
	respCh chan service.Response
}

func newFakeConn(op, arg string) *fakeConn {
	return &fakeConn{req: singleinstance.Request{Op: op, Arg: arg}, respCh: make(chan service.Response, 1)}
}

func (c *fakeConn) Request() singleinstance.Request { return c.req }
func (c *fakeConn) Respond(v any) error {
	c.respCh <- v.(service.Response)
	return nil
}
func (c *fakeConn) RespondError(msg string) error {
	c.respCh <- service.Response{Error: msg}
	return nil
}
func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) wait(t *testing.T) service.Response {
	t.Helper()
	select {
	case r := <-c.respCh:
		return r
	case <-time.After(3 * time.Second):
		t.Fatalf("no response for %s", c.req.Op)
		return service.Response{}
	}
}

type fakeServer struct {
	conns chan singleinstance.Conn
}

func (s *fakeServer) Start(ctx context.Context) error { return nil }
func (s *fakeServer) Port() int                       { return 49500 }
func (s *fakeServer) Close() error                    { return nil }
func (s *fakeServer) Next(ctx context.Context) (singleinstance.Conn, error) {
	select {
	case c := <-s.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type statusLog struct {
	mu   sync.Mutex
	msgs []string
}

func (s *statusLog) SendToRenderer(event, message string) {
	s.mu.Lock()
	s.msgs = append(s.msgs, message)
	s.mu.Unlock()
}

func runLoop(t *testing.T, backend *fakeBackend, reporter session.StatusReporter) (*Loop, *fakeServer) {
	t.Helper()
	srv := &fakeServer{conns: make(chan singleinstance.Conn)}
	port := 0
	l := New(backend, Options{Server: srv, Reporter: reporter, OnPort: func(p int) { port = p }})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
		if port != 49500 {
			t.Errorf("OnPort not called with bound port, got %d", port)
		}
	})
	return l, srv
}

func TestDelegatedCaptureSingle(t *testing.T) {
	backend := &fakeBackend{}
	_, srv := runLoop(t, backend, nil)

	conn := newFakeConn(singleinstance.OpCaptureSingle, "region")
	srv.conns <- conn
	resp := conn.wait(t)
	if !resp.Success || resp.Text != "captured" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if calls := backend.callList(); len(calls) != 1 || calls[0] != "single:region" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestBusyRejectsSecondRequest(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{})}
	_, srv := runLoop(t, backend, nil)

	first := newFakeConn(singleinstance.OpCaptureSingle, "full-screen")
	srv.conns <- first
	// wait until the first request is running
	deadline := time.Now().Add(3 * time.Second)
	for len(backend.callList()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	second := newFakeConn(singleinstance.OpCleanup, "")
	srv.conns <- second
	if resp := second.wait(t); resp.Success || resp.Error != "Busy, please retry" {
		t.Fatalf("expected busy, got %+v", resp)
	}

	close(backend.release)
	if resp := first.wait(t); !resp.Success {
		t.Fatalf("first request failed: %+v", resp)
	}

	third := newFakeConn(singleinstance.OpCleanup, "")
	srv.conns <- third
	if resp := third.wait(t); !resp.Success {
		t.Fatalf("expected cleanup after busy cleared, got %+v", resp)
	}
}

func TestStatusAndStopAreImmediate(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{})}
	defer close(backend.release)
	_, srv := runLoop(t, backend, nil)

	start := newFakeConn(singleinstance.OpStartCapture, "5")
	srv.conns <- start
	if resp := start.wait(t); !resp.Success {
		t.Fatal(resp.Error)
	}

	// keep the worker busy; status and stop still answer
	srv.conns <- newFakeConn(singleinstance.OpCaptureSingle, "region")
	status := newFakeConn(singleinstance.OpStatus, "")
	srv.conns <- status
	if resp := status.wait(t); resp.Text != "capturing" {
		t.Fatalf("expected capturing, got %+v", resp)
	}
	stop := newFakeConn(singleinstance.OpStopCapture, "")
	srv.conns <- stop
	if resp := stop.wait(t); !resp.Success {
		t.Fatal(resp.Error)
	}
}

func TestUnknownOperation(t *testing.T) {
	_, srv := runLoop(t, &fakeBackend{}, nil)
	conn := newFakeConn("reboot", "")
	srv.conns <- conn
	if resp := conn.wait(t); resp.Success || resp.Error != "unknown operation reboot" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestLocalCommandBusyIsReported(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{})}
	status := &statusLog{}
	l, _ := runLoop(t, backend, status)

	l.Post(singleinstance.Request{Op: singleinstance.OpCaptureSingle, Arg: "region"})
	deadline := time.Now().Add(3 * time.Second)
	for len(backend.callList()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	l.Post(singleinstance.Request{Op: singleinstance.OpSendText, Arg: "hi"})

	for time.Now().Before(deadline) {
		status.mu.Lock()
		n := len(status.msgs)
		status.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	status.mu.Lock()
	msgs := append([]string(nil), status.msgs...)
	status.mu.Unlock()
	if len(msgs) != 1 || msgs[0] != "Busy, please retry" {
		t.Fatalf("expected busy status, got %v", msgs)
	}
	close(backend.release)
}

func TestStateChangeFollowsCommands(t *testing.T) {
	backend := &fakeBackend{}
	srv := &fakeServer{conns: make(chan singleinstance.Conn)}
	states := make(chan bool, 8)
	l := New(backend, Options{Server: srv, OnStateChange: func(c bool) { states <- c }})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for _, tc := range []struct {
		op   string
		want bool
	}{
		{singleinstance.OpStartCapture, true},
		{singleinstance.OpStopCapture, false},
	} {
		conn := newFakeConn(tc.op, "5")
		srv.conns <- conn
		conn.wait(t)
		select {
		case got := <-states:
			if got != tc.want {
				t.Fatalf("%s: expected capturing=%v, got %v", tc.op, tc.want, got)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("%s: no state change reported", tc.op)
		}
	}
}
