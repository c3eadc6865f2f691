package eventloop

import (
	"context"
	"errors"
	"log"

	"screen-ocr-assist/src/hotkey"
	"screen-ocr-assist/src/service"
	"screen-ocr-assist/src/session"
	"screen-ocr-assist/src/singleinstance"
	"screen-ocr-assist/src/worker"
)

// ErrBusy is reported when a long operation is already running.
var ErrBusy = errors.New("Busy, please retry")

// Backend is the boundary service the loop dispatches to.
type Backend interface {
	StartCapture(ctx context.Context, interval string) service.Response
	StopCapture() service.Response
	CaptureSingle(ctx context.Context, mode string) service.Response
	Cleanup() service.Response
	SendText(ctx context.Context, text string) service.Response
	Capturing() bool
}

type Options struct {
	// Server accepts delegated requests; nil disables IPC.
	Server singleinstance.Server
	// Reporter receives busy notices for local (hotkey/tray) commands.
	Reporter session.StatusReporter
	// OnPort is called once the server is bound.
	OnPort func(port int)
	// OnStateChange receives the capturing state after every finished command.
	OnStateChange func(capturing bool)
}

// Loop is the single-threaded coordinator for IPC requests, hotkeys and tray actions.
// Long operations run on a one-worker pool; the loop itself never blocks on them.
type Loop struct {
	svc      Backend
	srv      singleinstance.Server
	reporter session.StatusReporter
	onPort   func(int)
	onState  func(bool)
	pool     *worker.Pool
	busy     bool
	commands chan command
	results  chan result
	unhook   []func()
}

type command struct {
	req  singleinstance.Request
	conn singleinstance.Conn // nil for local commands
}

type result struct {
	cmd  command
	resp service.Response
}

func New(svc Backend, opts Options) *Loop {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = session.LogReporter{}
	}
	return &Loop{
		svc:      svc,
		srv:      opts.Server,
		reporter: reporter,
		onPort:   opts.OnPort,
		onState:  opts.OnStateChange,
		pool:     worker.New(1),
		commands: make(chan command, 4),
		results:  make(chan result, 1),
	}
}

// Post queues a local command. Commands are dropped when the queue is full.
func (l *Loop) Post(req singleinstance.Request) bool {
	select {
	case l.commands <- command{req: req}:
		return true
	default:
		log.Printf("eventloop: command queue full, dropping %s", req.Op)
		return false
	}
}

// StartHotkey registers a global hotkey that posts req into the loop.
func (l *Loop) StartHotkey(combo string, req singleinstance.Request) {
	if combo == "" {
		return
	}
	stop, err := hotkey.Listen(combo, func() { l.Post(req) })
	if err != nil {
		log.Printf("eventloop: hotkey %q not registered: %v", combo, err)
		return
	}
	log.Printf("eventloop: hotkey %s -> %s %s", combo, req.Op, req.Arg)
	l.unhook = append(l.unhook, stop)
}

// Run processes commands until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		for _, stop := range l.unhook {
			stop()
		}
		l.pool.Close()
	}()

	var reqCh chan singleinstance.Conn
	if l.srv != nil {
		if err := l.srv.Start(ctx); err != nil {
			return err
		}
		defer l.srv.Close()
		if p := l.srv.Port(); p > 0 {
			log.Printf("Resident listening on 127.0.0.1:%d", p)
			if l.onPort != nil {
				l.onPort(p)
			}
		}
		// Accept loop in background to avoid blocking result handling
		reqCh = make(chan singleinstance.Conn, 4)
		go func() {
			defer close(reqCh)
			for {
				conn, err := l.srv.Next(ctx)
				if err != nil {
					return
				}
				reqCh <- conn
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-l.commands:
			l.dispatch(ctx, cmd)
		case conn, ok := <-reqCh:
			if !ok {
				reqCh = nil
				continue
			}
			l.dispatch(ctx, command{req: conn.Request(), conn: conn})
		case res := <-l.results:
			l.busy = false
			l.finish(res.cmd, res.resp)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, cmd command) {
	switch cmd.req.Op {
	case singleinstance.OpStatus:
		state := "idle"
		if l.svc.Capturing() {
			state = "capturing"
		}
		l.finish(cmd, service.Response{Success: true, Text: state})
		return
	case singleinstance.OpStopCapture:
		l.finish(cmd, l.svc.StopCapture())
		return
	case singleinstance.OpStartCapture, singleinstance.OpCaptureSingle, singleinstance.OpCleanup, singleinstance.OpSendText:
	default:
		l.finish(cmd, service.Response{Error: "unknown operation " + cmd.req.Op})
		return
	}

	if l.busy {
		l.rejectBusy(cmd)
		return
	}
	l.busy = true
	submitted := l.pool.Submit(ctx, func(ctx context.Context) {
		resp := l.execute(ctx, cmd.req)
		select {
		case l.results <- result{cmd: cmd, resp: resp}:
		case <-ctx.Done():
			l.finish(cmd, service.Response{Error: ctx.Err().Error()})
		}
	})
	if !submitted {
		l.busy = false
		l.rejectBusy(cmd)
	}
}

func (l *Loop) execute(ctx context.Context, req singleinstance.Request) service.Response {
	switch req.Op {
	case singleinstance.OpStartCapture:
		return l.svc.StartCapture(ctx, req.Arg)
	case singleinstance.OpCaptureSingle:
		return l.svc.CaptureSingle(ctx, req.Arg)
	case singleinstance.OpCleanup:
		return l.svc.Cleanup()
	default:
		return l.svc.SendText(ctx, req.Arg)
	}
}

func (l *Loop) rejectBusy(cmd command) {
	log.Printf("eventloop: busy, rejecting %s", cmd.req.Op)
	if cmd.conn == nil {
		l.reporter.SendToRenderer(session.EventUpdateStatus, ErrBusy.Error())
	}
	l.finish(cmd, service.Response{Error: ErrBusy.Error()})
}

// finish answers a delegated request, or logs the outcome of a local one.
func (l *Loop) finish(cmd command, resp service.Response) {
	if l.onState != nil {
		l.onState(l.svc.Capturing())
	}
	if cmd.conn == nil {
		if !resp.Success {
			log.Printf("eventloop: %s failed: %s", cmd.req.Op, resp.Error)
		}
		return
	}
	if err := cmd.conn.Respond(resp); err != nil {
		log.Printf("eventloop: failed to answer %s: %v", cmd.req.Op, err)
	}
	_ = cmd.conn.Close()
}
