package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"screen-ocr-assist/src/config"
	"screen-ocr-assist/src/eventloop"
	"screen-ocr-assist/src/logutil"
	"screen-ocr-assist/src/ocr/tesseract"
	"screen-ocr-assist/src/runtimeinit"
	"screen-ocr-assist/src/service"
	"screen-ocr-assist/src/session"
	"screen-ocr-assist/src/singleinstance"
	"screen-ocr-assist/src/tray"
)

const appTitle = "Screen OCR Assist"

type mainOptions struct {
	runOnce    bool
	mode       string
	interval   string
	sink       string
	apiKeyPath string
}

// delegator is the part of singleinstance.Client used for run-once.
type delegator interface {
	Call(ctx context.Context, req singleinstance.Request, out any) (bool, error)
}

func main() {
	// systray and the overlay window want a stable OS thread
	runtime.LockOSThread()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := normalizeLegacyArgs(os.Args)
	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-ocr-assist",
		Short:         "Capture screen text and feed it to an assistant session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(*opts)
		},
	}

	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Capture once (delegating to a running instance if any) and exit")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Capture mode for run-once: region|full-screen")
	cmd.Flags().StringVar(&opts.interval, "interval", "", "Repeating capture interval in seconds, or 'manual'")
	cmd.Flags().StringVar(&opts.sink, "sink", "", "Session sink: assistant|clipboard|stdout|none")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")

	return cmd
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		APIKeyPathOverride:  o.apiKeyPath,
		DefaultModeOverride: o.mode,
		IntervalOverride:    o.interval,
		SinkOverride:        o.sink,
	}
}

func runWithOptions(opts mainOptions) error {
	if opts.runOnce {
		// Load .env early so SINGLEINSTANCE_PORT_* are applied before delegation scan
		cfg, err := config.LoadWithOptions(opts.loadOptions())
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logutil.Setup(cfg.EnableFileLogging)
		return handleRunOnceWithDelegation(cfg.DefaultMode, singleinstance.NewClient(), func() error {
			return runStandaloneOnce(opts)
		})
	}
	return runResident(opts)
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return []string{"screen-ocr-assist"}
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"run-once", "mode", "interval", "sink", "api-key-path"} {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}

	return normalized
}

// handleRunOnceWithDelegation asks a resident to capture; without one it
// runs fallback in this process.
func handleRunOnceWithDelegation(mode string, client delegator, fallback func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var resp service.Response
	delegated, err := client.Call(ctx, singleinstance.Request{Op: singleinstance.OpCaptureSingle, Arg: mode}, &resp)
	if err != nil {
		log.Printf("Delegation error: %v; falling back to standalone", err)
		return fallback()
	}
	if !delegated {
		log.Printf("No resident detected (not delegated), running standalone")
		return fallback()
	}
	log.Printf("Delegated to resident")
	return printResponse(resp)
}

func printResponse(resp service.Response) error {
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Print(resp.Text)
	return nil
}

func runStandaloneOnce(opts mainOptions) error {
	comps, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:  opts.loadOptions(),
		SetupLogging: logutil.Setup,
		NewBackend:   tesseract.New,
	})
	if err != nil {
		return err
	}
	defer comps.Close()

	log.Printf("Running capture once (mode=%s)", comps.Config.DefaultMode)
	resp := comps.Service.CaptureSingle(context.Background(), comps.Config.DefaultMode)
	log.Printf("Run-once result: success=%v chars=%d", resp.Success, len(resp.Text))
	if resp.Success && comps.Config.Sink == config.SinkStdout {
		// the stdout session already printed the framed text
		return nil
	}
	return printResponse(resp)
}

func runResident(opts mainOptions) error {
	enableDPIAwareness()

	// Load .env early so SINGLEINSTANCE_PORT_* are available for pre-flight
	_, _ = config.LoadWithOptions(opts.loadOptions())
	startPort, _ := singleinstance.PortRange()
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", startPort))
	if err != nil {
		return fmt.Errorf("an instance is already running on port %d", startPort)
	}
	// We claimed the port; release it so the event loop can re-bind.
	_ = listener.Close()
	log.Printf("Pre-flight: port %d free", startPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loop *eventloop.Loop
	post := func(op, arg string) func() {
		return func() { loop.Post(singleinstance.Request{Op: op, Arg: arg}) }
	}

	var startArg string
	trayIcon := tray.New(tray.Config{
		Title:           appTitle,
		OnStart:         func() { loop.Post(singleinstance.Request{Op: singleinstance.OpStartCapture, Arg: startArg}) },
		OnStop:          post(singleinstance.OpStopCapture, ""),
		OnCaptureRegion: post(singleinstance.OpCaptureSingle, config.ModeRegion),
		OnCaptureFull:   post(singleinstance.OpCaptureSingle, config.ModeFullScreen),
		OnCleanup:       post(singleinstance.OpCleanup, ""),
		OnExit:          cancel,
	})

	comps, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:        opts.loadOptions(),
		SetupLogging:       logutil.Setup,
		ShowBlockingErrors: true,
		NewBackend:         tesseract.New,
		Reporters:          []session.StatusReporter{trayIcon},
	})
	if err != nil {
		return err
	}
	defer comps.Close()
	cfg := comps.Config
	logMonitorConfiguration()
	log.Printf("OCR: tesseract %s (language=%s)", tesseract.Version(), cfg.OCRLanguage)

	startArg = cfg.CaptureInterval
	if strings.EqualFold(startArg, config.IntervalManual) {
		startArg = fmt.Sprint(config.DefaultIntervalSecs)
	}

	trayIcon.SetAbout(fmt.Sprintf("%s\n\nRegion capture: %s\nFull-screen capture: %s\nInterval: %s\nSink: %s",
		appTitle, cfg.Hotkey, cfg.FullHotkey, cfg.CaptureInterval, cfg.Sink))

	loop = eventloop.New(comps.Service, eventloop.Options{
		Server:        singleinstance.NewServer(),
		Reporter:      session.Reporters{session.LogReporter{}, trayIcon},
		OnStateChange: trayIcon.SetCapturing,
		OnPort: func(port int) {
			log.Printf("Resident TCP port: %d", port)
		},
	})
	loop.StartHotkey(cfg.Hotkey, singleinstance.Request{Op: singleinstance.OpCaptureSingle, Arg: config.ModeRegion})
	loop.StartHotkey(cfg.FullHotkey, singleinstance.Request{Op: singleinstance.OpCaptureSingle, Arg: config.ModeFullScreen})
	// "manual" only prepares OCR; a number starts the schedule right away.
	loop.Post(singleinstance.Request{Op: singleinstance.OpStartCapture, Arg: cfg.CaptureInterval})

	log.Printf("%s initialized: sink=%s model=%s hotkeys=%s/%s", appTitle, cfg.Sink, cfg.Model, cfg.Hotkey, cfg.FullHotkey)

	// Handle SIGINT/SIGTERM
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			trayIcon.Quit()
		case <-ctx.Done():
		}
	}()

	loopDone := make(chan error, 1)
	go func() {
		err := loop.Run(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("event loop stopped: %v", err)
			trayIcon.Quit()
		}
		loopDone <- err
	}()

	trayIcon.Run()
	cancel()
	if err := <-loopDone; err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
