package runtimeinit

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"screen-ocr-assist/src/assistant"
	"screen-ocr-assist/src/clipboard"
	"screen-ocr-assist/src/config"
	"screen-ocr-assist/src/notification"
	"screen-ocr-assist/src/ocr"
	"screen-ocr-assist/src/overlay"
	"screen-ocr-assist/src/pipeline"
	"screen-ocr-assist/src/scheduler"
	"screen-ocr-assist/src/screenshot"
	"screen-ocr-assist/src/service"
	"screen-ocr-assist/src/session"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(bool)
	// ShowBlockingErrors pops a dialog for startup failures.
	ShowBlockingErrors bool

	// NewBackend builds the OCR backend. Required.
	NewBackend ocr.BackendFactory
	// Display overrides the system display (tests).
	Display screenshot.Display
	// Driver overrides the region selection driver.
	Driver overlay.Driver
	// Reporters receive status and assistant replies in addition to the log.
	Reporters []session.StatusReporter
	// Stdout is where the stdout sink writes; defaults to os.Stdout.
	Stdout io.Writer
}

// Components is the wired application. The scheduler, engine and service are
// constructed once and shared by reference.
type Components struct {
	Config    *config.Config
	Source    *screenshot.Source
	Engine    *ocr.Engine
	Selector  *overlay.Selector
	Ref       *session.Ref
	Sink      *session.Sink
	Scheduler *scheduler.Scheduler
	Service   *service.Service
}

func Bootstrap(opts Options) (*Components, error) {
	if opts.NewBackend == nil {
		return nil, errors.New("no OCR backend configured")
	}
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	reporter := session.Reporters(append([]session.StatusReporter{session.LogReporter{}}, opts.Reporters...))

	ref := &session.Ref{}
	if err := attachSession(cfg, ref, reporter, opts.Stdout); err != nil {
		if opts.ShowBlockingErrors {
			notification.ShowBlockingError("Assistant unavailable", fmt.Sprintf("Startup check failed: %v\n\nPlease verify your configuration.", err))
		}
		return nil, err
	}

	src := screenshot.NewSource()
	if opts.Display != nil {
		src = screenshot.NewSourceWithDisplay(opts.Display)
	}
	driver := opts.Driver
	if driver == nil {
		driver = overlay.NewDriver(src)
	}
	selector := overlay.NewSelector(driver, overlay.Options{
		Timeout: time.Duration(cfg.SelectionTimeoutSec) * time.Second,
	})

	engine := ocr.New(ocr.Options{
		Language:   cfg.OCRLanguage,
		ScratchDir: cfg.ScratchDir,
		NewBackend: opts.NewBackend,
	})
	sink := session.NewSink(ref, reporter)
	sched := scheduler.New(pipeline.New(src), engine, selector, sink, scheduler.Options{
		MinContentChars:       cfg.MinContentChars,
		SingleMinContentChars: cfg.SingleMinContentChars,
		Quality:               cfg.JPEGQuality,
		CycleDeadline:         time.Duration(cfg.CycleDeadlineSec) * time.Second,
	})
	svc := service.New(sched, engine, sink, service.Options{DefaultMode: pipeline.Mode(cfg.DefaultMode)})

	log.Printf("Bootstrap: sink=%s mode=%s interval=%s ocr=%s scratch=%s",
		cfg.Sink, cfg.DefaultMode, cfg.CaptureInterval, cfg.OCRLanguage, cfg.ScratchDir)

	return &Components{
		Config:    cfg,
		Source:    src,
		Engine:    engine,
		Selector:  selector,
		Ref:       ref,
		Sink:      sink,
		Scheduler: sched,
		Service:   svc,
	}, nil
}

// Close stops the schedule, waits for the running cycle and releases OCR.
func (c *Components) Close() {
	c.Scheduler.Close()
	if resp := c.Service.Cleanup(); !resp.Success {
		log.Printf("Shutdown cleanup failed: %s", resp.Error)
	}
}

func attachSession(cfg *config.Config, ref *session.Ref, reporter session.StatusReporter, stdout io.Writer) error {
	switch cfg.Sink {
	case config.SinkAssistant:
		if cfg.APIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required. Checked key file %s and OPENROUTER_API_KEY env var", cfg.APIKeyPath)
		}
		if cfg.Model == "" {
			return fmt.Errorf("MODEL is required. Please set it in your .env file")
		}
		s, err := assistant.New(assistant.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Providers: cfg.Providers,
		}, func(reply string) {
			reporter.SendToRenderer(session.EventAssistantReply, reply)
		})
		if err != nil {
			return err
		}
		ref.Attach(s)
	case config.SinkClipboard:
		if err := clipboard.Init(); err != nil {
			return fmt.Errorf("failed to initialize clipboard: %w", err)
		}
		ref.Attach(session.ClipboardSession{})
	case config.SinkStdout:
		if stdout == nil {
			stdout = os.Stdout
		}
		ref.Attach(session.NewWriterSession(stdout))
	case config.SinkNone:
		log.Printf("Bootstrap: no session attached")
	default:
		return fmt.Errorf("unknown session sink %q", cfg.Sink)
	}
	return nil
}
