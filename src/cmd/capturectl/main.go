package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"screen-ocr-assist/src/service"
	"screen-ocr-assist/src/singleinstance"
)

// errNoResident is returned when no resident answers on the port range.
var errNoResident = errors.New("no resident instance is running")

type ctlOptions struct {
	timeout time.Duration
	jsonOut bool
}

type stressOptions struct {
	n        int
	mode     string
	deadline time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cmd := newRootCmd(&ctlOptions{}, singleinstance.NewClient(), os.Stdout)
	return cmd.Execute()
}

func newRootCmd(opts *ctlOptions, client singleinstance.Client, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "capturectl",
		Short:         "Drive a running screen-ocr-assist instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "how long to wait for the resident")
	cmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print the raw JSON response")

	call := func(op string, argFn func(args []string) string) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			return callResident(c.Context(), client, c.OutOrStdout(), *opts, singleinstance.Request{Op: op, Arg: argFn(args)})
		}
	}
	none := func([]string) string { return "" }
	first := func(args []string) string {
		if len(args) == 0 {
			return ""
		}
		return args[0]
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start [interval]",
			Short: "Start repeating capture (seconds, or 'manual' to only prepare OCR)",
			Args:  cobra.MaximumNArgs(1),
			RunE:  call(singleinstance.OpStartCapture, first),
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop repeating capture",
			Args:  cobra.NoArgs,
			RunE:  call(singleinstance.OpStopCapture, none),
		},
		&cobra.Command{
			Use:   "single [region|full-screen]",
			Short: "Capture once and print the recognized text",
			Args:  cobra.MaximumNArgs(1),
			RunE:  call(singleinstance.OpCaptureSingle, first),
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Stop capturing and release OCR resources",
			Args:  cobra.NoArgs,
			RunE:  call(singleinstance.OpCleanup, none),
		},
		&cobra.Command{
			Use:   "send <text>",
			Short: "Send text to the active assistant session",
			Args:  cobra.MinimumNArgs(1),
			RunE:  call(singleinstance.OpSendText, func(args []string) string { return strings.Join(args, " ") }),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print whether the resident is capturing",
			Args:  cobra.NoArgs,
			RunE:  call(singleinstance.OpStatus, none),
		},
		newStressCmd(&stressOptions{}, client),
	)

	return cmd
}

func callResident(ctx context.Context, client singleinstance.Client, out io.Writer, opts ctlOptions, req singleinstance.Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	var resp service.Response
	delegated, err := client.Call(ctx, req, &resp)
	if err != nil {
		return fmt.Errorf("%s: %w", req.Op, err)
	}
	if !delegated {
		return errNoResident
	}
	if opts.jsonOut {
		return printJSON(out, resp)
	}
	if !resp.Success {
		return fmt.Errorf("%s: %s", req.Op, resp.Error)
	}
	if resp.Text != "" {
		fmt.Fprintln(out, resp.Text)
	}
	return nil
}

func printJSON(out io.Writer, resp service.Response) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func newStressCmd(opts *stressOptions, client singleinstance.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Stress test single-capture delegation",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return runStress(client, c.OutOrStdout(), *opts)
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.mode, "mode", "full-screen", "region|full-screen")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

type stressCounts struct {
	ok, busy, failed int32
}

func runStress(client singleinstance.Client, out io.Writer, opts stressOptions) error {
	var wg sync.WaitGroup
	var counts stressCounts

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			var resp service.Response
			delegated, err := client.Call(ctx, singleinstance.Request{Op: singleinstance.OpCaptureSingle, Arg: opts.mode}, &resp)
			switch {
			case err != nil || !delegated:
				atomic.AddInt32(&counts.failed, 1)
			case resp.Success:
				atomic.AddInt32(&counts.ok, 1)
			case strings.Contains(strings.ToLower(resp.Error), "busy"):
				atomic.AddInt32(&counts.busy, 1)
			default:
				atomic.AddInt32(&counts.failed, 1)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	fmt.Fprintf(out, "launched=%d ok=%d busy=%d err=%d elapsed=%s\n", opts.n, counts.ok, counts.busy, counts.failed, elapsed.Round(time.Millisecond))
	return nil
}
