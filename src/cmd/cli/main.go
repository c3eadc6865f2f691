package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screen-ocr-assist/src/config"
	"screen-ocr-assist/src/enhance"
	"screen-ocr-assist/src/ocr"
	"screen-ocr-assist/src/ocr/tesseract"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

type cliOptions struct {
	filePath   string
	jsonOutput bool
	verbose    bool
	raw        bool
	language   string
}

// tool carries the process boundaries so tests can swap them.
type tool struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	newBackend ocr.BackendFactory
	now        func() time.Time
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	t := &tool{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, newBackend: tesseract.New, now: time.Now}
	return t.runWithArgs(normalizeLegacyArgs(os.Args))
}

func (t *tool) runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"ocr-tool"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts, t)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions, t *tool) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ocr-tool",
		Short:         "Run the capture enhancement chain and OCR on a PNG or JPEG image",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return t.runWithOptions(*opts)
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG or JPEG file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Skip grayscale/contrast/normalize enhancement")
	cmd.Flags().StringVar(&opts.language, "lang", "", "Tesseract language (default from OCR_LANGUAGE or eng)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func (t *tool) logf(verbose bool, format string, args ...any) {
	if verbose {
		fmt.Fprintf(t.stderr, "[verbose] "+format+"\n", args...)
	}
}

func (t *tool) runWithOptions(opts cliOptions) error {
	// Configure logging BEFORE any other operations.
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(t.stderr)
		t.logf(true, "Starting OCR tool")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	lang := opts.language
	if lang == "" {
		lang = cfg.OCRLanguage
	}
	t.logf(opts.verbose, "Config loaded: language=%s quality=%d", lang, cfg.JPEGQuality)

	imageData, err := t.readInput(opts.filePath, opts.verbose)
	if err != nil {
		return err
	}
	if err := validateImage(imageData); err != nil {
		return err
	}
	t.logf(opts.verbose, "Image validation passed (%d bytes)", len(imageData))

	if !opts.raw {
		imageData, err = enhance.Enhance(imageData, enhance.Options{Quality: cfg.JPEGQuality})
		if err != nil {
			return err
		}
		t.logf(opts.verbose, "Enhanced image: %d bytes", len(imageData))
	}

	return t.performOCR(imageData, opts.filePath, lang, opts.jsonOutput, opts.verbose)
}

func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range []string{"file", "json", "verbose", "raw", "lang"} {
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

func (t *tool) readInput(filePath string, verbose bool) ([]byte, error) {
	var imageData []byte
	var err error

	if filePath == "-" {
		t.logf(verbose, "Reading image from stdin")
		imageData, err = io.ReadAll(io.LimitReader(t.stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		t.logf(verbose, "Reading image from file: %s", filePath)
		imageData, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}

	if len(imageData) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(imageData) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return imageData, nil
}

func validateImage(data []byte) error {
	if bytes.HasPrefix(data, pngMagic) || bytes.HasPrefix(data, jpegMagic) {
		return nil
	}
	return fmt.Errorf("input is not a valid PNG or JPEG file (invalid magic number)")
}

func (t *tool) performOCR(imageData []byte, sourcePath, lang string, jsonOutput, verbose bool) error {
	scratch, err := os.MkdirTemp("", "ocr-tool-")
	if err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	engine := ocr.New(ocr.Options{Language: lang, ScratchDir: scratch, NewBackend: t.newBackend})
	defer func() {
		if err := engine.Cleanup(); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}()

	ctx := context.Background()
	startTime := t.now()
	if err := engine.Initialize(ctx); err != nil {
		return err
	}
	text, err := engine.Recognize(ctx, imageData)
	elapsed := t.now().Sub(startTime)
	if err != nil {
		t.logf(verbose, "OCR failed after %v: %v", elapsed, err)
		return fmt.Errorf("OCR failed: %w", err)
	}
	t.logf(verbose, "OCR completed in %v, extracted %d characters", elapsed, len(text))

	return t.outputResult(text, sourcePath, elapsed, jsonOutput)
}

type OCRResult struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func (t *tool) outputResult(text, sourcePath string, elapsed time.Duration, jsonOutput bool) error {
	if !jsonOutput {
		fmt.Fprint(t.stdout, text)
		return nil
	}

	result := OCRResult{
		Text:      text,
		Source:    sourcePath,
		Timestamp: t.now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		CharCount: len(text),
	}
	encoder := json.NewEncoder(t.stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
