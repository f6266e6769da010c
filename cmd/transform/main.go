package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/saviobatista/globe-worker/internal/codec"
	"github.com/saviobatista/globe-worker/internal/nats"
	"github.com/saviobatista/globe-worker/internal/transform"
	"github.com/saviobatista/globe-worker/internal/types"
)

// options holds the parsed command line flags
type options struct {
	in              string
	codec           string
	requirePosition bool
	natsURL         string
	timeout         time.Duration
}

// Requester sends a states batch to a running worker
type Requester interface {
	Request(ctx context.Context, data []byte) ([]byte, error)
	Close() error
}

// newRequester is replaced in tests
var newRequester = func(url string) (Requester, error) {
	return nats.New(url)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("globe-transform", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{}
	fs.StringVar(&opts.in, "in", "", "Input file with a states batch (default stdin)")
	fs.StringVar(&opts.codec, "codec", codec.NameJSON, "Wire codec: json or msgpack")
	fs.BoolVar(&opts.requirePosition, "require-position", false, "Also drop vectors without latitude and longitude")
	fs.StringVar(&opts.natsURL, "nats", "", "Send the batch to a running worker at this NATS URL instead of transforming locally")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Request timeout when using -nats")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is an operator-supplied flag
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return data, nil
}

// transformLocal decodes, transforms and re-encodes a batch in process
func transformLocal(c codec.Codec, data []byte, opts transform.Options) ([]byte, error) {
	msg, err := c.DecodeStates(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode states: %w", err)
	}

	points := transform.Transform(msg.States, opts)

	out, err := c.EncodePoints(&types.PointsMessage{Points: points})
	if err != nil {
		return nil, fmt.Errorf("failed to encode points: %w", err)
	}
	return out, nil
}

// transformRemote forwards a batch to a worker over request/reply
func transformRemote(ctx context.Context, url string, data []byte, timeout time.Duration) ([]byte, error) {
	client, err := newRequester(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("Warning: Failed to close NATS client: %v", err)
		}
	}()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Request(reqCtx, data)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	c, err := codec.New(opts.codec)
	if err != nil {
		return err
	}

	data, err := readInput(opts.in, stdin)
	if err != nil {
		return err
	}

	var out []byte
	if opts.natsURL != "" {
		if opts.requirePosition {
			log.Printf("Warning: -require-position is ignored with -nats, the worker's setting applies")
		}
		out, err = transformRemote(ctx, opts.natsURL, data, opts.timeout)
	} else {
		out, err = transformLocal(c, data, transform.Options{RequirePosition: opts.requirePosition})
	}
	if err != nil {
		return err
	}

	if _, err := stdout.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if c.Name() == codec.NameJSON {
		if _, err := io.WriteString(stdout, "\n"); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Printf("Transform failed: %v", err)
		os.Exit(1)
	}
}
