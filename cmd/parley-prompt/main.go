// parley-prompt is the out-of-process prompt executor. It reads one encoded
// request envelope from stdin, renders the prompt in the terminal, and writes
// one encoded result envelope to stdout.
//
// Exit code 0 means stdout holds a structurally valid result, including
// cancellations and presentation failures. A non-zero exit means the process
// could not produce a result at all; stderr carries the diagnostic.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"parley/internal/codec"
	"parley/internal/envelope"
	"parley/internal/surface"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	flags.SetOutput(stderr)

	showVersion := flags.Bool("version", false, "Show version information")

	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	if *showVersion {
		_, _ = fmt.Fprintf(stdout, "parley-prompt version %s\n", version)
		return nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	req, err := codec.DecodeRequest(data)
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	res, err := surface.New().Run(ctx, req)
	if err != nil {
		// A broken form is still a reportable outcome; the parent turns it
		// into a structured failure rather than a crashed executor.
		res = envelope.FailResult(envelope.FailPresentation, "%v", err)
	}

	out, err := codec.EncodeResult(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := stdout.Write(out); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
