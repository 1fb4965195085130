// Package main is the entry point for the gallery server and command line
// tool.
//
// gallery keeps an image collection, including three-part personalization
// codes, as a single size-capped JSON blob in a pluggable key-value backend,
// and serves it over an HTTP API. Configuration is read from a YAML file,
// GALLERY_* environment variables and CLI flags, in increasing priority.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gallery: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
