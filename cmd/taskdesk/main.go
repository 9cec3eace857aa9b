// Package main is the entry point for the taskdesk CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"taskdesk/cmd/taskdesk/cmd"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	code := cmd.ExecuteContext(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	cancel()
	os.Exit(code)
}
