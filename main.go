package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"column-indexer/cmd"
)

func main() {
	// SIGTERM comes from systemd.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "column-indexer:", err)
		os.Exit(1)
	}
}
