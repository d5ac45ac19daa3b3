// Command sheetctl runs workbook and CSV transfers and auto-increment checks
// directly against the configured store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		failColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
