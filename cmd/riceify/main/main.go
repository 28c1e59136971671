package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arthur-debert/riceify/cmd/riceify"
	"github.com/arthur-debert/riceify/pkg/style"
)

func main() {
	// Interrupts cancel the running transaction, which rolls back
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := riceify.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprint(os.Stderr, style.RenderError(err))
		stop()
		os.Exit(1)
	}
}
