package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/keyprovider/cmd/keyprovider/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := commands.Execute(ctx, os.Args)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "keyprovider: %v\n", err)
		os.Exit(commands.ExitCode(err))
	}
}
