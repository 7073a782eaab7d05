// Command tallerd is the machine-shop assignment engine: a daemon with the
// sweep loop and metrics listener, plus the one-shot shop CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/internal/cli"
)

// Version is stamped at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(Run(ctx, os.Args[1:]))
}

// Run executes the root command and maps the outcome to an exit code.
func Run(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(Version)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	// cobra prints usage itself for flag errors; this stays terse.
	fmt.Fprintln(os.Stderr, err.Error())
	return 1
}
