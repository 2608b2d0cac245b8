// main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var (
	// version is set via ldflags at build time
	version = "dev"
)

func run() int {
	// main ctx that cancels on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "lnurl-server",
		Version: version,
		Usage: "Serves the LNURL channel (LUD-02), withdraw (LUD-03) and " +
			"auth (LUD-04) endpoints on top of an LND node.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "name of the config file (default ~/.config/lnurlbridge/server.yaml)"},
		},
		Action: serve,
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
