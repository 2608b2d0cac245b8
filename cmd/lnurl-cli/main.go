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

func withApp(fn func(app *ClientApp) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		app, err := NewApp(c)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := app.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "error closing app: %v\n", closeErr)
			}
		}()

		return fn(app)
	}
}

// withTarget parses the single <url|ip[:port]> argument of a flow command.
func withTarget(fn func(app *ClientApp, target string) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("%s requires exactly one <url|ip[:port]> "+
				"argument", c.Command.Name)
		}

		target, err := normalizeTarget(c.Args().First())
		if err != nil {
			return err
		}

		return withApp(func(app *ClientApp) error {
			return fn(app, target)
		})(c)
	}
}

func getInfo(app *ClientApp) error {
	return app.GetInfo()
}

func requestChannel(app *ClientApp, target string) error {
	return app.RequestChannel(target)
}

func requestWithdraw(app *ClientApp, target string) error {
	return app.RequestWithdraw(target)
}

func auth(app *ClientApp, target string) error {
	return app.Auth(target)
}

func run() int {
	// main ctx that cancels on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:    "lnurl-cli",
		Version: version,
		Usage: "Wallet side of the LNURL channel (LUD-02), withdraw " +
			"(LUD-03) and auth (LUD-04) flows, backed by a Lightning node.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "name of the config file (default ~/.config/lnurlbridge/client.yaml)"},
		},
		Commands: []*cli.Command{
			{
				Name:   "getinfo",
				Usage:  "Returns basic information about the connected Lightning node.",
				Action: withApp(getInfo),
			},
			{
				Name:      "request-channel",
				Aliases:   []string{"rc"},
				Usage:     "Asks an LNURL service to open a channel to the local node.",
				ArgsUsage: "<url|ip[:port]>",
				Action:    withTarget(requestChannel),
			},
			{
				Name:      "request-withdraw",
				Aliases:   []string{"rw"},
				Usage:     "Withdraws the maximum amount an LNURL service offers and waits for the payment.",
				ArgsUsage: "<url|ip[:port]>",
				Action:    withTarget(requestWithdraw),
			},
			{
				Name:      "auth",
				Usage:     "Authenticates against an LNURL service with the node key.",
				ArgsUsage: "<url|ip[:port]>",
				Action:    withTarget(auth),
			},
		},
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
