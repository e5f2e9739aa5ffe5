// Command l3bookd reconstructs level-3 order books from exchange
// websocket feeds and fans snapshots out to every configured subscriber,
// the Go rebuild of the original implementation's argparse-driven main.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/thrasher-corp/l3bookd/config"
	"github.com/thrasher-corp/l3bookd/log"
	"github.com/thrasher-corp/l3bookd/publisher"
	"github.com/thrasher-corp/l3bookd/sinks/archive"
	"github.com/thrasher-corp/l3bookd/sinks/sqlsink"
	"github.com/thrasher-corp/l3bookd/supervisor"
)

// Exit codes, per the original implementation's argparse-error / no-subscriptions
// split (sys.exit(1) in both cases there; this rebuild distinguishes a
// fatal startup failure in the adapters themselves as a third code).
const (
	exitOK = iota
	exitBadArgs
	exitFatal
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	logger := log.NewConsole()

	app := &cli.App{
		Name:  "l3bookd",
		Usage: "reconstruct level-3 order books from exchange feeds",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "instmts",
				Usage: "instrument subscription file",
				Value: "subscriptions.txt",
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "verbose output file path",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "process configuration file (yaml/json/toml)",
			},
		},
		Action: func(c *cli.Context) error {
			return serve(c, logger)
		},
	}

	if err := app.Run(args); err != nil {
		if err == errBadArgs {
			return exitBadArgs
		}
		fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}
	return exitOK
}

var errBadArgs = fmt.Errorf("l3bookd: bad arguments")

func serve(c *cli.Context, logger log.Logger) error {
	if out := c.String("output"); out != "" {
		f, err := os.OpenFile(out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("l3bookd: open output file: %w", err)
		}
		defer f.Close()
		logger = log.New(f)
	}

	instmts := c.String("instmts")
	if instmts == "" {
		fmt.Fprintln(os.Stderr, "Error: Please define the instrument subscription list.")
		return errBadArgs
	}

	subs, err := config.ParseSubscriptionFile(instmts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return errBadArgs
	}
	if len(subs) == 0 {
		fmt.Fprintln(os.Stderr, "Error: No instrument is found in the subscription file. "+
			"Please check the file path and the content of the subscription file.")
		return errBadArgs
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("l3bookd: %w", err)
	}

	for _, sub := range subs {
		logger.Infof("main", "subscribing %s/%s (%s)", sub.Exchange, sub.InstrumentCode, sub.InstrumentName)
	}

	pub := publisher.New(logger)
	if err := wireSinks(pub, cfg, logger); err != nil {
		return fmt.Errorf("l3bookd: %w", err)
	}

	sup, err := supervisor.New(subs, cfg, pub, logger)
	if err != nil {
		return fmt.Errorf("l3bookd: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return sup.Run(ctx)
}

func wireSinks(pub *publisher.Publisher, cfg *config.Config, logger log.Logger) error {
	if cfg.Sinks.Archive.Enabled {
		sink, err := archive.Open(cfg.Sinks.Archive.Path)
		if err != nil {
			return err
		}
		pub.Subscribe(sink, publisher.Lossless)
		logger.Infof("main", "archive sink enabled at %s", cfg.Sinks.Archive.Path)
	}
	if cfg.Sinks.SQL.Enabled {
		sink, err := sqlsink.Open(cfg.Sinks.SQL.Driver, cfg.Sinks.SQL.DSN)
		if err != nil {
			return err
		}
		pub.Subscribe(sink, publisher.Lossless)
		logger.Infof("main", "sql sink enabled via %s", cfg.Sinks.SQL.Driver)
	}
	return nil
}
