// Command botgraph-debug talks to the /debug namespace of a running
// botgraph gateway.
//
//	botgraph-debug [options] <command> [key=value ...]
//	botgraph-debug [options] --watch --graph g1 --owner alice
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/vk/botgraph/internal/cli"
	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/debugclient"
	"github.com/vk/botgraph/internal/gateway"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	url      string
	graph    string
	owner    string
	watch    bool
	insecure bool
	timeout  time.Duration
	logLevel string
	command  string
	args     []string
}

func parse(args []string, outW io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("botgraph-debug", flag.ContinueOnError)
	fs.SetOutput(outW)
	fs.Usage = func() {
		fmt.Fprintf(outW, `
botgraph-debug - inspect and control graph runs on a botgraph gateway.

Usage:
  botgraph-debug [options] <command> [key=value ...]
  botgraph-debug [options] --watch

Commands:
  %s

Request keys: ownerId graphId nodeId condition traceId eventType step
and overrides.<variable>=<json>. --graph and --owner fill graphId and ownerId.

Options:
`, strings.Join(gateway.Commands, "\n  "))
		fs.PrintDefaults()
	}

	o := &options{}
	fs.StringVar(&o.url, "url", "http://localhost:8080", "Gateway base URL.")
	fs.StringVar(&o.graph, "graph", "", "Graph id.")
	fs.StringVar(&o.owner, "owner", "", "Owner id.")
	fs.BoolVar(&o.watch, "watch", false, "Stream telemetry of --owner, and debug events of its --graph when set, until interrupted.")
	fs.BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification.")
	fs.DurationVar(&o.timeout, "timeout", 10*time.Second, "Connect and command timeout.")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &cli.ExitError{Code: 2, Message: err.Error()}
	}

	if fs.NArg() > 0 {
		o.command, o.args = fs.Arg(0), fs.Args()[1:]
	}
	switch {
	case o.watch && o.command != "":
		return nil, false, &cli.ExitError{Code: 2, Message: "--watch does not take a command"}
	case o.watch && o.owner == "":
		return nil, false, &cli.ExitError{Code: 2, Message: "--watch needs --owner"}
	case !o.watch && o.command == "":
		return nil, false, &cli.ExitError{Code: 2, Message: "missing command"}
	}
	return o, false, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	o, shouldExit, err := parse(args, outW)
	if err != nil || shouldExit {
		return err
	}

	logger := newLogger(o.logLevel, errW)
	ctx = ctxlog.WithLogger(ctx, logger)

	req, err := debugclient.ParseArgs(o.args)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}
	if req.GraphID == "" {
		req.GraphID = o.graph
	}
	if req.OwnerID == "" {
		req.OwnerID = o.owner
	}

	client, err := debugclient.Dial(ctx, debugclient.Options{URL: o.url, InsecureSkipVerify: o.insecure, ConnectTimeout: o.timeout})
	if err != nil {
		return err
	}
	defer client.Close()

	if o.watch {
		logger.Info("Watching.", "graph", o.graph, "owner", o.owner)
		return client.Watch(ctx, o.graph, o.owner, func(event string, payload any) {
			if err := printJSON(outW, map[string]any{"event": event, "payload": payload}); err != nil {
				logger.Error("Failed to print event.", "error", err)
			}
		})
	}

	cmdCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	res, err := client.Do(cmdCtx, o.command, req)
	if err != nil {
		return fmt.Errorf("%s: %w", o.command, err)
	}
	return printJSON(outW, res)
}

func printJSON(w io.Writer, v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
