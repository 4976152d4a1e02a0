// Command runjob runs one squareoff job immediately and prints its events as
// JSON lines.
//
//	runjob intraday_squareoff
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"squareoff-engine/internal/app"
	"squareoff-engine/internal/events"
	"squareoff-engine/internal/logger"
	"squareoff-engine/internal/trace"
)

func main() {
	list := flag.Bool("list", false, "list registered jobs and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: runjob [-list] <job>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// stdout carries the event stream.
	if err := app.InitializeSystem(os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = trace.Shutdown(context.Background()) }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, *list, flag.Args()))
}

func run(ctx context.Context, list bool, args []string) int {
	a, err := app.Bootstrap(ctx, events.NewWriterSink(os.Stdout))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.ErrorWithErr(ctx, "Shutdown close failed", err)
		}
	}()

	if list {
		for _, name := range a.Scheduler.Jobs() {
			fmt.Println(name)
		}
		return 0
	}
	if len(args) != 1 {
		flag.Usage()
		return 2
	}

	res, err := a.Scheduler.RunJob(ctx, args[0])
	if err != nil {
		logger.ErrorWithErr(ctx, "Job run failed", err, "job", args[0])
		return 1
	}
	if total := res.Totals(); total.Failed > 0 || total.Error != "" {
		return 1
	}
	return 0
}
