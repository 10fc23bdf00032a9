// Command halofilter applies a chain of 3x3 convolution filters to an image
// by splitting its rows across a pool of workers.
//
// Usage:
//
//	halofilter [flags] <input> <output> <filter>...
//	halofilter worker --connect ws://host:7070/halo
//	halofilter filters
//	halofilter history [--limit N]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"halofilter/internal/faults"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	caught := make(chan os.Signal, 1)
	go func() {
		select {
		case sig := <-sigs:
			caught <- sig
			cancel()
		case <-ctx.Done():
		}
	}()

	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return faults.ExitCodeSuccess
	}

	code := faults.ExitCodeFor(err)
	select {
	case sig := <-caught:
		code = faults.ExitCodeForSignal(sig)
	default:
	}
	printError(stderr, err, code)
	return code
}

func printError(w io.Writer, err error, code int) {
	red := color.New(color.FgRed, color.Bold)
	if faults.IsConfigError(err) {
		red.Fprint(w, "config error: ")
	} else {
		red.Fprint(w, "error: ")
	}
	fmt.Fprintln(w, err)
	color.New(color.FgHiBlack).Fprintf(w, "exit %d (%s)\n", code, faults.ExitCodeName(code))
}
