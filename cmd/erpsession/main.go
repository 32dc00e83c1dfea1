// erpsession runs the local ERP front end and manages the stored session
// from the command line.
//
//	erpsession [serve]          run the front end on PORT
//	erpsession login            sign in through the browser
//	erpsession logout           clear the stored session
//	erpsession status           show the stored session
//	erpsession open <path>      apply the route guards to path and open it
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/jrsteele09/erp-session/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	var (
		returnURL string
		noBrowser bool
	)
	flagSet := pflag.NewFlagSet("erpsession", pflag.ContinueOnError)
	flagSet.SetOutput(out)
	flagSet.StringVar(&returnURL, "return-url", "", "destination to report after login")
	flagSet.BoolVar(&noBrowser, "no-browser", false, "print the URL instead of opening a browser (open)")
	flagSet.BoolP("help", "h", false, "show help")
	flagSet.BoolP("version", "v", false, "print the version")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(out, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(out, flagSet)
		return nil
	}
	if v, _ := flagSet.GetBool("version"); v {
		fmt.Fprintln(out, "erpsession "+version)
		return nil
	}

	command := "serve"
	rest := flagSet.Args()
	if len(rest) > 0 {
		command, rest = rest[0], rest[1:]
	}

	cfg, err := config.New()
	if err != nil {
		return err
	}
	setupLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return runServe(ctx, cfg)
	case "login":
		return withApp(ctx, cfg, true, func(a *app) error { return runLogin(ctx, out, a, returnURL) })
	case "logout":
		return withApp(ctx, cfg, true, func(a *app) error { return runLogout(ctx, out, a) })
	case "status":
		return withApp(ctx, cfg, false, func(a *app) error { return runStatus(ctx, out, a.state) })
	case "open":
		if len(rest) != 1 {
			return fmt.Errorf("open takes exactly one path")
		}
		opener := openBrowser
		if noBrowser {
			opener = nil
		}
		return withApp(ctx, cfg, false, func(a *app) error { return runOpen(ctx, out, a.state, cfg.GetBaseURL(), rest[0], opener) })
	case "help":
		printHelp(out, flagSet)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func printHelp(out io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(out, "Usage: erpsession [flags] [serve|login|logout|status|open <path>]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprint(out, flagSet.FlagUsages())
}
