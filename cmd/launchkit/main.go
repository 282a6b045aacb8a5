package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

const usage = `launchkit %s

Usage:
  launchkit [-config file] fetch <manifest.yaml>
  launchkit [-config file] get [-threads n] <url> <path>
  launchkit [-config file] install [-assets dir] [-libraries dir] <version.json or url>
  launchkit [-config file] history [-job id] [-limit n]
  launchkit [-config file] serve

`

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, version)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "fetch":
		err = a.runFetch(ctx, args)
	case "get":
		err = a.runGet(ctx, args)
	case "install":
		err = a.runInstall(ctx, args)
	case "history":
		err = a.runHistory(args)
	case "serve":
		err = a.runServe(ctx)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	a.close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}
