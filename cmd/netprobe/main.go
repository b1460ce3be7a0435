package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/internal/runner"
)

func main() {
	options := runner.ParseOptions()
	netprobeRunner, err := runner.NewRunner(options)
	if err != nil {
		gologger.Fatal().Msgf("Could not create runner: %s\n", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the engines finish with partial results once the context is cancelled
	go func() {
		<-c
		gologger.Info().Msgf("Interrupted, waiting for running probes to finish")
		cancel()
	}()

	err = netprobeRunner.Run(ctx)
	netprobeRunner.Close()
	if err != nil {
		gologger.Fatal().Msgf("Could not run netprobe: %s\n", err)
	}
}
