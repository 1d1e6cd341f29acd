package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mobile-next/siminspect/cli"
	"github.com/mobile-next/siminspect/utils"
)

func main() {
	// hooks tear down the tracker, server and companion process
	hooks := utils.NewShutdownHooks()
	cli.SetShutdownHooks(hooks)

	// setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// run command in goroutine
	done := make(chan error, 1)
	go func() {
		done <- cli.Execute()
	}()

	// wait for command completion or signal
	select {
	case sig := <-sigChan:
		utils.Verbose("received %s, shutting down", sig)
		if err := hooks.Run(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(0)
	case err := <-done:
		if hookErr := hooks.Run(); hookErr != nil {
			fmt.Fprintln(os.Stderr, hookErr)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}
