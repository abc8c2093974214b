// Command strided runs the stride daemon as a standalone process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"stride/internal/config"
	"stride/internal/daemonrun"
)

func main() {
	var configPath string
	var socketPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "Configuration file path")
	flag.StringVar(&socketPath, "socket", "", "Path to the daemon socket")
	flag.StringVar(&logLevel, "log-level", "", "Override the configured log level")
	flag.Parse()

	if err := run(configPath, socketPath, logLevel); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(configPath, socketPath, logLevel string) error {
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel:   logLevel,
		SocketPath: socketPath,
	})
}
