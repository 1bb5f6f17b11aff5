// Package main is the entry point for the content scheduler worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jonesrussell/content-scheduler/internal/app"
	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// version can be set at build time via -ldflags.
var version = "dev"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yml", "Path to configuration file")
	flag.Parse()

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Version:    version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := application.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to close application: %v\n", closeErr)
		}
	}()

	if runErr := application.Run(context.Background()); runErr != nil {
		application.Logger().Error("Application error", logger.Error(runErr))
		os.Exit(1)
	}
}
