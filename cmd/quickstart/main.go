// Command quickstart stores the sensor program and its inputs on a running
// devnet, runs the computation and prints the outputs.
//
// Start a devnet and compile the program first:
//
//	go run ./cmd/devnet &
//	go run ./cmd/nada build
//	go run ./cmd/quickstart
//
// Connection settings are read from ~/.config/nillion/nillion-devnet.env;
// environment variables of the same name take precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/nada-quickstart/quickstart"
)

func main() {
	defaultEnvFile, _ := quickstart.DefaultEnvFile()

	var (
		envFile     = flag.String("env-file", defaultEnvFile, "Devnet env file")
		programName = flag.String("program", quickstart.DefaultProgramName, "Program name")
		programDir  = flag.String("program-dir", quickstart.DefaultProgramDir, "Directory of compiled programs")
		seed        = flag.String("seed", quickstart.DefaultSeed, "Seed for the user and node keys")
		timeout     = flag.Duration("timeout", quickstart.DefaultComputeTimeout, "How long to wait for the computation")
	)
	flag.Parse()

	cfg, err := quickstart.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.ProgramName = *programName
	cfg.ProgramDir = *programDir
	cfg.Seed = *seed
	cfg.ComputeTimeout = *timeout
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := quickstart.Run(ctx, cfg, quickstart.DefaultDeps()); err != nil {
		switch {
		case errors.Is(err, quickstart.ErrArtifactNotFound):
			fmt.Fprintf(os.Stderr, "Error: %v (run `go run ./cmd/nada build` first)\n", err)
		case errors.Is(err, quickstart.ErrArtifactNotReadable):
			fmt.Fprintf(os.Stderr, "Error: %v (check file permissions)\n", err)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
