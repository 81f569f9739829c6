// Command nada compiles and runs the bundled programs.
//
// build writes <name>.nada.bin artifacts:
//
//	go run ./cmd/nada build               # every program into ./target
//	go run ./cmd/nada build -o out main
//
// run evaluates a program in cleartext, without a network:
//
//	go run ./cmd/nada run main data_sensor_a=5 data_sensor_b=7 data_sensor_c=3 threshold=4 total_data_threshold=10
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/flashbots/nada-quickstart/cmd/common"
	"github.com/flashbots/nada-quickstart/nada"
	"github.com/flashbots/nada-quickstart/programs"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "build":
		err = build(os.Args[2:])
	case "run":
		err = run(os.Args[2:])
	case "list":
		for _, name := range programs.Names() {
			fmt.Println(name)
		}
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nada build [-o dir] [program...]")
	fmt.Fprintln(os.Stderr, "       nada run [-artifact file] program name=value...")
	fmt.Fprintln(os.Stderr, "       nada list")
}

func build(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	outDir := fs.String("o", "target", "Output directory")
	fs.Parse(args)

	names := fs.Args()
	if len(names) == 0 {
		names = programs.Names()
	}

	for _, name := range names {
		artifact, err := programs.Compile(name)
		if err != nil {
			return err
		}
		path, err := nada.WriteArtifactFile(*outDir, artifact)
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		fmt.Printf("Built %s -> %s\n", name, path)
	}
	return nil
}

func run(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	artifactPath := fs.String("artifact", "", "Run a compiled artifact instead of a bundled program")
	fs.Parse(args)

	var (
		artifact *nada.Artifact
		err      error
		inputs   = fs.Args()
	)
	if *artifactPath != "" {
		artifact, err = nada.ReadArtifactFile(*artifactPath)
	} else {
		if len(inputs) == 0 {
			return fmt.Errorf("program name required")
		}
		artifact, err = programs.Compile(inputs[0])
		inputs = inputs[1:]
	}
	if err != nil {
		return err
	}

	values, err := common.ParseInputs(artifact, inputs)
	if err != nil {
		return err
	}
	outputs, err := nada.Evaluate(artifact, values)
	if err != nil {
		return err
	}
	for _, name := range outputs.Names() {
		fmt.Printf("Output %s: %s\n", name, outputs[name])
	}
	return nil
}
