// Package cmd provides the command line tools of the quickstart.
//
// # Commands
//
// devnet: Runs a payment ledger and a compute cluster locally and writes the
// connection settings for clients.
//
//	go run ./cmd/devnet
//	go run ./cmd/devnet --config=devnet.yaml
//
// nada: Compiles the bundled programs into .nada.bin artifacts and evaluates
// them in cleartext.
//
//	go run ./cmd/nada build
//	go run ./cmd/nada run main data_sensor_a=5 data_sensor_b=7 data_sensor_c=3 threshold=4 total_data_threshold=10
//
// quickstart: Stores the compiled program and the sensor readings on the
// devnet, runs the computation and prints the outputs.
//
//	go run ./cmd/quickstart
//
// # Configuration
//
// The devnet reads an optional YAML file via --config; flags override file
// values. See cmd/devnet for the full format. The quickstart reads the env
// file the devnet writes.
package cmd
