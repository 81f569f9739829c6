// Package programs holds the programs shipped with the quickstart.
package programs

import (
	"fmt"
	"slices"

	"github.com/flashbots/nada-quickstart/nada"
)

// Builder defines a program.
type Builder func() *nada.Program

var registry = map[string]Builder{
	"main": Main,
}

// Names lists the available programs.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Compile builds and compiles the named program.
func Compile(name string) (*nada.Artifact, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown program %q", name)
	}
	return build().Compile()
}

// Main aggregates three secret sensor readings for an aggregator party.
//
// Outputs to Aggregator:
//   - total_data: data_sensor_a + data_sensor_b + data_sensor_c
//   - is_total_data_high: total_data > total_data_threshold
func Main() *nada.Program {
	p := nada.NewProgram("main")

	sensorA := p.Party("SensorA")
	sensorB := p.Party("SensorB")
	sensorC := p.Party("SensorC")
	aggregator := p.Party("Aggregator")

	dataSensorA := p.SecretInteger("data_sensor_a", sensorA)
	dataSensorB := p.SecretInteger("data_sensor_b", sensorB)
	dataSensorC := p.SecretInteger("data_sensor_c", sensorC)

	totalData := dataSensorA.Add(dataSensorB).Add(dataSensorC)

	threshold := p.PublicInteger("threshold", aggregator)
	totalDataThreshold := p.PublicInteger("total_data_threshold", aggregator)

	// Per-sensor checks are not outputs; Compile drops them.
	dataSensorA.GreaterThan(threshold)
	dataSensorB.GreaterThan(threshold)
	dataSensorC.GreaterThan(threshold)

	isTotalDataHigh := totalData.GreaterThan(totalDataThreshold)

	p.Output(totalData, "total_data", aggregator)
	p.Output(isTotalDataHigh, "is_total_data_high", aggregator)

	return p
}
