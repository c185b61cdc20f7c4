package nodes

import "github.com/cajigaslab/thalamus/internal/graph"

// Factories returns every node type factory this package registers,
// ready to hand to graph.NewRegistry.
func Factories() []*graph.Factory {
	return []*graph.Factory{
		NewWaveFactory(),
		NewToggleFactory(),
		NewAlgebraFactory(),
		NewNormalizeFactory(),
		NewChannelPickerFactory(),
		NewSyncFactory(),
		NewRunTriggerFactory(),
		NewWallClockFactory(),
		NewLogFactory(),
		NewRemoteLogFactory(),
		NewStorageFactory(),
	}
}
