package main

import (
	"github.com/jmerrifield20/provenance/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// gpsFlags binds --lat, --lng and --accuracy. A fix is only sent when
// --lat or --lng was given.
type gpsFlags struct {
	lat, lng, accuracy float64
}

func (g *gpsFlags) register(f *pflag.FlagSet) {
	f.Float64Var(&g.lat, "lat", 0, "GPS latitude in degrees")
	f.Float64Var(&g.lng, "lng", 0, "GPS longitude in degrees")
	f.Float64Var(&g.accuracy, "accuracy", 0, "GPS accuracy radius in metres")
}

func (g *gpsFlags) value(cmd *cobra.Command) *client.GPS {
	f := cmd.Flags()
	if !f.Changed("lat") && !f.Changed("lng") {
		return nil
	}
	return &client.GPS{Lat: g.lat, Lng: g.lng, Accuracy: g.accuracy}
}
