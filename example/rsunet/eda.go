package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/sugarme/rsunet/report"
	"github.com/sugarme/rsunet/unet"
	"github.com/sugarme/rsunet/volume"
)

// runEDA describes the input intensities and writes the network topology for
// the input's shape.
func runEDA(cfg unet.Config) {
	vol, err := volume.Load(absPath(InputPath))
	if err != nil {
		log.Fatal(err)
	}

	values := vol.Values()
	summary, err := report.Describe(values)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("volume %v: %v\n", vol.Shape(), summary)

	outDir := absPath(OutputPath)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatal(err)
	}
	if err := report.Histogram(values, 32, "Intensity Histogram", filepath.Join(outDir, "intensity-histo.png")); err != nil {
		log.Fatal(err)
	}

	stages, err := cfg.Plan(append([]int64{1, 1}, vol.Shape()...))
	if err != nil {
		log.Printf("topology: %v\n", err)
		return
	}
	f, err := os.Create(filepath.Join(outDir, "topology.csv"))
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := report.WriteTopology(f, stages); err != nil {
		log.Fatal(err)
	}
}
