package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/report"
	"github.com/sugarme/rsunet/unet"
)

// runCheckModel prints the planned topology and parameters, then runs a
// random volume through the network.
func runCheckModel(cfg unet.Config) {
	size, err := parseSize(SizeStr)
	if err != nil {
		log.Fatal(err)
	}
	input := append([]int64{1, cfg.InChannels}, size...)

	stages, err := cfg.Plan(input)
	if err != nil {
		log.Fatal(err)
	}
	if err := report.WriteTopology(os.Stdout, stages); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Total params: %v\n", unet.TotalParams(stages))

	vs, net := newModel(cfg)
	printVars(vs)

	x := ts.MustRand(input, gotch.Float, Device)
	ts.NoGrad(func() {
		out := net.ForwardT(x, false)
		fmt.Printf("input: %v - output: %v\n", x.MustSize(), out.MustSize())
		out.MustDrop()
	})
	x.MustDrop()
}
