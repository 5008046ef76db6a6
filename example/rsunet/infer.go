package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/metric"
	"github.com/sugarme/rsunet/report"
	"github.com/sugarme/rsunet/unet"
	"github.com/sugarme/rsunet/volume"
)

// runInfer segments the input volume and writes one PNG per slice and
// output channel.
func runInfer(cfg unet.Config) {
	vol, err := volume.Load(absPath(InputPath))
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("input volume %v\n", vol.Shape())

	stages, err := cfg.Plan(append([]int64{1, 1}, vol.Shape()...))
	if err != nil {
		// fall back to the requested size when the raw volume does not pool evenly
		size, perr := parseSize(SizeStr)
		if perr != nil {
			log.Fatal(err)
		}
		if size[0] != vol.Shape()[0] {
			log.Fatalf("%v: depth %d cannot be resized", err, vol.Depth)
		}
		log.Printf("%v; resizing slices to %vx%v\n", err, size[1], size[2])
		vol = vol.Resize(int(size[1]), int(size[2]))
		if stages, err = cfg.Plan(append([]int64{1, 1}, vol.Shape()...)); err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("%v stages, %v params\n", len(stages), unet.TotalParams(stages))

	_, net := newModel(cfg)

	x := vol.Tensor()
	xs := x.MustTo(Device, true)
	var prob *ts.Tensor
	ts.NoGrad(func() {
		logits := net.ForwardT(xs, false)
		prob = logits.MustSigmoid(true)
	})
	xs.MustDrop()
	defer prob.MustDrop()

	outDir := absPath(OutputPath)
	var preds []*volume.Volume
	for c := 0; c < int(cfg.OutChannels); c++ {
		pred, err := volume.FromTensor(prob, c)
		if err != nil {
			log.Fatal(err)
		}
		files, err := pred.SavePNG(outDir, fmt.Sprintf("channel%d", c))
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("channel %d: wrote %d slices\n", c, len(files))
		preds = append(preds, pred)
	}

	values := preds[0].Values()
	summary, err := report.Describe(values)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("channel 0 probability: %v\n", summary)
	if err := report.Histogram(values, 20, "Probability Histogram", filepath.Join(outDir, "probability-histo.png")); err != nil {
		log.Fatal(err)
	}

	if TargetPath == "" {
		return
	}
	target, err := volume.Load(absPath(TargetPath))
	if err != nil {
		log.Fatal(err)
	}
	if target.Depth != preds[0].Depth || target.Height != preds[0].Height || target.Width != preds[0].Width {
		target = target.Resize(preds[0].Height, preds[0].Width)
	}
	if target.Depth != preds[0].Depth {
		log.Fatalf("target depth %d does not match prediction depth %d", target.Depth, preds[0].Depth)
	}
	tt := target.Tensor().MustTo(Device, true)
	p0 := prob.MustNarrow(1, 0, 1, false)
	fmt.Printf("Dice: %0.4f\n", metric.DiceCoeff(p0, tt))
	fmt.Printf("IoU: %0.4f\n", metric.IoU(p0, tt))
	p0.MustDrop()
	tt.MustDrop()
}
