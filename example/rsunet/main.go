package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/rsunet/unet"
)

// flag variables
var (
	task        string
	ConfigPath  string
	InputPath   string
	TargetPath  string
	OutputPath  string
	WeightsPath string
	SizeStr     string
	Cuda        bool
	Device      gotch.Device
)

func init() {
	flag.StringVar(&task, "task", "model", "specify task to run: model | infer | eda")
	flag.StringVar(&ConfigPath, "config", "", "specify network config yaml file. Empty uses the defaults.")
	flag.StringVar(&InputPath, "input", "./input", "specify input volume: multi-page TIFF or directory of slices")
	flag.StringVar(&TargetPath, "target", "", "specify optional reference mask volume")
	flag.StringVar(&OutputPath, "output", "./output", "specify output directory")
	flag.StringVar(&WeightsPath, "weights", "", "specify full path to model weight '.ot' file.")
	flag.StringVar(&SizeStr, "size", "16,128,128", "specify input spatial size D,H,W")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
}

func main() {
	flag.Parse()

	Device = gotch.CPU
	if Cuda {
		Device = gotch.CudaIfAvailable()
	}

	cfg := unet.DefaultConfig()
	if ConfigPath != "" {
		var err error
		cfg, err = unet.LoadConfig(absPath(ConfigPath))
		if err != nil {
			log.Fatal(err)
		}
	}

	switch task {
	case "model":
		runCheckModel(cfg)
	case "infer":
		runInfer(cfg)
	case "eda":
		runEDA(cfg)
	default:
		log.Fatalf("Unknown task %q. Please specify valid 'task' flag to run.\n", task)
	}
}

// newModel builds the network on Device and loads weights if given.
func newModel(cfg unet.Config) (*nn.VarStore, *unet.RSUNet) {
	vs := nn.NewVarStore(Device)
	net, err := unet.NewRSUNet(vs.Root(), cfg)
	if err != nil {
		log.Fatal(err)
	}

	if WeightsPath != "" {
		if err := vs.Load(absPath(WeightsPath)); err != nil {
			log.Fatal(err)
		}
		log.Printf("loaded weights from %v\n", WeightsPath)
	}
	return vs, net
}

// printVars print variables sorted by name
func printVars(vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		x := vars[n]
		fmt.Printf("%v \t\t %v\n", n, x.MustSize())
	}
}

// parseSize parses "D,H,W".
func parseSize(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid size %q: expected D,H,W", s)
	}
	size := make([]int64, 3)
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %v", s, err)
		}
		size[i] = v
	}
	return size, nil
}

// helper to get absolute file path
func absPath(p string) string {
	fullpath, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return fullpath
}
