package unet

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/sugarme/rsunet/base"
	"github.com/sugarme/rsunet/shape"
)

// ErrInvalidConfig is returned for configurations that cannot be built.
var ErrInvalidConfig = base.ErrInvalidConfig

// Config describes an RSUNet.
type Config struct {
	InChannels  int64   `yaml:"in_channels"`
	OutChannels int64   `yaml:"out_channels"`
	Depth       int     `yaml:"depth"`
	Features    []int64 `yaml:"features"`

	Kernel       []int64 `yaml:"kernel"`        // ConvModule kernel
	EmbedKernel  []int64 `yaml:"embed_kernel"`  // input/output embedding kernel
	OutputKernel []int64 `yaml:"output_kernel"` // output projection kernel
	InitStride   []int64 `yaml:"init_stride"`   // input embedding stride
	Down         []int64 `yaml:"down"`          // pooling and upsampling factor

	Residual   bool    `yaml:"residual"`
	Upsample   string  `yaml:"upsample"` // bilinear, trilinear, nearest, transpose
	UseNorm    bool    `yaml:"use_norm"`
	Momentum   float64 `yaml:"momentum"`
	TrackStats bool    `yaml:"track_stats"`
	Activation string  `yaml:"activation"` // elu, relu
	ConvMode   string  `yaml:"conv_mode"`  // direct, generic
	Seed       int64   `yaml:"seed"`

	// ActivationFn overrides Activation when set.
	ActivationFn base.Activation `yaml:"-"`
}

// DefaultConfig returns the reference RSUNet configuration: five scales
// (24, 64, 192, 192, 192), depth 4, 3x3x3 modules, a (1,5,5) embedding with
// stride (1,2,2), bilinear upsampling, residual modules with batch norm and
// ELU.
func DefaultConfig() Config {
	return Config{
		InChannels:   1,
		OutChannels:  3,
		Depth:        4,
		Features:     []int64{24, 64, 192, 192, 192},
		Kernel:       []int64{3},
		EmbedKernel:  []int64{1, 5, 5},
		OutputKernel: []int64{1},
		InitStride:   []int64{1, 2, 2},
		Down:         []int64{2},
		Residual:     true,
		Upsample:     "bilinear",
		UseNorm:      true,
		Momentum:     0.001,
		Activation:   "elu",
		ConvMode:     "direct",
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate reports the first problem that would stop NewRSUNet.
func (c Config) Validate() error {
	_, err := c.resolve()
	return err
}

// resolved is a validated Config with every shape normalised.
type resolved struct {
	Config
	kernel       []int64
	kernelPad    []int64
	embedKernel  []int64
	embedPad     []int64
	outputKernel []int64
	outputPad    []int64
	initStride   []int64
	down         []int64
	upsample     UpsampleMode
	activation   base.Activation
	convMode     base.ConvMode
}

func (c Config) resolve() (*resolved, error) {
	r := &resolved{Config: c}

	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "channels must be positive, got in=%d out=%d", c.InChannels, c.OutChannels)
	}
	if c.Depth < 0 || c.Depth >= len(c.Features) {
		return nil, errors.Wrapf(ErrInvalidConfig, "depth %d needs %d feature scales, got %d", c.Depth, c.Depth+1, len(c.Features))
	}
	for d, f := range c.Features[:c.Depth+1] {
		if f <= 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "feature width at scale %d must be positive, got %d", d, f)
		}
	}
	if c.UseNorm && (c.Momentum <= 0 || c.Momentum > 1) {
		return nil, errors.Wrapf(ErrInvalidConfig, "norm momentum must be in (0, 1], got %v", c.Momentum)
	}

	var err error
	if r.upsample, err = ParseUpsampleMode(c.Upsample); err != nil {
		return nil, err
	}
	if r.convMode, err = base.ParseConvMode(c.ConvMode); err != nil {
		return nil, err
	}
	r.activation = c.ActivationFn
	if r.activation == nil {
		if r.activation, err = base.ActivationByName(c.Activation); err != nil {
			return nil, err
		}
	}

	if r.kernel, r.kernelPad, err = samePadded("kernel", c.Kernel); err != nil {
		return nil, err
	}
	if r.embedKernel, r.embedPad, err = samePadded("embed kernel", c.EmbedKernel); err != nil {
		return nil, err
	}
	if r.outputKernel, r.outputPad, err = samePadded("output kernel", c.OutputKernel); err != nil {
		return nil, err
	}
	if r.initStride, err = shape.Kernel(c.InitStride...); err != nil {
		return nil, errors.WithMessage(err, "init stride")
	}
	if r.down, err = shape.Kernel(c.Down...); err != nil {
		return nil, errors.WithMessage(err, "down factor")
	}

	return r, nil
}

func samePadded(name string, k []int64) (kernel, pad []int64, err error) {
	if kernel, err = shape.Kernel(k...); err != nil {
		return nil, nil, errors.WithMessage(err, name)
	}
	if pad, err = shape.PadSize(kernel, shape.Same); err != nil {
		return nil, nil, errors.WithMessage(err, name)
	}
	return kernel, pad, nil
}

func (r *resolved) moduleConfig() base.ModuleConfig {
	return base.ModuleConfig{
		Kernel:     r.kernel,
		Padding:    r.kernelPad,
		Residual:   r.Residual,
		Norm:       r.normConfig(),
		Activation: r.activation,
		Mode:       r.convMode,
	}
}

func (r *resolved) normConfig() base.NormConfig {
	cfg := base.DefaultNormConfig()
	cfg.Enabled = r.UseNorm
	cfg.Momentum = r.Momentum
	cfg.TrackStats = r.TrackStats
	return cfg
}
