package base

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/shape"
)

// ConvMode selects the libtorch entry point a ConvBlock calls. It is part of
// the network config and handed to every block explicitly.
type ConvMode int

const (
	// ConvDirect calls conv3d / conv_transpose3d.
	ConvDirect ConvMode = iota
	// ConvGeneric calls the generic convolution op.
	ConvGeneric
)

// ParseConvMode resolves "direct" (default) or "generic".
func ParseConvMode(s string) (ConvMode, error) {
	switch strings.ToLower(s) {
	case "direct", "":
		return ConvDirect, nil
	case "generic":
		return ConvGeneric, nil
	}
	return ConvDirect, errors.Wrapf(ErrInvalidConfig, "unknown conv mode %q", s)
}

func (m ConvMode) String() string {
	if m == ConvGeneric {
		return "generic"
	}
	return "direct"
}

// ConvConfig holds the options of a ConvBlock. Kernel, Stride and Padding
// must already be normalised to three values.
type ConvConfig struct {
	Kernel     []int64
	Stride     []int64
	Padding    []int64
	Bias       bool
	Transposed bool
	Mode       ConvMode
}

// DefaultConvConfig is a 3x3x3, stride 1, "same" padded convolution without
// bias.
func DefaultConvConfig() *ConvConfig {
	return &ConvConfig{
		Kernel:  []int64{3, 3, 3},
		Stride:  []int64{1, 1, 1},
		Padding: []int64{1, 1, 1},
	}
}

// ConvBlock is a single 3D convolution, optionally transposed, with Kaiming
// normal weights and a zero bias.
type ConvBlock struct {
	Ws     *ts.Tensor
	Bs     *ts.Tensor
	Config *ConvConfig
}

var dilation = []int64{1, 1, 1}

// NewConvBlock creates a ConvBlock mapping cIn to cOut channels under
// p.conv. Weights are [cOut, cIn, k...] for a direct and [cIn, cOut, k...]
// for a transposed convolution.
func NewConvBlock(p *nn.Path, ini *Initializer, cIn, cOut int64, cfg *ConvConfig) *ConvBlock {
	dims := []int64{cOut, cIn}
	if cfg.Transposed {
		dims = []int64{cIn, cOut}
	}
	dims = append(dims, cfg.Kernel...)

	cp := p.Sub("conv")
	ws := ini.NewWeight(cp, "weight", dims)
	bs := ts.NewTensor()
	if cfg.Bias {
		bs = NewBias(cp, cOut)
	}

	return &ConvBlock{Ws: ws, Bs: bs, Config: cfg}
}

// Forward implements ts.Module for ConvBlock. Transposed blocks use zero
// output padding.
func (c *ConvBlock) Forward(x *ts.Tensor) *ts.Tensor {
	return c.ForwardPadded(x, []int64{0, 0, 0})
}

// ForwardPadded runs the convolution with the given output padding, which
// only matters for transposed blocks.
func (c *ConvBlock) ForwardPadded(x *ts.Tensor, outputPadding []int64) *ts.Tensor {
	cfg := c.Config
	switch {
	case cfg.Mode == ConvGeneric:
		return ts.MustConvolution(x, c.Ws, c.Bs, cfg.Stride, cfg.Padding, dilation, cfg.Transposed, outputPadding, 1)
	case cfg.Transposed:
		return ts.MustConvTranspose3d(x, c.Ws, c.Bs, cfg.Stride, cfg.Padding, outputPadding, 1, dilation)
	default:
		return ts.MustConv3d(x, c.Ws, c.Bs, cfg.Stride, cfg.Padding, dilation, 1)
	}
}

// OutSize is the spatial size this block produces from in with zero output
// padding.
func (c *ConvBlock) OutSize(in []int64) []int64 {
	if c.Config.Transposed {
		return shape.TransposeOutSize(in, c.Config.Kernel, c.Config.Stride, c.Config.Padding, nil)
	}
	return shape.ConvOutSize(in, c.Config.Kernel, c.Config.Stride, c.Config.Padding)
}
