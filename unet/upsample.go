package unet

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/base"
	"github.com/sugarme/rsunet/shape"
)

// UpsampleMode is the strategy an UpsampleModule uses to double resolution.
type UpsampleMode int

const (
	// Bilinear is trilinear interpolation followed by a 1x1x1 convolution.
	Bilinear UpsampleMode = iota
	// Nearest is nearest-neighbour upsampling followed by a 1x1x1 convolution.
	Nearest
	// Transpose is a strided transposed convolution.
	Transpose
)

// ParseUpsampleMode resolves "bilinear" (alias "trilinear"), "nearest" or
// "transpose".
func ParseUpsampleMode(s string) (UpsampleMode, error) {
	switch strings.ToLower(s) {
	case "bilinear", "trilinear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	case "transpose":
		return Transpose, nil
	}
	return Bilinear, errors.Wrapf(ErrInvalidConfig, "unknown upsampling mode %q", s)
}

func (m UpsampleMode) String() string {
	switch m {
	case Nearest:
		return "nearest"
	case Transpose:
		return "transpose"
	}
	return "bilinear"
}

// UpsampleModule upsamples decoder features, matches their channels to the
// skip tensor and fuses both by addition.
type UpsampleModule struct {
	Conv   *base.ConvBlock
	Norm   base.NormGate
	mode   UpsampleMode
	factor []int64

	activation base.Activation
}

// NewUpsampleModule creates an UpsampleModule mapping cIn to cOut channels and
// scaling every axis by factor. The convolution lives under p.conv, or p.up
// for a transposed one.
func NewUpsampleModule(p *nn.Path, ini *base.Initializer, cIn, cOut int64, factor []int64, mode UpsampleMode, norm base.NormConfig, act base.Activation, convMode base.ConvMode) *UpsampleModule {
	cfg := &base.ConvConfig{
		Kernel:  []int64{1, 1, 1},
		Stride:  []int64{1, 1, 1},
		Padding: []int64{0, 0, 0},
		Mode:    convMode,
	}
	name := "conv"
	if mode == Transpose {
		name = "up"
		cfg.Kernel = factor
		cfg.Stride = factor
		cfg.Transposed = true
	}

	return &UpsampleModule{
		Conv:       base.NewConvBlock(p.Sub(name), ini, cIn, cOut, cfg),
		Norm:       base.NewNormGate(p.Sub("bn"), cOut, norm),
		mode:       mode,
		factor:     factor,
		activation: act,
	}
}

// Mode returns the upsampling strategy.
func (u *UpsampleModule) Mode() UpsampleMode {
	return u.mode
}

// Upsample scales x by the module factor and matches channels.
func (u *UpsampleModule) Upsample(x *ts.Tensor) *ts.Tensor {
	if u.mode == Transpose {
		return u.Conv.Forward(x)
	}

	size := x.MustSize()
	outSize := shape.UpsampleSize(size[2:], u.factor)
	var up *ts.Tensor
	if u.mode == Nearest {
		up = x.MustUpsampleNearest3d(outSize, nil, nil, nil, false)
	} else {
		up = x.MustUpsampleTrilinear3d(outSize, false, nil, nil, nil, false)
	}
	out := u.Conv.Forward(up)
	up.MustDrop()

	return out
}

// ForwardSkip upsamples x and fuses it with skip: act(norm(up(x) + skip)).
// skip must have the shape of the upsampled x.
func (u *UpsampleModule) ForwardSkip(x, skip *ts.Tensor, train bool) *ts.Tensor {
	up := u.Upsample(x)
	sum := up.MustAdd(skip, true)
	bn := u.Norm.ForwardT(sum, train)
	sum.MustDrop()
	out := u.activation(bn)
	bn.MustDrop()

	return out
}
