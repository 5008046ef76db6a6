package base

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// ModuleConfig holds the options shared by every ConvModule of a network.
type ModuleConfig struct {
	Kernel     []int64 // normalised, odd
	Padding    []int64 // "same" padding for Kernel
	Residual   bool
	Norm       NormConfig
	Activation Activation
	Mode       ConvMode
}

// ConvModule is three chained 3D convolutions with normalisation and
// activation. With Residual the output of the first stage is added back
// before the last normalisation.
type ConvModule struct {
	Conv1 *ConvBlock
	Norm1 NormGate
	Conv2 *ConvBlock
	Norm2 NormGate
	Conv3 *ConvBlock
	Norm3 NormGate

	residual   bool
	activation Activation
}

// NewConvModule creates a ConvModule mapping cIn to cOut channels. Spatial
// size is preserved.
func NewConvModule(p *nn.Path, ini *Initializer, cIn, cOut int64, cfg ModuleConfig) *ConvModule {
	convConfig := &ConvConfig{
		Kernel:  cfg.Kernel,
		Stride:  []int64{1, 1, 1},
		Padding: cfg.Padding,
		Bias:    !cfg.Norm.Enabled,
		Mode:    cfg.Mode,
	}

	return &ConvModule{
		Conv1:      NewConvBlock(p.Sub("conv1"), ini, cIn, cOut, convConfig),
		Conv2:      NewConvBlock(p.Sub("conv2"), ini, cOut, cOut, convConfig),
		Conv3:      NewConvBlock(p.Sub("conv3"), ini, cOut, cOut, convConfig),
		Norm1:      NewNormGate(p.Sub("bn1"), cOut, cfg.Norm),
		Norm2:      NewNormGate(p.Sub("bn2"), cOut, cfg.Norm),
		Norm3:      NewNormGate(p.Sub("bn3"), cOut, cfg.Norm),
		residual:   cfg.Residual,
		activation: cfg.Activation,
	}
}

// ForwardT implements ts.ModuleT for ConvModule.
func (m *ConvModule) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := m.Conv1.Forward(x)
	bn1 := m.Norm1.ForwardT(c1, train)
	c1.MustDrop()
	skip := m.activation(bn1)
	bn1.MustDrop()

	c2 := m.Conv2.Forward(skip)
	bn2 := m.Norm2.ForwardT(c2, train)
	c2.MustDrop()
	a2 := m.activation(bn2)
	bn2.MustDrop()

	h := m.Conv3.Forward(a2)
	a2.MustDrop()
	if m.residual {
		h = h.MustAdd(skip, true)
	}
	skip.MustDrop()

	bn3 := m.Norm3.ForwardT(h, train)
	h.MustDrop()
	out := m.activation(bn3)
	bn3.MustDrop()

	return out
}

// Residual reports whether the module adds its residual skip.
func (m *ConvModule) Residual() bool {
	return m.residual
}
