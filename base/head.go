package base

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/shape"
)

// EmbeddingModule lifts input features with one "same" padded convolution
// followed by an activation. A non-unit stride downsamples the input.
type EmbeddingModule struct {
	Conv       *ConvBlock
	activation Activation
}

// NewEmbeddingModule creates an EmbeddingModule. kernel must be normalised and
// odd; stride normalised.
func NewEmbeddingModule(p *nn.Path, ini *Initializer, cIn, cOut int64, kernel, stride []int64, act Activation, mode ConvMode) *EmbeddingModule {
	pad, err := shape.PadSize(kernel, shape.Same)
	if err != nil {
		panic(fmt.Sprintf("embedding: %v", err))
	}
	cfg := &ConvConfig{Kernel: kernel, Stride: stride, Padding: pad, Mode: mode}

	return &EmbeddingModule{
		Conv:       NewConvBlock(p.Sub("conv"), ini, cIn, cOut, cfg),
		activation: act,
	}
}

// Forward implements ts.Module for EmbeddingModule.
func (m *EmbeddingModule) Forward(x *ts.Tensor) *ts.Tensor {
	c := m.Conv.Forward(x)
	out := m.activation(c)
	c.MustDrop()

	return out
}

// ForwardTo implements the output embedding contract. A stride 1 embedding
// already preserves spatial size, so size is ignored.
func (m *EmbeddingModule) ForwardTo(x *ts.Tensor, size []int64) *ts.Tensor {
	return m.Forward(x)
}

// EmbeddingModuleUpsampling reverses a strided input embedding with a
// transposed convolution of the same kernel and stride.
type EmbeddingModuleUpsampling struct {
	Conv       *ConvBlock
	activation Activation
}

// NewEmbeddingModuleUpsampling creates an EmbeddingModuleUpsampling.
func NewEmbeddingModuleUpsampling(p *nn.Path, ini *Initializer, cIn, cOut int64, kernel, stride []int64, act Activation, mode ConvMode) *EmbeddingModuleUpsampling {
	pad, err := shape.PadSize(kernel, shape.Same)
	if err != nil {
		panic(fmt.Sprintf("embedding: %v", err))
	}
	cfg := &ConvConfig{Kernel: kernel, Stride: stride, Padding: pad, Transposed: true, Mode: mode}

	return &EmbeddingModuleUpsampling{
		Conv:       NewConvBlock(p.Sub("conv"), ini, cIn, cOut, cfg),
		activation: act,
	}
}

// DefaultOutputPadding is stride-1 per axis, which restores any input whose
// size is a multiple of the stride.
func (m *EmbeddingModuleUpsampling) DefaultOutputPadding() []int64 {
	op := make([]int64, len(m.Conv.Config.Stride))
	for i, s := range m.Conv.Config.Stride {
		op[i] = s - 1
	}
	return op
}

// Forward implements ts.Module using DefaultOutputPadding.
func (m *EmbeddingModuleUpsampling) Forward(x *ts.Tensor) *ts.Tensor {
	return m.forward(x, m.DefaultOutputPadding())
}

// ForwardTo upsamples x to exactly size, deriving the output padding from the
// transposed convolution shape formula.
func (m *EmbeddingModuleUpsampling) ForwardTo(x *ts.Tensor, size []int64) *ts.Tensor {
	cfg := m.Conv.Config
	in := x.MustSize()
	op, err := shape.OutputPadding(in[2:], size, cfg.Kernel, cfg.Stride, cfg.Padding)
	if err != nil {
		panic(fmt.Sprintf("embedding: %v", err))
	}
	return m.forward(x, op)
}

func (m *EmbeddingModuleUpsampling) forward(x *ts.Tensor, outputPadding []int64) *ts.Tensor {
	c := m.Conv.ForwardPadded(x, outputPadding)
	out := m.activation(c)
	c.MustDrop()

	return out
}

// OutputModule projects features to the task's output channels. No
// activation is applied.
type OutputModule struct {
	Conv *ConvBlock
}

// NewOutputModule creates an OutputModule with a "same" padded kernel.
func NewOutputModule(p *nn.Path, ini *Initializer, cIn, cOut int64, kernel []int64, mode ConvMode) *OutputModule {
	pad, err := shape.PadSize(kernel, shape.Same)
	if err != nil {
		panic(fmt.Sprintf("output: %v", err))
	}
	cfg := &ConvConfig{Kernel: kernel, Stride: []int64{1, 1, 1}, Padding: pad, Mode: mode}

	return &OutputModule{Conv: NewConvBlock(p.Sub("conv"), ini, cIn, cOut, cfg)}
}

// Forward implements ts.Module for OutputModule.
func (m *OutputModule) Forward(x *ts.Tensor) *ts.Tensor {
	return m.Conv.Forward(x)
}
