package unet

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sugarme/rsunet/shape"
)

// StageShape describes one stage of a planned forward pass.
type StageShape struct {
	Name        string
	Scale       int
	InChannels  int64
	OutChannels int64
	Spatial     []int64 // output spatial size [D H W]
	Params      int64   // trainable parameters
}

// Plan infers the output shape of every stage for an input of shape
// [N C D H W] without building the network. Stages are listed in execution
// order. It fails when a pooled axis does not divide by the down factor,
// since the matching skip tensor could then not be fused.
func (c Config) Plan(input []int64) ([]StageShape, error) {
	r, err := c.resolve()
	if err != nil {
		return nil, err
	}
	if len(input) != 2+shape.Arity {
		return nil, errors.Wrapf(shape.ErrInvalidShape, "expected input [N C D H W], got %v", input)
	}
	if input[1] != r.InChannels {
		return nil, errors.Wrapf(shape.ErrInvalidShape, "expected %d input channels, got %d", r.InChannels, input[1])
	}

	features := r.Features[:r.Depth+1]
	width := features[0]
	spatial := input[2:]
	var stages []StageShape
	add := func(name string, scale int, cIn, cOut int64, size []int64, params int64) {
		stages = append(stages, StageShape{
			Name:        name,
			Scale:       scale,
			InChannels:  cIn,
			OutChannels: cOut,
			Spatial:     append([]int64(nil), size...),
			Params:      params,
		})
	}

	cur := shape.ConvOutSize(spatial, r.embedKernel, r.initStride, r.embedPad)
	add("embed_in", 0, r.InChannels, width, cur, convParams(r.InChannels, width, r.embedKernel, false))

	skips := make([][]int64, r.Depth)
	current := width
	for d := 0; d < r.Depth; d++ {
		add(fmt.Sprintf("convmod%d", d), d, current, features[d], cur, r.convModParams(current, features[d]))
		skips[d] = cur
		pooled, exact := shape.PoolOutSize(cur, r.down)
		if !exact {
			return nil, errors.Wrapf(shape.ErrInvalidShape, "scale %d: size %v does not divide by down factor %v", d, cur, r.down)
		}
		cur = pooled
		add(fmt.Sprintf("maxpool%d", d), d+1, features[d], features[d], cur, 0)
		current = features[d]
	}

	add("bridge", r.Depth, current, features[r.Depth], cur, r.convModParams(current, features[r.Depth]))
	current = features[r.Depth]

	for d := r.Depth - 1; d >= 0; d-- {
		fs := features[d]
		cur = shape.UpsampleSize(cur, r.down)
		if !equal(cur, skips[d]) {
			return nil, errors.Wrapf(shape.ErrInvalidShape, "scale %d: upsampled %v does not match skip %v", d, cur, skips[d])
		}
		add(fmt.Sprintf("upsample%d", d), d, current, fs, cur, r.upsampleParams(current, fs))
		add(fmt.Sprintf("dconvmod%d", d), d, fs, fs, cur, r.convModParams(fs, fs))
		current = fs
	}

	if !shape.IsUnit(r.initStride) {
		if _, err := shape.OutputPadding(cur, spatial, r.embedKernel, r.initStride, r.embedPad); err != nil {
			return nil, errors.WithMessage(err, "embed_out")
		}
		cur = spatial
	}
	add("embed_out", 0, width, width, cur, convParams(width, width, r.embedKernel, false))
	add("output", 0, width, r.OutChannels, cur, convParams(width, r.OutChannels, r.outputKernel, false))

	return stages, nil
}

// TotalParams sums the parameters of all stages.
func TotalParams(stages []StageShape) int64 {
	var n int64
	for _, s := range stages {
		n += s.Params
	}
	return n
}

func convParams(cIn, cOut int64, kernel []int64, bias bool) int64 {
	n := cIn * cOut * shape.Prod(kernel)
	if bias {
		n += cOut
	}
	return n
}

func (r *resolved) normParams(c int64) int64 {
	if !r.UseNorm {
		return 0
	}
	return 2 * c
}

func (r *resolved) convModParams(cIn, cOut int64) int64 {
	bias := !r.UseNorm
	return convParams(cIn, cOut, r.kernel, bias) +
		2*convParams(cOut, cOut, r.kernel, bias) +
		3*r.normParams(cOut)
}

func (r *resolved) upsampleParams(cIn, cOut int64) int64 {
	kernel := []int64{1, 1, 1}
	if r.upsample == Transpose {
		kernel = r.down
	}
	return convParams(cIn, cOut, kernel, false) + r.normParams(cOut)
}

func equal(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
