// Package shape normalises kernel/stride specifications and computes the
// spatial sizes produced by 3D convolution, pooling and upsampling.
//
// All functions work per spatial axis on []int64 so results can be handed
// straight to gotch.
package shape

import (
	"github.com/pkg/errors"
)

// Arity is the number of spatial axes of a volumetric tensor [N C D H W].
const Arity = 3

var (
	// ErrInvalidShape is returned for malformed kernel/stride/size specifications.
	ErrInvalidShape = errors.New("invalid shape")
	// ErrInvalidKernel is returned when "same" padding meets an even kernel size.
	ErrInvalidKernel = errors.New("invalid kernel")
)

// PaddingMode selects how much zero padding a convolution gets.
type PaddingMode int

const (
	Valid PaddingMode = iota // no padding
	Same                     // output size equals input size (stride 1)
	Full                     // maximal padding
)

func (m PaddingMode) String() string {
	switch m {
	case Valid:
		return "valid"
	case Same:
		return "same"
	case Full:
		return "full"
	}
	return "unknown"
}

// Normalize returns v as an arity-long tuple. A single value is replicated,
// a tuple of the right length is copied unchanged.
func Normalize(v []int64, arity int) ([]int64, error) {
	switch len(v) {
	case arity:
		out := make([]int64, arity)
		copy(out, v)
		return out, nil
	case 1:
		out := make([]int64, arity)
		for i := range out {
			out[i] = v[0]
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrInvalidShape, "expected 1 or %d values, got %v", arity, v)
}

// Triple normalises v to the three spatial axes.
func Triple(v ...int64) ([]int64, error) {
	return Normalize(v, Arity)
}

// Kernel normalises v to three strictly positive values. It is used for
// kernel sizes, strides and scale factors alike.
func Kernel(v ...int64) ([]int64, error) {
	out, err := Triple(v...)
	if err != nil {
		return nil, err
	}
	for _, k := range out {
		if k <= 0 {
			return nil, errors.Wrapf(ErrInvalidShape, "values must be positive, got %v", v)
		}
	}
	return out, nil
}

// PadSize computes the per-axis padding of a convolution with the given
// kernel under mode.
func PadSize(kernel []int64, mode PaddingMode) ([]int64, error) {
	ks, err := Kernel(kernel...)
	if err != nil {
		return nil, err
	}

	pad := make([]int64, len(ks))
	switch mode {
	case Valid:
	case Same:
		for i, k := range ks {
			if k%2 == 0 {
				return nil, errors.Wrapf(ErrInvalidKernel, "same padding needs odd kernel sizes, got %v", ks)
			}
			pad[i] = (k - 1) / 2
		}
	case Full:
		for i, k := range ks {
			pad[i] = k - 1
		}
	default:
		return nil, errors.Wrapf(ErrInvalidShape, "unknown padding mode %d", int(mode))
	}

	return pad, nil
}

// ConvOutSize is the spatial size after a convolution (dilation 1).
//
//	out = (in + 2*pad - kernel) / stride + 1
func ConvOutSize(in, kernel, stride, pad []int64) []int64 {
	out := make([]int64, len(in))
	for i := range in {
		out[i] = (in[i]+2*pad[i]-kernel[i])/stride[i] + 1
	}
	return out
}

// TransposeOutSize is the spatial size after a transposed convolution
// (dilation 1).
//
//	out = (in - 1)*stride - 2*pad + kernel + outputPadding
func TransposeOutSize(in, kernel, stride, pad, outputPadding []int64) []int64 {
	out := make([]int64, len(in))
	for i := range in {
		op := int64(0)
		if outputPadding != nil {
			op = outputPadding[i]
		}
		out[i] = (in[i]-1)*stride[i] - 2*pad[i] + kernel[i] + op
	}
	return out
}

// OutputPadding finds the output padding that makes a transposed convolution
// map in to target. libtorch only accepts 0 <= op < stride.
func OutputPadding(in, target, kernel, stride, pad []int64) ([]int64, error) {
	base := TransposeOutSize(in, kernel, stride, pad, nil)
	op := make([]int64, len(in))
	for i := range in {
		op[i] = target[i] - base[i]
		if op[i] < 0 || op[i] >= stride[i] {
			return nil, errors.Wrapf(ErrInvalidShape,
				"transposed conv cannot map %v to %v (kernel %v, stride %v, pad %v)", in, target, kernel, stride, pad)
		}
	}
	return op, nil
}

// PoolOutSize is the spatial size after max pooling with kernel == stride
// and no padding. Exact reports whether every axis divides evenly.
func PoolOutSize(in, factor []int64) (out []int64, exact bool) {
	out = make([]int64, len(in))
	exact = true
	for i := range in {
		out[i] = in[i] / factor[i]
		if in[i]%factor[i] != 0 {
			exact = false
		}
	}
	return out, exact
}

// UpsampleSize scales every axis of in by factor.
func UpsampleSize(in, factor []int64) []int64 {
	out := make([]int64, len(in))
	for i := range in {
		out[i] = in[i] * factor[i]
	}
	return out
}

// IsUnit reports whether every value is 1.
func IsUnit(v []int64) bool {
	for _, x := range v {
		if x != 1 {
			return false
		}
	}
	return true
}

// Prod multiplies all values of v.
func Prod(v []int64) int64 {
	p := int64(1)
	for _, x := range v {
		p *= x
	}
	return p
}
