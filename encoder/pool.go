package encoder

import (
	"github.com/sugarme/gotch/ts"
)

// MaxPool is 3D max pooling with kernel == stride and no padding.
type MaxPool struct {
	Factor []int64
}

// NewMaxPool creates a MaxPool downsampling by factor per axis.
func NewMaxPool(factor []int64) *MaxPool {
	return &MaxPool{Factor: factor}
}

// Forward implements ts.Module for MaxPool.
func (m *MaxPool) Forward(x *ts.Tensor) *ts.Tensor {
	// ksize = stride = factor; padding=0; dilation=1; ceil=false
	return x.MustMaxPool3d(m.Factor, m.Factor, []int64{0, 0, 0}, []int64{1, 1, 1}, false, false)
}
