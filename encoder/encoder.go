package encoder

import (
	"github.com/sugarme/gotch/ts"
)

// Encoder is the contracting half of a U-Net.
//
// ForwardAll returns one feature tensor per scale, shallowest first. All but
// the last are skip tensors for the decoder; the last is the bridge output.
// The caller owns every returned tensor.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
}
