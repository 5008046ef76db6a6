package unet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/base"
)

// DecoderStage is one expanding scale: upsample and fuse the skip tensor,
// then a ConvModule.
type DecoderStage struct {
	Up   *UpsampleModule
	Conv *base.ConvModule
}

// Decoder is the expanding half of an RSUNet. Stages[d] restores scale d and
// consumes the skip tensor recorded by encoder stage d.
type Decoder struct {
	Stages []*DecoderStage
}

// newDecoder builds len(features)-1 expanding stages, deepest first, under
// upsample{d} and dconvmod{d}. features[len-1] is the bridge width.
func newDecoder(p *nn.Path, ini *base.Initializer, features []int64, r *resolved) *Decoder {
	depth := len(features) - 1
	stages := make([]*DecoderStage, depth)
	modCfg := r.moduleConfig()
	current := features[depth]
	for d := depth - 1; d >= 0; d-- {
		fs := features[d]
		up := NewUpsampleModule(p.Sub(fmt.Sprintf("upsample%d", d)), ini, current, fs, r.down, r.upsample, r.normConfig(), r.activation, r.convMode)
		conv := base.NewConvModule(p.Sub(fmt.Sprintf("dconvmod%d", d)), ini, fs, fs, modCfg)
		stages[d] = &DecoderStage{Up: up, Conv: conv}
		current = fs
	}

	return &Decoder{Stages: stages}
}

// Depth is the number of upsampling stages.
func (dec *Decoder) Depth() int {
	return len(dec.Stages)
}

// ForwardFeatures runs the expanding path over the encoder output: features
// holds one skip tensor per stage followed by the bridge output. The caller
// keeps ownership of features.
func (dec *Decoder) ForwardFeatures(features []*ts.Tensor, train bool) *ts.Tensor {
	depth := len(dec.Stages)
	if len(features) != depth+1 {
		panic(fmt.Sprintf("decoder: expected %d feature tensors, got %d", depth+1, len(features)))
	}

	x := features[depth].MustShallowClone()
	for d := depth - 1; d >= 0; d-- {
		st := dec.Stages[d]
		fused := st.Up.ForwardSkip(x, features[d], train)
		x.MustDrop()
		x = st.Conv.ForwardT(fused, train)
		fused.MustDrop()
	}

	return x
}
