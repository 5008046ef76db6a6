package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/base"
)

var _ Encoder = (*Contracting)(nil)

// ContractingStage is one encoder scale: a ConvModule whose output is kept as
// skip tensor, then pooled.
type ContractingStage struct {
	Conv *base.ConvModule
	Pool *MaxPool
}

// Contracting is the RSUNet encoder. Stages[d] works at scale d; Bridge is
// the deepest scale and is not pooled.
type Contracting struct {
	Stages []*ContractingStage
	Bridge *base.ConvModule
}

// NewContracting builds len(features)-1 contracting stages and a bridge.
// Parameters live under convmod{d}; the bridge is convmod{depth}.
func NewContracting(p *nn.Path, ini *base.Initializer, cIn int64, features []int64, down []int64, cfg base.ModuleConfig) *Contracting {
	depth := len(features) - 1
	stages := make([]*ContractingStage, depth)
	current := cIn
	for d := 0; d < depth; d++ {
		stages[d] = &ContractingStage{
			Conv: base.NewConvModule(p.Sub(fmt.Sprintf("convmod%d", d)), ini, current, features[d], cfg),
			Pool: NewMaxPool(down),
		}
		current = features[d]
	}
	bridge := base.NewConvModule(p.Sub(fmt.Sprintf("convmod%d", depth)), ini, current, features[depth], cfg)

	return &Contracting{Stages: stages, Bridge: bridge}
}

// Depth is the number of pooling stages.
func (e *Contracting) Depth() int {
	return len(e.Stages)
}

// ForwardAll implements Encoder for Contracting.
func (e *Contracting) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	features := make([]*ts.Tensor, 0, len(e.Stages)+1)
	cur := x
	for _, st := range e.Stages {
		skip := st.Conv.ForwardT(cur, train)
		if cur != x {
			cur.MustDrop()
		}
		features = append(features, skip)
		cur = st.Pool.Forward(skip)
	}

	bridge := e.Bridge.ForwardT(cur, train)
	if cur != x {
		cur.MustDrop()
	}

	return append(features, bridge)
}
