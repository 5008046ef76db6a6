package base

import (
	"math"
	"math/rand"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// Initializer fills convolution weights with Kaiming (MSRA) normal values.
//
// Values come from a Go random source rather than the libtorch generator, so
// a given seed yields the same weights on every device and every run as long
// as layers are created in the same order.
type Initializer struct {
	rng *rand.Rand
}

// NewInitializer creates an Initializer seeded with seed.
func NewInitializer(seed int64) *Initializer {
	return &Initializer{rng: rand.New(rand.NewSource(seed))}
}

// KaimingStd is the standard deviation of Kaiming normal init for a weight of
// shape dims: sqrt(2/fanIn) with fanIn = dims[1] * prod(dims[2:]).
func KaimingStd(dims []int64) float64 {
	fanIn := int64(1)
	for _, d := range dims[1:] {
		fanIn *= d
	}
	return math.Sqrt(2.0 / float64(fanIn))
}

// KaimingNormal draws len = prod(dims) values from N(0, KaimingStd(dims)).
func (i *Initializer) KaimingNormal(dims []int64) []float32 {
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	std := KaimingStd(dims)
	vals := make([]float32, n)
	for j := range vals {
		vals[j] = float32(i.rng.NormFloat64() * std)
	}
	return vals
}

// NewWeight registers a weight of shape dims on p and fills it with Kaiming
// normal values.
func (i *Initializer) NewWeight(p *nn.Path, name string, dims []int64) *ts.Tensor {
	w := p.MustNewVar(name, dims, nn.NewConstInit(0.0))
	src := ts.MustOfSlice(i.KaimingNormal(dims)).MustView(dims, true)
	ts.NoGrad(func() {
		w.Copy_(src)
	})
	src.MustDrop()

	return w
}

// NewBias registers a zero bias of size n on p.
func NewBias(p *nn.Path, n int64) *ts.Tensor {
	return p.MustNewVar("bias", []int64{n}, nn.NewConstInit(0.0))
}
