package base_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/base"
)

func moduleConfig(residual, norm bool) base.ModuleConfig {
	normCfg := base.DefaultNormConfig()
	normCfg.Enabled = norm
	return base.ModuleConfig{
		Kernel:     []int64{3, 3, 3},
		Padding:    []int64{1, 1, 1},
		Residual:   residual,
		Norm:       normCfg,
		Activation: base.Elu,
	}
}

func TestKaimingStd(t *testing.T) {
	assert.InDelta(t, math.Sqrt(2.0/(4*27)), base.KaimingStd([]int64{8, 4, 3, 3, 3}), 1e-12)
	// transposed weights are [in, out, k...]; fan-in is taken from dim 1
	assert.InDelta(t, math.Sqrt(2.0/(8*8)), base.KaimingStd([]int64{16, 8, 2, 2, 2}), 1e-12)
}

func TestInitializerReproducible(t *testing.T) {
	dims := []int64{8, 4, 3, 3, 3}
	a := base.NewInitializer(7).KaimingNormal(dims)
	b := base.NewInitializer(7).KaimingNormal(dims)
	c := base.NewInitializer(8).KaimingNormal(dims)
	require.Len(t, a, 8*4*27)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var sum, sq float64
	for _, v := range a {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	n := float64(len(a))
	std := math.Sqrt(sq/n - (sum/n)*(sum/n))
	assert.InDelta(t, base.KaimingStd(dims), std, 0.03)
}

func TestActivationByName(t *testing.T) {
	for _, name := range []string{"elu", "ELU", "relu", ""} {
		act, err := base.ActivationByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, act)
	}
	_, err := base.ActivationByName("gelu")
	assert.True(t, errors.Is(err, base.ErrInvalidConfig))
}

func TestParseConvMode(t *testing.T) {
	m, err := base.ParseConvMode("generic")
	require.NoError(t, err)
	assert.Equal(t, base.ConvGeneric, m)
	assert.Equal(t, "generic", m.String())

	m, err = base.ParseConvMode("")
	require.NoError(t, err)
	assert.Equal(t, base.ConvDirect, m)

	_, err = base.ParseConvMode("tvm")
	assert.True(t, errors.Is(err, base.ErrInvalidConfig))
}

func TestConvBlock(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	ini := base.NewInitializer(0)

	conv := base.NewConvBlock(vs.Root().Sub("conv"), ini, 2, 6, base.DefaultConvConfig())
	assert.Equal(t, []int64{6, 2, 3, 3, 3}, conv.Ws.MustSize())
	assert.False(t, conv.Bs.MustDefined())

	x := ts.MustRand([]int64{1, 2, 4, 8, 8}, gotch.Float, gotch.CPU)
	out := conv.Forward(x)
	assert.Equal(t, []int64{1, 6, 4, 8, 8}, out.MustSize())
	out.MustDrop()

	cfg := &base.ConvConfig{
		Kernel:     []int64{1, 2, 2},
		Stride:     []int64{1, 2, 2},
		Padding:    []int64{0, 0, 0},
		Bias:       true,
		Transposed: true,
	}
	up := base.NewConvBlock(vs.Root().Sub("up"), ini, 2, 3, cfg)
	assert.Equal(t, []int64{2, 3, 1, 2, 2}, up.Ws.MustSize())
	assert.Equal(t, []float64{0, 0, 0}, up.Bs.Float64Values())
	assert.Equal(t, []int64{4, 16, 16}, up.OutSize([]int64{4, 8, 8}))

	out = up.Forward(x)
	assert.Equal(t, []int64{1, 3, 4, 16, 16}, out.MustSize())
	out.MustDrop()
	x.MustDrop()
}

func TestNormGate(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	cfg := base.DefaultNormConfig()

	cfg.Enabled = false
	_, ok := base.NewNormGate(vs.Root().Sub("off"), 4, cfg).(*base.Identity)
	assert.True(t, ok)
	assert.Zero(t, vs.Len())

	cfg.Enabled = true
	gate := base.NewNormGate(vs.Root().Sub("on"), 4, cfg)
	_, ok = gate.(*base.BatchNorm)
	assert.True(t, ok)

	x := ts.MustRand([]int64{2, 4, 2, 4, 4}, gotch.Float, gotch.CPU)
	id := base.NewIdentity().ForwardT(x, true)
	assert.Equal(t, x.Float64Values(), id.Float64Values())

	out := gate.ForwardT(x, false)
	assert.Equal(t, x.MustSize(), out.MustSize())

	x.MustDrop()
	id.MustDrop()
	out.MustDrop()
}

func TestBatchNormBatchStats(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	bn := base.NewBatchNorm(vs.Root().Sub("bn"), 3, base.DefaultNormConfig())
	assert.False(t, bn.Tracking())
	assert.Nil(t, bn.RunningMean)
	assert.Nil(t, bn.RunningVar)

	// weight and bias only
	assert.Equal(t, 2, vs.Len())
	vars := vs.Variables()
	assert.Contains(t, vars, "bn.weight")
	assert.Contains(t, vars, "bn.bias")
	assert.NotContains(t, vars, "bn.running_mean")

	x := ts.MustRand([]int64{2, 3, 2, 4, 4}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	eval := bn.ForwardT(x, false)
	train := bn.ForwardT(x, true)
	again := bn.ForwardT(x, false)
	assert.InDeltaSlice(t, eval.Float64Values(), train.Float64Values(), 1e-6)
	assert.Equal(t, eval.Float64Values(), again.Float64Values())

	// normalised with its own batch: zero mean overall
	var sum float64
	vals := eval.Float64Values()
	for _, v := range vals {
		sum += v
	}
	assert.InDelta(t, 0, sum/float64(len(vals)), 1e-4)

	eval.MustDrop()
	train.MustDrop()
	again.MustDrop()
}

func TestBatchNormTrackStats(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	cfg := base.DefaultNormConfig()
	cfg.TrackStats = true
	bn := base.NewBatchNorm(vs.Root().Sub("bn"), 3, cfg)
	require.True(t, bn.Tracking())
	require.NotNil(t, bn.RunningMean)
	assert.Contains(t, vs.Variables(), "bn.running_mean")

	x := ts.MustRand([]int64{2, 3, 2, 4, 4}, gotch.Float, gotch.CPU)
	defer x.MustDrop()
	mean := bn.RunningMean.Float64Values()
	variance := bn.RunningVar.Float64Values()
	assert.Equal(t, []float64{0, 0, 0}, mean)
	assert.Equal(t, []float64{1, 1, 1}, variance)

	// eval uses the running statistics and leaves them untouched
	var out *ts.Tensor
	ts.NoGrad(func() {
		out = bn.ForwardT(x, false)
	})
	assert.Equal(t, mean, bn.RunningMean.Float64Values())
	assert.Equal(t, variance, bn.RunningVar.Float64Values())
	want := x.Float64Values()
	for i := range want {
		want[i] /= math.Sqrt(1 + cfg.Eps)
	}
	assert.InDeltaSlice(t, want, out.Float64Values(), 1e-5)
	out.MustDrop()

	// training updates them
	ts.NoGrad(func() {
		out = bn.ForwardT(x, true)
	})
	assert.NotEqual(t, mean, bn.RunningMean.Float64Values())
	out.MustDrop()
}

func TestConvModuleShape(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	ini := base.NewInitializer(0)
	x := ts.MustRand([]int64{1, 3, 4, 8, 8}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	for _, norm := range []bool{true, false} {
		m := base.NewConvModule(vs.Root().Sub("m"), ini, 3, 5, moduleConfig(true, norm))
		assert.True(t, m.Residual())
		assert.Equal(t, norm, !m.Conv1.Config.Bias)
		out := m.ForwardT(x, true)
		assert.Equal(t, []int64{1, 5, 4, 8, 8}, out.MustSize())
		out.MustDrop()
	}
}

func TestConvModuleResidual(t *testing.T) {
	x := ts.MustRand([]int64{1, 2, 4, 8, 8}, gotch.Float, gotch.CPU)
	defer x.MustDrop()

	var outs [][]float64
	for _, residual := range []bool{true, false} {
		vs := nn.NewVarStore(gotch.CPU)
		m := base.NewConvModule(vs.Root(), base.NewInitializer(3), 2, 4, moduleConfig(residual, true))
		out := m.ForwardT(x, false)
		assert.Equal(t, []int64{1, 4, 4, 8, 8}, out.MustSize())
		outs = append(outs, out.Float64Values())
		out.MustDrop()
	}
	assert.NotEqual(t, outs[0], outs[1])
}

func TestEmbeddingModules(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	ini := base.NewInitializer(0)
	kernel := []int64{1, 5, 5}
	stride := []int64{1, 2, 2}

	in := base.NewEmbeddingModule(vs.Root().Sub("in"), ini, 1, 4, kernel, stride, base.Elu, base.ConvDirect)
	out := base.NewEmbeddingModuleUpsampling(vs.Root().Sub("out"), ini, 4, 4, kernel, stride, base.Elu, base.ConvDirect)
	head := base.NewOutputModule(vs.Root().Sub("head"), ini, 4, 2, []int64{1, 1, 1}, base.ConvDirect)
	assert.Equal(t, []int64{0, 1, 1}, out.DefaultOutputPadding())

	x := ts.MustRand([]int64{1, 1, 4, 16, 16}, gotch.Float, gotch.CPU)
	h := in.Forward(x)
	assert.Equal(t, []int64{1, 4, 4, 8, 8}, h.MustSize())

	u := out.Forward(h)
	assert.Equal(t, []int64{1, 4, 4, 16, 16}, u.MustSize())
	u2 := out.ForwardTo(h, []int64{4, 15, 16})
	assert.Equal(t, []int64{1, 4, 4, 15, 16}, u2.MustSize())

	y := head.Forward(u)
	assert.Equal(t, []int64{1, 2, 4, 16, 16}, y.MustSize())

	for _, t := range []*ts.Tensor{x, h, u, u2, y} {
		t.MustDrop()
	}
}
