package base

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// NormGate is an optional normalisation layer. The variant is chosen once at
// construction.
type NormGate interface {
	ForwardT(x *ts.Tensor, train bool) *ts.Tensor
}

// NormConfig configures NewNormGate.
type NormConfig struct {
	Enabled  bool
	Momentum float64
	Eps      float64
	// TrackStats uses running statistics outside training. When false batch
	// statistics are always used.
	TrackStats bool
}

// DefaultNormConfig is batch norm with momentum 0.001 on batch statistics.
func DefaultNormConfig() NormConfig {
	return NormConfig{
		Enabled:  true,
		Momentum: 0.001,
		Eps:      1e-5,
	}
}

// NewNormGate returns BatchNorm when cfg is enabled and Identity otherwise.
func NewNormGate(p *nn.Path, cOut int64, cfg NormConfig) NormGate {
	if !cfg.Enabled {
		return NewIdentity()
	}
	return NewBatchNorm(p, cOut, cfg)
}

// Identity is a NormGate placeholder.
// It forwards the input tensor as such.
type Identity struct{}

// ForwardT implements NormGate for Identity.
func (i *Identity) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return x.MustShallowClone()
}

// NewIdentity creates a new Identity struct.
func NewIdentity() *Identity {
	return &Identity{}
}

// BatchNorm is 3D batch normalisation with unit weight and zero bias.
//
// Without TrackStats no running buffers exist: every call normalises with the
// statistics of its own batch and nothing is written to the layer. With
// TrackStats running_mean / running_var are updated in training and used
// otherwise.
type BatchNorm struct {
	Ws          *ts.Tensor
	Bs          *ts.Tensor
	RunningMean *ts.Tensor // nil without TrackStats
	RunningVar  *ts.Tensor // nil without TrackStats

	bn       *nn.BatchNorm
	momentum float64
	eps      float64
}

// NewBatchNorm creates a BatchNorm under p with weight and bias (and running
// buffers with TrackStats).
func NewBatchNorm(p *nn.Path, cOut int64, cfg NormConfig) *BatchNorm {
	if cfg.TrackStats {
		bnConfig := nn.DefaultBatchNormConfig()
		bnConfig.Momentum = cfg.Momentum
		bnConfig.Eps = cfg.Eps
		bnConfig.WsInit = nn.NewConstInit(1.0)
		bnConfig.BsInit = nn.NewConstInit(0.0)
		bn := nn.BatchNorm3D(p, cOut, bnConfig)

		return &BatchNorm{
			Ws:          bn.Ws,
			Bs:          bn.Bs,
			RunningMean: bn.RunningMean,
			RunningVar:  bn.RunningVar,
			bn:          bn,
			momentum:    cfg.Momentum,
			eps:         cfg.Eps,
		}
	}

	return &BatchNorm{
		Ws:       p.MustNewVar("weight", []int64{cOut}, nn.NewConstInit(1.0)),
		Bs:       p.MustNewVar("bias", []int64{cOut}, nn.NewConstInit(0.0)),
		momentum: cfg.Momentum,
		eps:      cfg.Eps,
	}
}

// Tracking reports whether the layer keeps running statistics.
func (n *BatchNorm) Tracking() bool {
	return n.bn != nil
}

// ForwardT implements NormGate for BatchNorm.
func (n *BatchNorm) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	if n.bn != nil {
		return n.bn.ForwardT(x, train)
	}
	// undefined running tensors: batch statistics, no buffer update
	return ts.MustBatchNorm(x, n.Ws, n.Bs, ts.NewTensor(), ts.NewTensor(), true, n.momentum, n.eps, false)
}
