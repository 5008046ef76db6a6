package unet

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/rsunet/base"
	"github.com/sugarme/rsunet/encoder"
	"github.com/sugarme/rsunet/shape"
)

// outputEmbedding restores the input resolution before the output projection.
type outputEmbedding interface {
	ForwardTo(x *ts.Tensor, size []int64) *ts.Tensor
}

// RSUNet is a Residual Symmetric U-Net for dense 3D prediction.
// Ref: https://arxiv.org/abs/1706.00120
type RSUNet struct {
	config   Config
	embedIn  *base.EmbeddingModule
	encoder  *encoder.Contracting
	decoder  *Decoder
	embedOut outputEmbedding
	output   *base.OutputModule
}

// NewRSUNet builds an RSUNet under p. The whole config is validated before
// any variable is created, so a failed call leaves p untouched.
func NewRSUNet(p *nn.Path, cfg Config) (*RSUNet, error) {
	r, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	ini := base.NewInitializer(r.Seed)
	features := r.Features[:r.Depth+1]
	width := features[0]

	embedIn := base.NewEmbeddingModule(p.Sub("embed_in"), ini, r.InChannels, width, r.embedKernel, r.initStride, r.activation, r.convMode)
	enc := encoder.NewContracting(p, ini, width, features, r.down, r.moduleConfig())
	dec := newDecoder(p, ini, features, r)

	var embedOut outputEmbedding
	if shape.IsUnit(r.initStride) {
		embedOut = base.NewEmbeddingModule(p.Sub("embed_out"), ini, width, width, r.embedKernel, r.initStride, r.activation, r.convMode)
	} else {
		embedOut = base.NewEmbeddingModuleUpsampling(p.Sub("embed_out"), ini, width, width, r.embedKernel, r.initStride, r.activation, r.convMode)
	}
	output := base.NewOutputModule(p.Sub("output"), ini, width, r.OutChannels, r.outputKernel, r.convMode)

	return &RSUNet{
		config:   cfg,
		embedIn:  embedIn,
		encoder:  enc,
		decoder:  dec,
		embedOut: embedOut,
		output:   output,
	}, nil
}

// DefaultRSUNet creates an RSUNet with DefaultConfig and the given number of
// output channels.
func DefaultRSUNet(p *nn.Path, outChannels int64) (*RSUNet, error) {
	cfg := DefaultConfig()
	cfg.OutChannels = outChannels
	return NewRSUNet(p, cfg)
}

// ForwardT implements ts.ModuleT for RSUNet.
// x: [N InChannels D H W] => [N OutChannels D H W]
func (n *RSUNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	size := x.MustSize()

	h := n.embedIn.Forward(x)
	features := n.encoder.ForwardAll(h, train)
	h.MustDrop()

	dec := n.decoder.ForwardFeatures(features, train)
	for _, f := range features {
		f.MustDrop()
	}

	emb := n.embedOut.ForwardTo(dec, size[2:])
	dec.MustDrop()
	out := n.output.Forward(emb)
	emb.MustDrop()

	return out
}

// Forward implements ts.Module for RSUNet in inference mode.
func (n *RSUNet) Forward(x *ts.Tensor) *ts.Tensor {
	return n.ForwardT(x, false)
}

// Config returns the config the network was built from.
func (n *RSUNet) Config() Config {
	return n.config
}

// Depth is the number of pooling (and upsampling) stages.
func (n *RSUNet) Depth() int {
	return n.encoder.Depth()
}

// Encoder returns the contracting path.
func (n *RSUNet) Encoder() *encoder.Contracting {
	return n.encoder
}

// Decoder returns the expanding path.
func (n *RSUNet) Decoder() *Decoder {
	return n.decoder
}

// EmbedIn returns the input embedding.
func (n *RSUNet) EmbedIn() *base.EmbeddingModule {
	return n.embedIn
}
