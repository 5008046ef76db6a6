package base

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/ts"
)

// Activation is an element-wise non-linearity. It must not drop its input.
type Activation func(x *ts.Tensor) *ts.Tensor

// Elu applies ELU with alpha 1.
func Elu(x *ts.Tensor) *ts.Tensor {
	return x.MustElu(false)
}

// Relu applies ReLU.
func Relu(x *ts.Tensor) *ts.Tensor {
	return x.MustRelu(false)
}

// ActivationByName resolves a named activation ("elu", "relu").
func ActivationByName(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "elu", "":
		return Elu, nil
	case "relu":
		return Relu, nil
	}
	return nil, errors.Wrapf(ErrInvalidConfig, "unknown activation %q", name)
}
