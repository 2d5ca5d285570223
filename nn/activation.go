package nn

import (
	"fmt"
	"strings"

	"github.com/hupe1980/vqvae/tensor"
)

// Activation names the pointwise nonlinearity applied between hidden
// layers of an MLP.
type Activation string

const (
	ActivationELU     Activation = "elu"
	ActivationReLU    Activation = "relu"
	ActivationTanh    Activation = "tanh"
	ActivationSigmoid Activation = "sigmoid"
)

// DefaultActivation is used when no activation is configured.
const DefaultActivation = ActivationELU

// ParseActivation maps a name to an Activation. The empty string
// selects DefaultActivation.
func ParseActivation(s string) (Activation, error) {
	switch a := Activation(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return DefaultActivation, nil
	case ActivationELU, ActivationReLU, ActivationTanh, ActivationSigmoid:
		return a, nil
	default:
		return "", fmt.Errorf("unknown activation %q", s)
	}
}

func (a Activation) apply(x *tensor.Tensor) *tensor.Tensor {
	switch a {
	case ActivationReLU:
		return tensor.ReLU(x)
	case ActivationTanh:
		return tensor.Tanh(x)
	case ActivationSigmoid:
		return tensor.Sigmoid(x)
	default:
		return tensor.ELU(x)
	}
}
