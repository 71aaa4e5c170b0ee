package neural

import (
	"fmt"
	"math"
	"math/rand"
)

const saturationLimit = 1000.0

// saturate clamps a layer output to [-saturationLimit, saturationLimit] and
// replaces NaN with zero so one unstable weight cannot poison downstream
// scores.
func saturate(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	if value > saturationLimit {
		return saturationLimit
	}
	if value < -saturationLimit {
		return -saturationLimit
	}
	return value
}

type NetworkConfig struct {
	InputSize   int
	HiddenSizes []int
	OutputSize  int
	Activation  string
	Seed        int64
}

type denseLayer struct {
	weights [][]float64
	biases  []float64
}

// Network is a fully connected feed-forward net with one activation applied
// after every affine transform.
type Network struct {
	layers     []denseLayer
	activation string
	apply      ActivationFunc
}

func NewNetwork(cfg NetworkConfig) (*Network, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("input size must be > 0")
	}
	if cfg.OutputSize <= 0 {
		return nil, fmt.Errorf("output size must be > 0")
	}
	for i, width := range cfg.HiddenSizes {
		if width <= 0 {
			return nil, fmt.Errorf("hidden layer %d width must be > 0", i)
		}
	}
	apply, err := GetActivation(cfg.Activation)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	widths := make([]int, 0, len(cfg.HiddenSizes)+2)
	widths = append(widths, cfg.InputSize)
	widths = append(widths, cfg.HiddenSizes...)
	widths = append(widths, cfg.OutputSize)

	layers := make([]denseLayer, 0, len(widths)-1)
	for l := 1; l < len(widths); l++ {
		in, out := widths[l-1], widths[l]
		layer := denseLayer{
			weights: make([][]float64, out),
			biases:  make([]float64, out),
		}
		for j := 0; j < out; j++ {
			row := make([]float64, in)
			for i := range row {
				row[i] = rng.Float64()*2 - 1
			}
			layer.weights[j] = row
			layer.biases[j] = rng.Float64()*2 - 1
		}
		layers = append(layers, layer)
	}

	return &Network{
		layers:     layers,
		activation: cfg.Activation,
		apply:      apply,
	}, nil
}

func (n *Network) InputSize() int {
	if len(n.layers) == 0 {
		return 0
	}
	return len(n.layers[0].weights[0])
}

func (n *Network) OutputSize() int {
	if len(n.layers) == 0 {
		return 0
	}
	return len(n.layers[len(n.layers)-1].biases)
}

// Forward runs one pass and returns the raw output vector. Every layer
// output goes through the saturation guard.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(input) != n.InputSize() {
		return nil, fmt.Errorf("input size mismatch: got=%d want=%d", len(input), n.InputSize())
	}

	current := append([]float64(nil), input...)
	for _, layer := range n.layers {
		next := make([]float64, len(layer.biases))
		for j, row := range layer.weights {
			total := layer.biases[j]
			for i, weight := range row {
				total += weight * current[i]
			}
			next[j] = saturate(n.apply(total))
		}
		current = next
	}
	return current, nil
}

// trainStep runs one backpropagation update against a single target vector
// and returns the sample's squared error before the update.
func (n *Network) trainStep(input, target []float64, learningRate float64) (float64, error) {
	if len(input) != n.InputSize() {
		return 0, fmt.Errorf("input size mismatch: got=%d want=%d", len(input), n.InputSize())
	}
	if len(target) != n.OutputSize() {
		return 0, fmt.Errorf("target size mismatch: got=%d want=%d", len(target), n.OutputSize())
	}

	// Forward pass keeping pre-activation sums per layer.
	activations := make([][]float64, len(n.layers)+1)
	sums := make([][]float64, len(n.layers))
	activations[0] = append([]float64(nil), input...)
	for l, layer := range n.layers {
		sums[l] = make([]float64, len(layer.biases))
		activations[l+1] = make([]float64, len(layer.biases))
		for j, row := range layer.weights {
			total := layer.biases[j]
			for i, weight := range row {
				total += weight * activations[l][i]
			}
			sums[l][j] = total
			activations[l+1][j] = saturate(n.apply(total))
		}
	}

	output := activations[len(n.layers)]
	loss := 0.0
	delta := make([]float64, len(output))
	for j := range output {
		diff := output[j] - target[j]
		loss += diff * diff
		grad, err := Derivative(n.activation, sums[len(n.layers)-1][j])
		if err != nil {
			return 0, err
		}
		delta[j] = diff * grad
	}

	for l := len(n.layers) - 1; l >= 0; l-- {
		layer := n.layers[l]

		var previousDelta []float64
		if l > 0 {
			previousDelta = make([]float64, len(n.layers[l-1].biases))
			for i := range previousDelta {
				total := 0.0
				for j := range layer.weights {
					total += layer.weights[j][i] * delta[j]
				}
				grad, err := Derivative(n.activation, sums[l-1][i])
				if err != nil {
					return 0, err
				}
				previousDelta[i] = total * grad
			}
		}

		for j, row := range layer.weights {
			for i := range row {
				row[i] -= learningRate * delta[j] * activations[l][i]
			}
			layer.biases[j] -= learningRate * delta[j]
		}
		delta = previousDelta
	}

	return loss, nil
}
