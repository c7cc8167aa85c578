package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ClassifierConfig configures LinearClassifier training.
type ClassifierConfig struct {
	Epochs       int     `yaml:"epochs" json:"epochs"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	L2           float64 `yaml:"l2" json:"l2"`
	Seed         int64   `yaml:"seed" json:"seed"`
}

// DefaultClassifierConfig returns the defaults used for context and intent
// classifiers.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Epochs:       80,
		LearningRate: 0.05,
		L2:           1e-4,
		Seed:         42,
	}
}

// LinearClassifier is a multinomial logistic regression over standardized
// dense features, trained by stochastic gradient descent.
type LinearClassifier struct {
	cfg ClassifierConfig

	labels  []string
	weights [][]float64 // [C][D]
	bias    []float64   // [C]
	mean    []float64   // [D]
	scale   []float64   // [D]
}

type linearClassifierState struct {
	Labels  []string    `json:"labels"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
	Mean    []float64   `json:"mean"`
	Scale   []float64   `json:"scale"`
}

// NewLinearClassifier creates an untrained classifier.
func NewLinearClassifier(cfg ClassifierConfig) *LinearClassifier {
	def := DefaultClassifierConfig()
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.L2 < 0 {
		cfg.L2 = def.L2
	}
	return &LinearClassifier{cfg: cfg}
}

// LoadLinearClassifier restores a classifier from MarshalBinary output.
func LoadLinearClassifier(data []byte) (*LinearClassifier, error) {
	var st linearClassifierState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode classifier: %w", err)
	}
	if len(st.Weights) != len(st.Labels) || len(st.Bias) != len(st.Labels) {
		return nil, fmt.Errorf("decode classifier: %d labels, %d weight rows, %d biases",
			len(st.Labels), len(st.Weights), len(st.Bias))
	}
	return &LinearClassifier{
		cfg:     DefaultClassifierConfig(),
		labels:  st.Labels,
		weights: st.Weights,
		bias:    st.Bias,
		mean:    st.Mean,
		scale:   st.Scale,
	}, nil
}

// Labels returns the trained labels in index order.
func (c *LinearClassifier) Labels() []string {
	return c.labels
}

// Train fits the classifier. Samples must share one feature width.
func (c *LinearClassifier) Train(ctx context.Context, samples []Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("train classifier: no samples")
	}
	dim := len(samples[0].Features)
	for i, s := range samples {
		if len(s.Features) != dim {
			return fmt.Errorf("train classifier: sample %d has %d features, want %d", i, len(s.Features), dim)
		}
	}

	labelIdx := make(map[string]int)
	for _, s := range samples {
		labelIdx[s.Label] = 0
	}
	c.labels = make([]string, 0, len(labelIdx))
	for l := range labelIdx {
		c.labels = append(c.labels, l)
	}
	sort.Strings(c.labels)
	for i, l := range c.labels {
		labelIdx[l] = i
	}

	c.fitScaler(samples, dim)

	X := make([][]float64, len(samples))
	Y := make([]int, len(samples))
	for i, s := range samples {
		X[i] = c.standardize(s.Features)
		Y[i] = labelIdx[s.Label]
	}

	numLabels := len(c.labels)
	c.weights = make([][]float64, numLabels)
	c.bias = make([]float64, numLabels)
	rng := rand.New(rand.NewSource(c.cfg.Seed))
	for k := range c.weights {
		c.weights[k] = make([]float64, dim)
		for j := range c.weights[k] {
			c.weights[k][j] = (rng.Float64()*2 - 1) * 0.01
		}
	}
	if numLabels == 1 {
		return nil
	}

	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}
	probs := make([]float64, numLabels)

	for epoch := 0; epoch < c.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lr := c.cfg.LearningRate / (1 + 0.02*float64(epoch))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for _, i := range order {
			x, y := X[i], Y[i]
			c.probabilities(x, probs)
			for k := 0; k < numLabels; k++ {
				grad := probs[k]
				if k == y {
					grad -= 1
				}
				c.bias[k] -= lr * grad
				if c.cfg.L2 > 0 {
					floats.Scale(1-lr*c.cfg.L2, c.weights[k])
				}
				floats.AddScaled(c.weights[k], -lr*grad, x)
			}
		}
	}
	return nil
}

// Predict returns every label with its probability, best first.
func (c *LinearClassifier) Predict(features []float64) ([]Prediction, error) {
	if len(c.labels) == 0 {
		return nil, fmt.Errorf("predict: classifier not trained")
	}
	if len(features) != len(c.mean) {
		return nil, fmt.Errorf("predict: got %d features, want %d", len(features), len(c.mean))
	}

	out := make([]Prediction, len(c.labels))
	if len(c.labels) == 1 {
		out[0] = Prediction{Label: c.labels[0], Confidence: 1}
		return out, nil
	}

	probs := make([]float64, len(c.labels))
	c.probabilities(c.standardize(features), probs)
	for k, l := range c.labels {
		out[k] = Prediction{Label: l, Confidence: probs[k]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}

// MarshalBinary encodes the trained parameters.
func (c *LinearClassifier) MarshalBinary() ([]byte, error) {
	return json.Marshal(linearClassifierState{
		Labels:  c.labels,
		Weights: c.weights,
		Bias:    c.bias,
		Mean:    c.mean,
		Scale:   c.scale,
	})
}

func (c *LinearClassifier) fitScaler(samples []Sample, dim int) {
	c.mean = make([]float64, dim)
	c.scale = make([]float64, dim)
	col := make([]float64, len(samples))
	for j := 0; j < dim; j++ {
		for i, s := range samples {
			col[i] = s.Features[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		c.mean[j] = mean
		if std < 1e-9 || math.IsNaN(std) {
			c.scale[j] = 1
		} else {
			c.scale[j] = 1 / std
		}
	}
}

func (c *LinearClassifier) standardize(features []float64) []float64 {
	x := make([]float64, len(features))
	floats.SubTo(x, features, c.mean)
	floats.Mul(x, c.scale)
	return x
}

// probabilities writes softmax(Wx+b) into dst.
func (c *LinearClassifier) probabilities(x, dst []float64) {
	for k := range c.weights {
		dst[k] = floats.Dot(c.weights[k], x) + c.bias[k]
	}
	lse := floats.LogSumExp(dst)
	for k := range dst {
		dst[k] = math.Exp(dst[k] - lse)
	}
}

// NewClassifier implements Toolkit for Local.
func (l *Local) NewClassifier() Classifier {
	return NewLinearClassifier(l.cfg.Classifier)
}

// LoadClassifier implements Toolkit for Local.
func (l *Local) LoadClassifier(data []byte) (Classifier, error) {
	return LoadLinearClassifier(data)
}
