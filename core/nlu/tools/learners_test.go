package tools

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separableSamples() []Sample {
	var samples []Sample
	for i := 0; i < 20; i++ {
		f := float64(i) / 20
		samples = append(samples,
			Sample{Features: []float64{1 + f, 0.1 * f}, Label: "left"},
			Sample{Features: []float64{-1 - f, 0.1 * f}, Label: "right"},
			Sample{Features: []float64{0.05 * f, 2 + f}, Label: "up"},
		)
	}
	return samples
}

func TestLinearClassifier_LearnsSeparableData(t *testing.T) {
	t.Parallel()

	c := NewLinearClassifier(DefaultClassifierConfig())
	require.NoError(t, c.Train(context.Background(), separableSamples()))
	assert.Equal(t, []string{"left", "right", "up"}, c.Labels())

	tests := []struct {
		features []float64
		want     string
	}{
		{[]float64{1.5, 0}, "left"},
		{[]float64{-1.5, 0}, "right"},
		{[]float64{0, 2.5}, "up"},
	}
	for _, tt := range tests {
		preds, err := c.Predict(tt.features)
		require.NoError(t, err)
		require.Len(t, preds, 3)
		assert.Equal(t, tt.want, preds[0].Label)

		var sum float64
		for _, p := range preds {
			sum += p.Confidence
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestLinearClassifier_SingleLabel(t *testing.T) {
	t.Parallel()

	c := NewLinearClassifier(DefaultClassifierConfig())
	require.NoError(t, c.Train(context.Background(), []Sample{
		{Features: []float64{1, 2}, Label: "only"},
		{Features: []float64{2, 1}, Label: "only"},
	}))
	preds, err := c.Predict([]float64{0, 0})
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{Label: "only", Confidence: 1}}, preds)
}

func TestLinearClassifier_RoundTrip(t *testing.T) {
	t.Parallel()

	c := NewLinearClassifier(DefaultClassifierConfig())
	require.NoError(t, c.Train(context.Background(), separableSamples()))
	data, err := c.MarshalBinary()
	require.NoError(t, err)

	loaded, err := LoadLinearClassifier(data)
	require.NoError(t, err)

	x := []float64{0.3, 0.7}
	want, err := c.Predict(x)
	require.NoError(t, err)
	got, err := loaded.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLinearClassifier_Errors(t *testing.T) {
	t.Parallel()

	c := NewLinearClassifier(DefaultClassifierConfig())
	_, err := c.Predict([]float64{1})
	assert.Error(t, err)

	assert.Error(t, c.Train(context.Background(), nil))
	assert.Error(t, c.Train(context.Background(), []Sample{
		{Features: []float64{1}, Label: "a"},
		{Features: []float64{1, 2}, Label: "b"},
	}))

	require.NoError(t, c.Train(context.Background(), separableSamples()))
	_, err = c.Predict([]float64{1, 2, 3})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewLinearClassifier(DefaultClassifierConfig()).Train(ctx, separableSamples()), context.Canceled)
}

func feats(names ...string) []Feature {
	out := make([]Feature, len(names))
	for i, n := range names {
		out[i] = Feature{Name: n, Value: 1}
	}
	return out
}

func crfSequences() []Sequence {
	return []Sequence{
		{
			Features: [][]Feature{feats("word=fly", "__BOS__"), feats("word=to"), feats("word=paris", "__EOS__")},
			Labels:   []string{"O", "O", "B-city"},
		},
		{
			Features: [][]Feature{feats("word=fly", "__BOS__"), feats("word=to"), feats("word=london", "__EOS__")},
			Labels:   []string{"O", "O", "B-city"},
		},
		{
			Features: [][]Feature{feats("word=go", "__BOS__"), feats("word=to"), feats("word=new"), feats("word=york", "__EOS__")},
			Labels:   []string{"O", "O", "B-city", "I-city"},
		},
		{
			Features: [][]Feature{feats("word=hello", "__BOS__"), feats("word=there", "__EOS__")},
			Labels:   []string{"O", "O"},
		},
	}
}

func TestCRF_LearnsTrainingSequences(t *testing.T) {
	t.Parallel()

	c := NewCRF(DefaultCRFConfig())
	require.NoError(t, c.Train(context.Background(), crfSequences()))
	assert.ElementsMatch(t, []string{"O", "B-city", "I-city"}, c.Labels())

	marginals, err := c.Marginals([][]Feature{feats("word=fly", "__BOS__"), feats("word=to"), feats("word=paris", "__EOS__")})
	require.NoError(t, err)
	require.Len(t, marginals, 3)

	assert.Greater(t, marginals[0]["O"], 0.5)
	assert.Greater(t, marginals[2]["B-city"], 0.5)
	for _, m := range marginals {
		var sum float64
		for _, p := range m {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestCRF_RoundTripIsByteIdentical(t *testing.T) {
	t.Parallel()

	c := NewCRF(DefaultCRFConfig())
	require.NoError(t, c.Train(context.Background(), crfSequences()))
	data, err := c.MarshalBinary()
	require.NoError(t, err)

	loaded, err := LoadCRF(data)
	require.NoError(t, err)
	again, err := loaded.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	seq := [][]Feature{feats("word=go"), feats("word=unknown")}
	want, err := c.Marginals(seq)
	require.NoError(t, err)
	got, err := loaded.Marginals(seq)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCRF_Errors(t *testing.T) {
	t.Parallel()

	c := NewCRF(DefaultCRFConfig())
	_, err := c.Marginals([][]Feature{feats("a")})
	assert.Error(t, err)
	assert.Error(t, c.Train(context.Background(), nil))
	assert.Error(t, c.Train(context.Background(), []Sequence{{Features: [][]Feature{feats("a")}, Labels: nil}}))

	_, err = LoadCRF([]byte(`{"labels":["O"],"attributes":["a"],"weights":[1]}`))
	assert.Error(t, err)
}

func TestKMeans_Deterministic(t *testing.T) {
	t.Parallel()

	vectors := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{5, 5}, {5.1, 5}, {5, 5.1},
		{-5, 5}, {-5.1, 5}, {-5, 5.1},
	}

	a, err := KMeans(context.Background(), vectors, 3, 7, DefaultKMeansConfig())
	require.NoError(t, err)
	b, err := KMeans(context.Background(), vectors, 3, 7, DefaultKMeansConfig())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 3)

	// each group lands in its own cluster
	clusters := map[int]bool{}
	for _, point := range [][]float32{{0, 0}, {5, 5}, {-5, 5}} {
		clusters[NearestCentroid(a, point)] = true
	}
	assert.Len(t, clusters, 3)
}

func TestKMeans_FewerVectorsThanK(t *testing.T) {
	t.Parallel()

	vectors := [][]float32{{1, 2}, {3, 4}}
	out, err := KMeans(context.Background(), vectors, 8, 1, DefaultKMeansConfig())
	require.NoError(t, err)
	assert.Equal(t, vectors, out)

	out, err = KMeans(context.Background(), nil, 8, 1, DefaultKMeansConfig())
	require.NoError(t, err)
	assert.Nil(t, out)

	assert.Equal(t, -1, NearestCentroid(nil, []float32{1}))
}

func TestHashVectorizer(t *testing.T) {
	t.Parallel()

	v := NewHashVectorizer(32, 16)
	assert.Equal(t, 32, v.Dimension())

	a := v.Vector("Flight")
	b := v.Vector("flight")
	assert.Equal(t, a, b, "vectors are case-insensitive")
	assert.Len(t, a, 32)

	near := cosine(v.Vector("flights"), v.Vector("flight"))
	far := cosine(v.Vector("banana"), v.Vector("flight"))
	assert.Greater(t, near, far)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (Norm(a) * Norm(b))
}

func TestLocal_VectorizeCopies(t *testing.T) {
	t.Parallel()

	l := NewLocal(DefaultLocalConfig())
	out, err := l.Vectorize(context.Background(), []string{"hello", "hello"}, "en")
	require.NoError(t, err)
	require.Len(t, out, 2)
	out[0][0] = float32(math.Inf(1))
	assert.False(t, math.IsInf(float64(out[1][0]), 1))
	assert.Equal(t, DefaultVectorDimension, l.Dimension())
}
