// Package tools defines the numeric and linguistic primitives the NLU
// pipelines depend on, and ships a local implementation of every one of them.
//
// Training and prediction never reach for these primitives directly; they
// receive a Toolkit value so hosts can substitute their own tokenizer,
// embeddings or learners.
package tools

import "context"

// Feature is one named attribute of a sequence element.
type Feature struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Sequence is a training example for a SequenceTagger.
type Sequence struct {
	Features [][]Feature
	Labels   []string
}

// Sample is a training example for a Classifier.
type Sample struct {
	Features []float64
	Label    string
}

// Prediction is one label scored by a Classifier.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// LanguageScore is one candidate language reported by a LanguageIdentifier.
type LanguageScore struct {
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// SystemEntity is an entity resolved by a SystemEntityExtractor.
// Start and End are byte offsets into the text.
type SystemEntity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	Source     string  `json:"source"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Tokenizer splits texts into tokens whose concatenation equals the input.
type Tokenizer interface {
	Tokenize(ctx context.Context, texts []string, lang string) ([][]string, error)
}

// Vectorizer maps tokens to fixed-length embeddings.
type Vectorizer interface {
	Vectorize(ctx context.Context, tokens []string, lang string) ([][]float32, error)
	Dimension() int
}

// POSTagger assigns a part-of-speech tag to every token.
type POSTagger interface {
	TagPOS(ctx context.Context, tokens [][]string, lang string) ([][]string, error)
}

// JunkGenerator produces plausible non-words for none-intent synthesis.
type JunkGenerator interface {
	GenerateJunkWords(vocab []string, lang string, seed int64) []string
}

// LanguageIdentifier scores candidate languages for a text, best first.
type LanguageIdentifier interface {
	IdentifyLanguage(text string) []LanguageScore
}

// SystemEntityExtractor resolves built-in entities such as numbers or emails.
type SystemEntityExtractor interface {
	ExtractSystemEntities(ctx context.Context, text, lang string) ([]SystemEntity, error)
}

// Classifier is a trainable multi-class linear model.
type Classifier interface {
	Train(ctx context.Context, samples []Sample) error
	// Predict returns every label with its probability, best first.
	Predict(features []float64) ([]Prediction, error)
	Labels() []string
	MarshalBinary() ([]byte, error)
}

// SequenceTagger is a trainable linear-chain sequence labeler.
type SequenceTagger interface {
	Train(ctx context.Context, sequences []Sequence) error
	// Marginals returns, for every element, the probability of every label.
	Marginals(features [][]Feature) ([]map[string]float64, error)
	MarshalBinary() ([]byte, error)
}

// Clusterer computes k centroids over a set of vectors.
type Clusterer interface {
	KMeans(ctx context.Context, vectors [][]float32, k int, seed int64) ([][]float32, error)
}

// Toolkit is the full capability set handed to the training and prediction
// pipelines.
type Toolkit interface {
	Tokenizer
	Vectorizer
	POSTagger
	JunkGenerator
	LanguageIdentifier
	SystemEntityExtractor
	Clusterer

	NewClassifier() Classifier
	LoadClassifier(data []byte) (Classifier, error)
	NewSequenceTagger() SequenceTagger
	LoadSequenceTagger(data []byte) (SequenceTagger, error)
}
