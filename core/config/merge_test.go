package config

import (
	"testing"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
)

func TestDeepMergeStructs(t *testing.T) {
	type Inner struct {
		Value int
		Name  string
	}
	type Outer struct {
		Inner Inner
		Count int
	}

	dst := &Outer{Inner: Inner{Value: 1, Name: "original"}, Count: 10}
	src := &Outer{Inner: Inner{Value: 2}, Count: 0}

	DeepMerge(dst, src)

	if dst.Inner.Value != 2 {
		t.Errorf("Inner.Value: got %d, want 2", dst.Inner.Value)
	}
	if dst.Inner.Name != "original" {
		t.Errorf("Inner.Name: got %s, want original", dst.Inner.Name)
	}
	if dst.Count != 10 {
		t.Errorf("Count: got %d, want 10 (zero value shouldn't override)", dst.Count)
	}
}

func TestDeepMergeMaps(t *testing.T) {
	type S struct {
		M map[string]int
	}

	dst := &S{M: map[string]int{"a": 1, "b": 2}}
	src := &S{M: map[string]int{"b": 20, "c": 3}}

	DeepMerge(dst, src)

	if dst.M["a"] != 1 {
		t.Errorf("M[a]: got %d, want 1", dst.M["a"])
	}
	if dst.M["b"] != 20 {
		t.Errorf("M[b]: got %d, want 20", dst.M["b"])
	}
	if dst.M["c"] != 3 {
		t.Errorf("M[c]: got %d, want 3", dst.M["c"])
	}
}

func TestDeepMergeSlices(t *testing.T) {
	type S struct {
		Items []string
	}

	dst := &S{Items: []string{"a", "b"}}
	src := &S{Items: []string{"x", "y", "z"}}

	DeepMerge(dst, src)

	if len(dst.Items) != 3 {
		t.Errorf("Items length: got %d, want 3", len(dst.Items))
	}
	if dst.Items[0] != "x" {
		t.Errorf("Items[0]: got %s, want x", dst.Items[0])
	}
}

func TestDeepMergeEmptySliceNoOverwrite(t *testing.T) {
	type S struct {
		Items []string
	}

	dst := &S{Items: []string{"a", "b"}}
	src := &S{Items: []string{}}

	DeepMerge(dst, src)

	if len(dst.Items) != 2 {
		t.Errorf("Items length: got %d, want 2 (empty slice shouldn't overwrite)", len(dst.Items))
	}
}

func TestDeepMergeNilMap(t *testing.T) {
	type S struct {
		M map[string]int
	}

	dst := &S{M: nil}
	src := &S{M: map[string]int{"a": 1}}

	DeepMerge(dst, src)

	if dst.M == nil {
		t.Error("M should not be nil after merge")
	}
	if dst.M["a"] != 1 {
		t.Errorf("M[a]: got %d, want 1", dst.M["a"])
	}
}

func TestDeepMergeConfig(t *testing.T) {
	dst := DefaultConfig()
	src := &Config{
		Engine:   EngineConfig{DefaultLanguage: "fr"},
		Training: TrainingConfig{Classifier: tools.ClassifierConfig{Epochs: 5}},
	}

	DeepMerge(dst, src)

	if dst.Engine.DefaultLanguage != "fr" {
		t.Errorf("DefaultLanguage: got %s, want fr", dst.Engine.DefaultLanguage)
	}
	if dst.Training.Classifier.Epochs != 5 {
		t.Errorf("Classifier.Epochs: got %d, want 5", dst.Training.Classifier.Epochs)
	}
	if dst.Training.Classifier.LearningRate != tools.DefaultClassifierConfig().LearningRate {
		t.Errorf("LearningRate should retain default: got %v", dst.Training.Classifier.LearningRate)
	}
	if len(dst.Engine.Languages) != 1 || dst.Engine.Languages[0] != "en" {
		t.Errorf("Languages should retain default: got %v", dst.Engine.Languages)
	}
}

func TestDeepMergeMismatchedTypes(t *testing.T) {
	type A struct{ N int }
	type B struct{ N int }

	dst := &A{N: 1}
	DeepMerge(dst, &B{N: 2})
	DeepMerge(dst, A{N: 3})

	if dst.N != 1 {
		t.Errorf("N: got %d, want 1", dst.N)
	}
}

func TestDeepMergeNestedMapValues(t *testing.T) {
	type Limits struct {
		Max int
		Min int
	}
	type S struct {
		M map[string]Limits
	}

	dst := &S{M: map[string]Limits{"en": {Max: 10, Min: 1}}}
	src := &S{M: map[string]Limits{"en": {Max: 20}}}

	DeepMerge(dst, src)

	if got := dst.M["en"]; got.Max != 20 || got.Min != 1 {
		t.Errorf("M[en]: got %+v, want {Max:20 Min:1}", got)
	}
}
