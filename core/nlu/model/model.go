// Package model holds the trained model record, the training definitions it
// was built from and the file store that persists it.
package model

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/adalundhe/sylk-nlu/core/nlu/entities"
	"github.com/adalundhe/sylk-nlu/core/nlu/slots"
)

const (
	// NoneIntent is the synthetic catch-all intent.
	NoneIntent = "none"
	// DefaultContext holds intents that declare no context.
	DefaultContext = "global"
)

// Intent is a training intent with its resolved utterances.
type Intent struct {
	slots.Intent
	Contexts []string
}

// Output is the rebuildable result of training. It is never persisted.
type Output struct {
	Intents []Intent
}

// ExactMatch is the intent and contexts of a verbatim training utterance.
type ExactMatch struct {
	Intent   string   `json:"intent"`
	Contexts []string `json:"contexts"`
}

// Artifacts are the trained parameters a predictor is built from.
type Artifacts struct {
	ListEntities []*entities.ListEntity `json:"list_entities"`
	TFIDF        map[string]float64     `json:"tfidf"`
	VocabVectors map[string][]float32   `json:"vocab_vectors"`
	Centroids    [][]float32            `json:"centroids,omitempty"`
	Contexts     []string               `json:"contexts"`

	// ContextModel is empty when a single context exists.
	ContextModel []byte                            `json:"context_model,omitempty"`
	IntentModels map[string][]byte                 `json:"intent_models"`
	SlotModel    []byte                            `json:"slot_model,omitempty"`
	ExactMatch   map[string]ExactMatch             `json:"exact_match"`
	IntentSlots  map[string][]slots.SlotDefinition `json:"intent_slots,omitempty"`
	IntentVocab  map[string]map[string]bool        `json:"intent_vocab,omitempty"`
}

// Model is the record produced by one training run.
type Model struct {
	ID         string     `json:"id"`
	Hash       string     `json:"hash"`
	Language   string     `json:"language"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Success    bool       `json:"success"`
	Error      string     `json:"error,omitempty"`
	Input      Input      `json:"input"`
	Output     *Output    `json:"-"`
	Artifacts  *Artifacts `json:"artifacts,omitempty"`
}

// New returns an empty record for input with a fresh ID and its hash.
func New(input Input) (*Model, error) {
	hash, err := Hash(input)
	if err != nil {
		return nil, err
	}
	return &Model{
		ID:        uuid.New().String(),
		Hash:      hash,
		Language:  input.Language,
		StartedAt: time.Now().UTC(),
		Input:     input,
	}, nil
}

// Key is the store key of the model.
func (m *Model) Key() string {
	return FileName(m.Hash, m.Language)
}

// Hash is the hex sha3-256 of the canonical JSON of the intent and entity
// definitions. Language and seed do not contribute.
func Hash(input Input) (string, error) {
	data, err := json.Marshal(struct {
		Intents  []IntentDefinition `json:"intents"`
		Entities []EntityDefinition `json:"entities"`
	}{input.Intents, input.Entities})
	if err != nil {
		return "", fmt.Errorf("hash model input: %w", err)
	}
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
