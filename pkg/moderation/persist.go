package moderation

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type moderatorSnapshot struct {
	Vocab   map[string]int
	IDF     []float64
	Weights []float64
	Bias    float64
}

// Save writes the trained model in gob form.
func (m *Moderator) Save(w io.Writer) error {
	if !m.trained {
		return fmt.Errorf("cannot save untrained moderation model")
	}
	snap := moderatorSnapshot{Vocab: m.vocab, IDF: m.idf, Weights: m.weights, Bias: m.bias}
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("encode moderation model: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Moderator, error) {
	var snap moderatorSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode moderation model: %w", err)
	}
	return &Moderator{
		vocab:   snap.Vocab,
		idf:     snap.IDF,
		weights: snap.Weights,
		bias:    snap.Bias,
		trained: true,
	}, nil
}

// SaveFile writes the model atomically via a temp file rename.
func (m *Moderator) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "moderation-model-*")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := m.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace model file: %w", err)
	}
	return nil
}

// LoadOrTrain loads the model from path, training and saving a fresh one
// when the file is absent or unreadable.
func LoadOrTrain(path string) *Moderator {
	if path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if m, err := Load(f); err == nil {
				return m
			}
		}
	}
	m := NewModerator()
	if path != "" {
		_ = m.SaveFile(path)
	}
	return m
}
