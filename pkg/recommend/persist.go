package recommend

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// modelSnapshot is the gob wire form of a Model. Index maps are rebuilt on
// load.
type modelSnapshot struct {
	Keys           []string
	Vectors        [][]float64
	ClusterBookIDs []string
	Clusters       []int
}

// Save writes the model in gob form.
func (m *Model) Save(w io.Writer) error {
	snap := modelSnapshot{
		Keys:           m.keys,
		Vectors:        m.vectors,
		ClusterBookIDs: m.clusterBookIDs,
		Clusters:       m.clusters,
	}
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("encode recommendation model: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(r io.Reader) (*Model, error) {
	var snap modelSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode recommendation model: %w", err)
	}
	m := &Model{
		keys:           snap.Keys,
		vectors:        snap.Vectors,
		clusterBookIDs: snap.ClusterBookIDs,
		clusters:       snap.Clusters,
		index:          make(map[string]int, len(snap.Keys)),
		clusterIndex:   make(map[string]int, len(snap.ClusterBookIDs)),
	}
	for i, key := range snap.Keys {
		m.index[key] = i
	}
	for i, id := range snap.ClusterBookIDs {
		m.clusterIndex[id] = i
	}
	return m, nil
}

// SaveFile writes the model atomically via a temp file rename.
func (m *Model) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "recommend-model-*")
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

// LoadFile reads a model from disk.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}
