package chromemdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"docqa/internal/models"
)

const manifestFile = "manifest.yaml"

type manifest struct {
	Collections map[string]collectionEntry `yaml:"collections"`
}

type collectionEntry struct {
	EmbeddingModel string `yaml:"embedding_model"`
	Dimensions     int    `yaml:"dimensions"`
	Documents      int    `yaml:"documents"`
}

// readManifest loads the manifest from dir. A missing manifest is a new index.
func readManifest(dir string) (*manifest, error) {
	return readManifestFile(filepath.Join(dir, manifestFile))
}

func readManifestFile(path string) (*manifest, error) {
	m := &manifest{Collections: map[string]collectionEntry{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "read manifest", err)
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, models.Wrap(models.ErrRetrieval, "read manifest", fmt.Errorf("corrupt manifest %s: %w", path, err))
	}
	if m.Collections == nil {
		m.Collections = map[string]collectionEntry{}
	}
	return m, nil
}

func (m *manifest) write(dir string) error {
	return m.writeFile(filepath.Join(dir, manifestFile))
}

// writeFile replaces the manifest atomically.
func (m *manifest) writeFile(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return models.Wrap(models.ErrRetrieval, "write manifest", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return models.Wrap(models.ErrRetrieval, "write manifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return models.Wrap(models.ErrRetrieval, "write manifest", err)
	}
	return nil
}
