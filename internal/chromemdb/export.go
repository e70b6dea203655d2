package chromemdb

import (
	"strings"

	"github.com/rs/zerolog/log"

	"docqa/internal/models"
)

// Export writes the collection to filePath, encrypted when key is set.
// A ".gz" suffix compresses the file. The manifest entry is written beside it
// so Import can check the embedding model.
func (s *Store) Export(filePath, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	compress := strings.HasSuffix(filePath, ".gz")
	if err := s.db.ExportToFile(filePath, compress, key, s.opts.Collection); err != nil {
		return models.Wrap(models.ErrRetrieval, "export index", err)
	}

	side := &manifest{Collections: map[string]collectionEntry{
		s.opts.Collection: s.manifest.Collections[s.opts.Collection],
	}}
	if err := side.writeFile(filePath + "." + manifestFile); err != nil {
		return err
	}

	log.Info().Str("file", filePath).Int("documents", s.collection.Count()).Msg("Exported vector index")
	return nil
}

// Import replaces the collection with the one exported to filePath.
func (s *Store) Import(filePath, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	side, err := readManifestFile(filePath + "." + manifestFile)
	if err != nil {
		return err
	}
	entry, ok := side.Collections[s.opts.Collection]
	if !ok {
		return models.Errorf(models.ErrConfiguration, "import index", "%s has no manifest for collection %q", filePath, s.opts.Collection)
	}
	if entry.EmbeddingModel != "" && entry.EmbeddingModel != s.embedder.Model() {
		return models.Errorf(models.ErrConfiguration, "import index",
			"export was built with embedding model %q, configured model is %q", entry.EmbeddingModel, s.embedder.Model())
	}

	// drop the current files so a reopen does not mix old and imported documents
	if err := s.db.DeleteCollection(s.opts.Collection); err != nil {
		return models.Wrap(models.ErrRetrieval, "import index", err)
	}
	if err := s.db.ImportFromFile(filePath, key, s.opts.Collection); err != nil {
		return models.Wrap(models.ErrRetrieval, "import index", err)
	}
	c := s.db.GetCollection(s.opts.Collection, s.embeddingFunc())
	if c == nil {
		return models.Errorf(models.ErrRetrieval, "import index", "collection %q not found in %s", s.opts.Collection, filePath)
	}
	s.collection = c

	entry.Documents = c.Count()
	s.manifest.Collections[s.opts.Collection] = entry
	if err := s.manifest.write(s.opts.Path); err != nil {
		return err
	}

	log.Info().Str("file", filePath).Int("documents", entry.Documents).Msg("Imported vector index")
	return nil
}
