package dense

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/lexbench/lex-bench/internal/pkg/errors"
	"github.com/lexbench/lex-bench/internal/pkg/hash"
	"github.com/lexbench/lex-bench/internal/trec"
)

// corpusCache is the on-disk layout for cached corpus embeddings. The
// fingerprint ties the vectors to the exact model and corpus content that
// produced them; a mismatch on load means re-encode.
type corpusCache struct {
	Fingerprint string
	DocIDs      []string
	Vectors     [][]float32
}

// corpusFingerprint digests the model name plus every document ID and text.
func corpusFingerprint(model string, docs []trec.Document) string {
	parts := make([]string, 0, 2*len(docs)+1)
	parts = append(parts, model)
	for _, d := range docs {
		parts = append(parts, d.ID, d.Text)
	}
	return hash.Fingerprint(parts...)
}

// loadCachedEmbeddings returns cached vectors when the file exists and its
// fingerprint matches, else (nil, false).
func loadCachedEmbeddings(path, fingerprint string) ([][]float32, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var cached corpusCache
	if err := gob.NewDecoder(f).Decode(&cached); err != nil {
		return nil, false
	}
	if cached.Fingerprint != fingerprint {
		return nil, false
	}
	return cached.Vectors, true
}

// saveCachedEmbeddings writes corpus vectors with their fingerprint.
func saveCachedEmbeddings(path, fingerprint string, docs []trec.Document, vectors [][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.InternalError(fmt.Sprintf("creating %s", path), err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}

	cached := corpusCache{
		Fingerprint: fingerprint,
		DocIDs:      ids,
		Vectors:     vectors,
	}
	if err := gob.NewEncoder(f).Encode(&cached); err != nil {
		f.Close()
		return errors.InternalError(fmt.Sprintf("encoding %s", path), err)
	}
	return f.Close()
}
