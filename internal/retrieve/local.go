package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/ppiankov/factloop/internal/model"
)

const localCollection = "evidence"

// LocalRetriever searches an offline corpus of evidence records held in an
// in-process vector store
type LocalRetriever struct {
	records    []model.EvidenceRecord
	collection *chromem.Collection
	topK       int
}

// LoadCorpus reads a JSON array of evidence records
func LoadCorpus(path string) ([]model.EvidenceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var records []model.EvidenceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	return records, nil
}

// NewLocalRetriever indexes records with embedder. With a persist path the
// vectors are stored on disk and reused while the corpus size is unchanged.
func NewLocalRetriever(ctx context.Context, records []model.EvidenceRecord, embedder Embedder, persistPath string, topK int) (*LocalRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("local retrieval needs an embedder")
	}
	if topK <= 0 {
		topK = 10
	}

	var (
		db  *chromem.DB
		err error
	)
	if persistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(persistPath, "chromem.gob"), false)
		if err != nil {
			return nil, fmt.Errorf("open vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(localCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	if collection.Count() != len(records) {
		docs := make([]chromem.Document, 0, len(records))
		for i, r := range records {
			docs = append(docs, chromem.Document{
				ID:       strconv.Itoa(i),
				Content:  documentText(r),
				Metadata: map[string]string{"source_type": string(r.SourceType)},
			})
		}
		if len(docs) > 0 {
			if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
				return nil, fmt.Errorf("index corpus: %w", err)
			}
		}
	}

	return &LocalRetriever{records: records, collection: collection, topK: topK}, nil
}

// Name implements Retriever
func (l *LocalRetriever) Name() string { return "local" }

// Retrieve returns the closest records, most similar first
func (l *LocalRetriever) Retrieve(ctx context.Context, claim model.Claim) ([]model.EvidenceRecord, error) {
	n := min(l.topK, l.collection.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := l.collection.Query(ctx, claim.Text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query corpus: %w", err)
	}

	records := make([]model.EvidenceRecord, 0, len(results))
	for _, res := range results {
		i, err := strconv.Atoi(res.ID)
		if err != nil || i < 0 || i >= len(l.records) {
			continue
		}
		records = append(records, l.records[i])
	}
	return records, nil
}

func documentText(r model.EvidenceRecord) string {
	parts := []string{r.Title, r.Summary, r.Body}
	var b strings.Builder
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p)
		}
	}
	return b.String()
}
