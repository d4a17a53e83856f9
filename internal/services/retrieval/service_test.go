package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/vectorindex"
)

type fakeEmbedder struct {
	vector []float32
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) []float32 {
	f.calls++
	return f.vector
}

func (f *fakeEmbedder) Dimension() int   { return len(f.vector) }
func (f *fakeEmbedder) FlushCache() error { return nil }
func (f *fakeEmbedder) CacheLen() int    { return 0 }

type fakeDocuments struct {
	docs    map[string]*models.Document
	content map[string]string
}

func (f *fakeDocuments) Get(id string) (*models.Document, error) {
	return f.docs[id], nil
}

func (f *fakeDocuments) Content(id string) (string, error) {
	content, ok := f.content[id]
	if !ok {
		return "", errors.New("no content stored")
	}
	return content, nil
}

func (f *fakeDocuments) Ingest(ctx context.Context, in *models.IngestInput) (*models.IngestResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDocuments) ProcessAttachments(ctx context.Context, attachments []models.Attachment) []models.AttachmentResult {
	return nil
}

func (f *fakeDocuments) Delete(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeDocuments) List() ([]*models.Document, error)                   { return nil, nil }
func (f *fakeDocuments) Stats() *models.KnowledgeBaseStats                   { return &models.KnowledgeBaseStats{} }

type memVectorStorage struct {
	chunks  []models.Chunk
	vectors [][]float32
}

func (m *memVectorStorage) SaveChunks(chunks []models.Chunk) error      { m.chunks = chunks; return nil }
func (m *memVectorStorage) LoadChunks() ([]models.Chunk, error)         { return m.chunks, nil }
func (m *memVectorStorage) SaveVectors(vectors [][]float32) error       { m.vectors = vectors; return nil }
func (m *memVectorStorage) LoadVectors() ([][]float32, error)           { return m.vectors, nil }

func testService(t *testing.T, seed []models.IndexedChunk, docs *fakeDocuments, embedder *fakeEmbedder) *Service {
	t.Helper()
	index := vectorindex.NewIndex(&memVectorStorage{}, 2, arbor.NewLogger())
	if len(seed) > 0 {
		if _, err := index.Add(seed); err != nil {
			t.Fatal(err)
		}
	}
	if docs == nil {
		docs = &fakeDocuments{docs: map[string]*models.Document{}, content: map[string]string{}}
	}
	return NewService(embedder, index, docs, &common.RetrievalConfig{TopK: 5, MinScore: 0}, arbor.NewLogger())
}

func seedChunk(docID, fileName, text string, vec []float32, idx int) models.IndexedChunk {
	return models.IndexedChunk{
		Chunk: models.Chunk{
			ChunkID:    models.ChunkID(docID, idx),
			DocumentID: docID,
			FileName:   fileName,
			Text:       text,
			ChunkIndex: idx,
		},
		Embedding: vec,
	}
}

func TestRetrieveBlankQuerySkipsEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	svc := testService(t, nil, nil, embedder)

	for _, query := range []string{"", "   ", "\n\t"} {
		rc, err := svc.Retrieve(context.Background(), query, 0)
		if err != nil {
			t.Fatal(err)
		}
		if rc.HasContext || rc.ContextText != "" || len(rc.Sources) != 0 {
			t.Errorf("query %q produced non-empty context", query)
		}
	}
	if embedder.calls != 0 {
		t.Errorf("blank queries reached the embedder %d times", embedder.calls)
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	svc := testService(t, nil, nil, &fakeEmbedder{vector: []float32{1, 0}})

	rc, err := svc.Retrieve(context.Background(), "anything", 0)
	if err != nil {
		t.Fatal(err)
	}
	if rc.HasContext {
		t.Error("empty index must yield an empty context")
	}
}

func TestRetrieveSourcesDedupedInRankOrder(t *testing.T) {
	seed := []models.IndexedChunk{
		seedChunk("doc_a", "alpha.txt", "alpha chunk one", []float32{1, 0}, 0),
		seedChunk("doc_a", "alpha.txt", "alpha chunk two", []float32{0.8, 0.6}, 1),
		seedChunk("doc_b", "beta.txt", "beta chunk", []float32{0.6, 0.8}, 0),
	}
	svc := testService(t, seed, nil, &fakeEmbedder{vector: []float32{1, 0}})

	rc, err := svc.Retrieve(context.Background(), "alpha things", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !rc.HasContext {
		t.Fatal("expected context")
	}
	if len(rc.Sources) != 2 {
		t.Fatalf("sources = %d, want 2 (one per document)", len(rc.Sources))
	}
	if rc.Sources[0].DocumentID != "doc_a" || rc.Sources[1].DocumentID != "doc_b" {
		t.Errorf("sources out of rank order: %+v", rc.Sources)
	}
	if rc.Sources[0].Similarity != "100.0%" {
		t.Errorf("similarity = %s, want 100.0%%", rc.Sources[0].Similarity)
	}

	if !strings.HasPrefix(rc.ContextText, "### Relevant information from the knowledge base ###\n\n") {
		t.Error("context missing header")
	}
	for _, text := range []string{"alpha chunk one", "alpha chunk two", "beta chunk"} {
		if !strings.Contains(rc.ContextText, text) {
			t.Errorf("context missing chunk text %q", text)
		}
	}
	footer := fmt.Sprintf("### Sources ###\n[1] alpha.txt (Relevance: 100.0%%)\n[2] beta.txt (Relevance: %s)\n", rc.Sources[1].Similarity)
	if !strings.HasSuffix(rc.ContextText, footer) {
		t.Errorf("context footer mismatch, got tail %q", rc.ContextText[len(rc.ContextText)-len(footer):])
	}
}

func TestRetrieveNoSupplementWithEnoughMatches(t *testing.T) {
	seed := []models.IndexedChunk{
		seedChunk("doc_a", "alpha.txt", "one", []float32{1, 0}, 0),
		seedChunk("doc_a", "alpha.txt", "two", []float32{0.9, 0.435889894}, 1),
		seedChunk("doc_a", "alpha.txt", "three", []float32{0.8, 0.6}, 2),
	}
	docs := &fakeDocuments{
		docs:    map[string]*models.Document{"doc_a": {ID: "doc_a", FileName: "alpha.txt"}},
		content: map[string]string{"doc_a": "full alpha content"},
	}
	svc := testService(t, seed, docs, &fakeEmbedder{vector: []float32{1, 0}})

	rc, err := svc.Retrieve(context.Background(), "alpha", 0)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(rc.ContextText, "Additional content from file") {
		t.Error("supplement added despite three matches")
	}
}

func TestRetrieveSupplementTextExcerpt(t *testing.T) {
	long := strings.Repeat("x", textExcerptBytes+500)
	seed := []models.IndexedChunk{
		seedChunk("doc_a", "notes.txt", "only hit", []float32{1, 0}, 0),
	}
	docs := &fakeDocuments{
		docs:    map[string]*models.Document{"doc_a": {ID: "doc_a", FileName: "notes.txt"}},
		content: map[string]string{"doc_a": long},
	}
	svc := testService(t, seed, docs, &fakeEmbedder{vector: []float32{1, 0}})

	rc, err := svc.Retrieve(context.Background(), "notes", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rc.ContextText, "\nAdditional content from file notes.txt:\n") {
		t.Fatal("supplement missing")
	}
	if !strings.Contains(rc.ContextText, "Content (excerpt):\n") {
		t.Error("text supplement missing excerpt marker")
	}
	if !strings.Contains(rc.ContextText, "... (content truncated)") {
		t.Error("oversized content not truncated")
	}
	if strings.Contains(rc.ContextText, strings.Repeat("x", textExcerptBytes+1)) {
		t.Error("supplement exceeds the excerpt bound")
	}
}

func TestRetrieveSupplementTabularSample(t *testing.T) {
	var lines []string
	lines = append(lines, "id,name,value")
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf("%d,row%d,%d", i, i, i*10))
	}
	seed := []models.IndexedChunk{
		seedChunk("doc_t", "table.csv", "only hit", []float32{1, 0}, 0),
	}
	docs := &fakeDocuments{
		docs:    map[string]*models.Document{"doc_t": {ID: "doc_t", FileName: "table.csv", Tabular: true}},
		content: map[string]string{"doc_t": strings.Join(lines, "\n")},
	}
	svc := testService(t, seed, docs, &fakeEmbedder{vector: []float32{1, 0}})

	rc, err := svc.Retrieve(context.Background(), "table", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rc.ContextText, "Headers: id,name,value\n") {
		t.Error("tabular supplement missing headers line")
	}
	if !strings.Contains(rc.ContextText, fmt.Sprintf("Sample content (first %d lines):\n", tabularSampleRows)) {
		t.Error("tabular supplement missing sample marker")
	}
	if !strings.Contains(rc.ContextText, lines[tabularSampleRows-1]+"\n") {
		t.Error("sample missing its last allowed line")
	}
	if strings.Contains(rc.ContextText, lines[tabularSampleRows]+"\n") {
		t.Error("sample includes lines beyond the cap")
	}
}

func TestRetrieveSupplementSkipsMissingContent(t *testing.T) {
	seed := []models.IndexedChunk{
		seedChunk("doc_gone", "gone.txt", "only hit", []float32{1, 0}, 0),
	}
	docs := &fakeDocuments{
		docs:    map[string]*models.Document{"doc_gone": {ID: "doc_gone", FileName: "gone.txt"}},
		content: map[string]string{},
	}
	svc := testService(t, seed, docs, &fakeEmbedder{vector: []float32{1, 0}})

	rc, err := svc.Retrieve(context.Background(), "gone", 0)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(rc.ContextText, "Additional content") {
		t.Error("supplement must be skipped when content is missing")
	}
	if !rc.HasContext {
		t.Error("chunk hits still build a context without the supplement")
	}
}
