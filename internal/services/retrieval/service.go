package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/vectorindex"
)

const (
	// Bounds on the full-content supplement added when few chunks match.
	supplementThreshold = 3
	tabularSampleRows   = 15
	textExcerptBytes    = 2000
)

// Service assembles the retrieval context block for a chat query: ranked
// chunk texts, an optional full-content supplement when matches are thin,
// and a numbered sources footer.
type Service struct {
	embedder  interfaces.EmbeddingService
	index     *vectorindex.Index
	documents interfaces.DocumentService
	topK      int
	minScore  float32
	logger    arbor.ILogger
}

// NewService creates the retrieval service
func NewService(embedder interfaces.EmbeddingService, index *vectorindex.Index, documents interfaces.DocumentService, config *common.RetrievalConfig, logger arbor.ILogger) *Service {
	return &Service{
		embedder:  embedder,
		index:     index,
		documents: documents,
		topK:      config.TopK,
		minScore:  float32(config.MinScore),
		logger:    logger,
	}
}

// Retrieve finds chunks relevant to the query and builds the context block.
// A blank query returns an empty context without touching the embedder.
func (s *Service) Retrieve(ctx context.Context, query string, k int) (*models.RetrievalContext, error) {
	if strings.TrimSpace(query) == "" {
		return &models.RetrievalContext{}, nil
	}
	if k <= 0 {
		k = s.topK
	}

	embedding := s.embedder.Embed(ctx, query)
	results := s.index.Search(embedding, k, s.minScore)

	s.logger.Debug().
		Int("results", len(results)).
		Str("query", query).
		Msg("Similarity search completed")

	if len(results) == 0 {
		return &models.RetrievalContext{}, nil
	}

	var b strings.Builder
	b.WriteString("### Relevant information from the knowledge base ###\n\n")

	var sources []models.Source
	seen := make(map[string]bool)

	for _, result := range results {
		if result.Chunk.Text == "" {
			continue
		}
		b.WriteString(result.Chunk.Text)
		b.WriteString("\n\n")

		docID := result.Chunk.DocumentID
		if docID != "" && !seen[docID] {
			seen[docID] = true
			sources = append(sources, models.Source{
				DocumentID: docID,
				FileName:   result.Chunk.FileName,
				Similarity: fmt.Sprintf("%.1f%%", result.Score*100),
			})
		}
	}

	// Thin match set: pull bounded excerpts of the matched documents so
	// the model sees more than a fragment.
	if len(sources) > 0 && len(results) < supplementThreshold {
		for _, source := range sources {
			s.appendSupplement(&b, source.DocumentID)
		}
	}

	if len(sources) > 0 {
		b.WriteString("### Sources ###\n")
		for i, source := range sources {
			fmt.Fprintf(&b, "[%d] %s (Relevance: %s)\n", i+1, source.FileName, source.Similarity)
		}
	}

	return &models.RetrievalContext{
		HasContext:  true,
		ContextText: b.String(),
		Sources:     sources,
	}, nil
}

// appendSupplement writes a bounded excerpt of the document's full content.
// Missing content or metadata just skips the supplement.
func (s *Service) appendSupplement(b *strings.Builder, documentID string) {
	doc, err := s.documents.Get(documentID)
	if err != nil || doc == nil {
		return
	}
	content, err := s.documents.Content(documentID)
	if err != nil || content == "" {
		return
	}

	fmt.Fprintf(b, "\nAdditional content from file %s:\n", doc.FileName)

	if doc.Tabular {
		lines := strings.Split(content, "\n")
		header := ""
		if len(lines) > 0 {
			header = lines[0]
		}
		fmt.Fprintf(b, "Headers: %s\n", header)
		fmt.Fprintf(b, "Sample content (first %d lines):\n", tabularSampleRows)
		for i := 0; i < len(lines) && i < tabularSampleRows; i++ {
			b.WriteString(lines[i])
			b.WriteString("\n")
		}
	} else {
		b.WriteString("Content (excerpt):\n")
		if len(content) > textExcerptBytes {
			b.WriteString(content[:textExcerptBytes])
			b.WriteString("\n... (content truncated)")
		} else {
			b.WriteString(content)
		}
	}
	b.WriteString("\n\n")
}
