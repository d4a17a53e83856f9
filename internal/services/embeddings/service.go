package embeddings

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
	"golang.org/x/time/rate"
)

// Service resolves embeddings through a strategy chain: cache hit, then the
// remote embedding endpoint, then the local deterministic algorithm. The
// chain always produces a vector, so Embed never fails.
type Service struct {
	llmService       interfaces.LLMService
	cacheStorage     interfaces.CacheStorage
	cache            *embeddingCache
	local            *localEmbedder
	limiter          *rate.Limiter
	dimension        int
	maxRemoteTextLen int
	logger           arbor.ILogger
}

// NewService creates the embedding service and restores the persisted cache
func NewService(llmService interfaces.LLMService, cacheStorage interfaces.CacheStorage, config *common.EmbeddingsConfig, logger arbor.ILogger) (*Service, error) {
	s := &Service{
		llmService:       llmService,
		cacheStorage:     cacheStorage,
		cache:            newEmbeddingCache(config.CacheCapacity, config.CacheRetain),
		local:            newLocalEmbedder(config.Dimension),
		limiter:          rate.NewLimiter(rate.Limit(config.RemoteRate), config.RemoteBurst),
		dimension:        config.Dimension,
		maxRemoteTextLen: config.MaxRemoteTextLen,
		logger:           logger,
	}

	entries, err := cacheStorage.LoadEntries()
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		s.cache.restore(entries)
		logger.Info().Int("entries", len(entries)).Msg("Restored embedding cache")
	}

	return s, nil
}

// Embed returns a vector for the text. Empty or whitespace-only text gets
// the uniform default vector and is never cached.
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return uniformEmbedding(s.dimension)
	}

	sum := md5.Sum([]byte(normalized))
	textHash := hex.EncodeToString(sum[:])

	if embedding, ok := s.cache.get(textHash); ok {
		return embedding
	}

	embedding := s.remoteEmbed(ctx, normalized)
	if embedding == nil {
		embedding = s.local.Embed(normalized)
	}

	s.cache.put(textHash, embedding)
	return embedding
}

// remoteEmbed attempts the remote endpoint. Returns nil when the text is
// too long, the rate limiter has no budget, or the call fails. Remote
// vectors of the wrong length are rejected so the index stays uniform.
func (s *Service) remoteEmbed(ctx context.Context, text string) []float32 {
	if len(text) > s.maxRemoteTextLen {
		return nil
	}
	if !s.limiter.Allow() {
		s.logger.Debug().Msg("Remote embedding rate limit reached, using local algorithm")
		return nil
	}

	embedding, err := s.llmService.Embed(ctx, text)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Remote embedding unavailable, using local algorithm")
		return nil
	}
	if len(embedding) != s.dimension {
		s.logger.Warn().
			Int("got", len(embedding)).
			Int("want", s.dimension).
			Msg("Remote embedding dimension mismatch, using local algorithm")
		return nil
	}
	return embedding
}

// Dimension returns the embedding vector length
func (s *Service) Dimension() int {
	return s.dimension
}

// FlushCache persists the current cache contents
func (s *Service) FlushCache() error {
	entries := s.cache.snapshot()
	if err := s.cacheStorage.SaveEntries(entries); err != nil {
		return err
	}
	s.logger.Debug().Int("entries", len(entries)).Msg("Flushed embedding cache")
	return nil
}

// CacheLen returns the number of cached embeddings
func (s *Service) CacheLen() int {
	return s.cache.len()
}
