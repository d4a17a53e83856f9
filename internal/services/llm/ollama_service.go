package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
)

// Service talks to a local Ollama server over its HTTP API. Generation
// responses are streamed as line-delimited JSON objects.
type Service struct {
	baseURL        string
	defaultModel   string
	embeddingModel string
	requestTimeout time.Duration
	client         *http.Client
	logger         arbor.ILogger
}

// NewService creates an Ollama-backed LLM service. The client carries no
// global timeout because generation streams run for minutes; non-streaming
// calls get a per-request deadline instead.
func NewService(config *common.LLMConfig, embeddingModel string, logger arbor.ILogger) interfaces.LLMService {
	return &Service{
		baseURL:        strings.TrimRight(config.BaseURL, "/"),
		defaultModel:   config.DefaultModel,
		embeddingModel: embeddingModel,
		requestTimeout: common.Duration(config.RequestTimeout, 60*time.Second),
		client:         &http.Client{},
		logger:         logger,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate streams a completion for the prompt, invoking onChunk for each
// piece of text. When onChunk returns false the stream is abandoned and
// Generate returns nil. Chunks arrive as one JSON object per line.
func (s *Service) Generate(ctx context.Context, model string, prompt string, onChunk func(content string) bool) error {
	if model == "" {
		model = s.defaultModel
	}

	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.logger.Warn().Err(err).Msg("Skipping malformed stream line")
			continue
		}

		if chunk.Error != "" {
			return fmt.Errorf("ollama stream error: %s", chunk.Error)
		}

		if chunk.Response != "" {
			if !onChunk(chunk.Response) {
				return nil
			}
		}

		if chunk.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading ollama stream: %w", err)
	}
	return nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding  []float32   `json:"embedding"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed requests a vector embedding for text. Handles both the singular
// and plural response shapes Ollama versions return.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: s.embeddingModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama embed returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(result.Embedding) > 0 {
		return result.Embedding, nil
	}
	if len(result.Embeddings) > 0 && len(result.Embeddings[0]) > 0 {
		return result.Embeddings[0], nil
	}
	return nil, fmt.Errorf("ollama returned empty embedding")
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// catalog maps known model names to display metadata. Models reported by
// Ollama that are not in the catalog still appear with their raw name.
var catalog = map[string]models.ModelInfo{
	"gemma3:4b":      {ID: "gemma3:4b", Name: "Gemma 3 4B", Description: "Fast general-purpose model"},
	"gemma3:12b":     {ID: "gemma3:12b", Name: "Gemma 3 12B", Description: "Higher quality, slower"},
	"llama3.2:3b":    {ID: "llama3.2:3b", Name: "Llama 3.2 3B", Description: "Lightweight chat model"},
	"qwen2.5:7b":     {ID: "qwen2.5:7b", Name: "Qwen 2.5 7B", Description: "Strong multilingual model"},
	"mistral:7b":     {ID: "mistral:7b", Name: "Mistral 7B", Description: "Balanced quality and speed"},
	"deepseek-r1:8b": {ID: "deepseek-r1:8b", Name: "DeepSeek R1 8B", Description: "Reasoning-focused model"},
}

// ListModels returns the models available on the Ollama server
func (s *Service) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tags request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags returned status %d", resp.StatusCode)
	}

	var result tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode tags response: %w", err)
	}

	infos := make([]models.ModelInfo, 0, len(result.Models))
	for _, m := range result.Models {
		if info, ok := catalog[m.Name]; ok {
			infos = append(infos, info)
			continue
		}
		infos = append(infos, models.ModelInfo{ID: m.Name, Name: m.Name})
	}
	return infos, nil
}

// DefaultModel returns the configured default generation model
func (s *Service) DefaultModel() string {
	return s.defaultModel
}
