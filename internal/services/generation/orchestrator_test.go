package generation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/common"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/session"
)

type scriptedLLM struct {
	chunks []string
	err    error
}

func (s *scriptedLLM) Generate(ctx context.Context, model, prompt string, onChunk func(string) bool) error {
	for _, chunk := range s.chunks {
		if !onChunk(chunk) {
			return nil
		}
	}
	return s.err
}

func (s *scriptedLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (s *scriptedLLM) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	return nil, nil
}

func (s *scriptedLLM) DefaultModel() string { return "fallback-model" }

type fakeRetrieval struct {
	rc      *models.RetrievalContext
	queries []string
}

func (f *fakeRetrieval) Retrieve(ctx context.Context, query string, k int) (*models.RetrievalContext, error) {
	f.queries = append(f.queries, query)
	if f.rc != nil {
		return f.rc, nil
	}
	return &models.RetrievalContext{}, nil
}

type fakeDocuments struct {
	attachments []models.Attachment
}

func (f *fakeDocuments) Ingest(ctx context.Context, in *models.IngestInput) (*models.IngestResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDocuments) ProcessAttachments(ctx context.Context, attachments []models.Attachment) []models.AttachmentResult {
	f.attachments = append(f.attachments, attachments...)
	results := make([]models.AttachmentResult, len(attachments))
	for i, a := range attachments {
		results[i] = models.AttachmentResult{FileName: a.Name, Success: true}
	}
	return results
}

func (f *fakeDocuments) Delete(ctx context.Context, id string) (bool, error) { return false, nil }
func (f *fakeDocuments) Get(id string) (*models.Document, error)             { return nil, nil }
func (f *fakeDocuments) Content(id string) (string, error)                   { return "", nil }
func (f *fakeDocuments) List() ([]*models.Document, error)                   { return nil, nil }
func (f *fakeDocuments) Stats() *models.KnowledgeBaseStats                   { return &models.KnowledgeBaseStats{} }

// recordingSink captures events and can run a callback on each send.
type recordingSink struct {
	mu     sync.Mutex
	events []*models.Event
	onSend func(event *models.Event) error
}

func (r *recordingSink) Send(event *models.Event) error {
	if r.onSend != nil {
		if err := r.onSend(event); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) recorded() []*models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Event, len(r.events))
	copy(out, r.events)
	return out
}

func countByType(events []*models.Event) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Type]++
	}
	return counts
}

type fixture struct {
	orchestrator *Orchestrator
	sessions     *session.Manager
	retrieval    *fakeRetrieval
	documents    *fakeDocuments
	sink         *recordingSink
	conn         *session.ConnectionSession
}

func newFixture(t *testing.T, llm *scriptedLLM) *fixture {
	t.Helper()
	logger := arbor.NewLogger()
	sessions := session.NewManager(&common.SessionConfig{
		SweepInterval: "1h", IdleTimeout: "1h", StuckTimeout: "1h", StopGrace: "20ms",
	}, logger)
	retrieval := &fakeRetrieval{}
	documents := &fakeDocuments{}
	sink := &recordingSink{}
	conn := sessions.Connect(sink)
	return &fixture{
		orchestrator: NewOrchestrator(llm, retrieval, documents, sessions, logger),
		sessions:     sessions,
		retrieval:    retrieval,
		documents:    documents,
		sink:         sink,
		conn:         conn,
	}
}

func userRequest(content string) *models.ChatRequest {
	return &models.ChatRequest{
		SessionID: "s1",
		Messages:  []models.ChatMessage{{Role: models.RoleUser, Content: content}},
	}
}

func TestRunStreamsAndCompletes(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"Hello", ", ", "world"}}
	f := newFixture(t, llm)

	ticket, err := f.sessions.StartGeneration(f.conn.ID, "s1", "")
	if err != nil {
		t.Fatal(err)
	}
	f.orchestrator.Run(context.Background(), f.conn, ticket, userRequest("say hello"))

	events := f.sink.recorded()
	counts := countByType(events)
	if counts[models.EventMessageChunk] != 3 {
		t.Errorf("chunk events = %d, want 3", counts[models.EventMessageChunk])
	}
	if counts[models.EventMessageComplete] != 1 {
		t.Errorf("complete events = %d, want exactly 1", counts[models.EventMessageComplete])
	}
	if counts[models.EventGenerationStopped] != 0 || counts[models.EventGenerationError] != 0 {
		t.Error("clean run must emit neither stopped nor error events")
	}

	if events[0].Type != models.EventGenerationStart || events[0].Model != "fallback-model" {
		t.Errorf("first event = %+v, want generation start with the default model", events[0])
	}
	if last := events[len(events)-1]; last.Type != models.EventMessageComplete {
		t.Errorf("last event = %s, want message complete", last.Type)
	}

	var streamed string
	for _, e := range events {
		if e.Type == models.EventMessageChunk {
			streamed += e.Content
		}
	}
	if streamed != "Hello, world" {
		t.Errorf("streamed content = %q", streamed)
	}

	if len(f.retrieval.queries) != 1 || f.retrieval.queries[0] != "say hello" {
		t.Errorf("retrieval queries = %v", f.retrieval.queries)
	}
}

func TestRunClientStopCutsStream(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"a", "b", "c", "d", "e"}}
	f := newFixture(t, llm)

	ticket, _ := f.sessions.StartGeneration(f.conn.ID, "s1", "test-model")

	delivered := 0
	f.sink.onSend = func(event *models.Event) error {
		if event.Type == models.EventMessageChunk {
			delivered++
			if delivered == 2 {
				ticket.Stop(false)
			}
		}
		return nil
	}

	f.orchestrator.Run(context.Background(), f.conn, ticket, userRequest("count"))

	counts := countByType(f.sink.recorded())
	if counts[models.EventMessageChunk] != 2 {
		t.Errorf("chunks after stop leaked: %d delivered, want 2", counts[models.EventMessageChunk])
	}
	if counts[models.EventGenerationStopped] != 1 {
		t.Errorf("stopped events = %d, want 1", counts[models.EventGenerationStopped])
	}
	if counts[models.EventMessageComplete] != 1 {
		t.Errorf("complete events = %d, want 1", counts[models.EventMessageComplete])
	}

	for _, e := range f.sink.recorded() {
		if e.Type == models.EventGenerationStopped && e.Forced {
			t.Error("client stop must not be reported as forced")
		}
	}
}

func TestRunGenerateErrorReportsAndCompletes(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"partial"}, err: errors.New("model exploded")}
	f := newFixture(t, llm)

	ticket, _ := f.sessions.StartGeneration(f.conn.ID, "s1", "test-model")
	f.orchestrator.Run(context.Background(), f.conn, ticket, userRequest("boom"))

	counts := countByType(f.sink.recorded())
	if counts[models.EventGenerationError] != 1 {
		t.Errorf("error events = %d, want 1", counts[models.EventGenerationError])
	}
	if counts[models.EventMessageComplete] != 1 {
		t.Errorf("complete events = %d, want 1", counts[models.EventMessageComplete])
	}
	for _, e := range f.sink.recorded() {
		if e.Type == models.EventGenerationError && e.Error == "" {
			t.Error("error event carries no message")
		}
	}
}

func TestRunSinkFailureForcesStop(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"a", "b", "c"}}
	f := newFixture(t, llm)

	ticket, _ := f.sessions.StartGeneration(f.conn.ID, "s1", "test-model")

	f.sink.onSend = func(event *models.Event) error {
		if event.Type == models.EventMessageChunk {
			return errors.New("connection reset")
		}
		return nil
	}

	f.orchestrator.Run(context.Background(), f.conn, ticket, userRequest("drop me"))

	if !ticket.Forced() {
		t.Error("delivery failure must force-stop the ticket")
	}
	counts := countByType(f.sink.recorded())
	if counts[models.EventMessageChunk] != 0 {
		t.Errorf("chunk events recorded despite send failures: %d", counts[models.EventMessageChunk])
	}
	if counts[models.EventGenerationStopped] != 1 || counts[models.EventMessageComplete] != 1 {
		t.Errorf("terminal events = %d stopped / %d complete, want 1/1",
			counts[models.EventGenerationStopped], counts[models.EventMessageComplete])
	}
}

func TestRunLosesCompletionRace(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"a", "b"}}
	f := newFixture(t, llm)

	ticket, _ := f.sessions.StartGeneration(f.conn.ID, "s1", "test-model")

	// Force-complete the run mid-stream the way the sweep would.
	f.sink.onSend = func(event *models.Event) error {
		if event.Type == models.EventMessageChunk && event.Content == "a" {
			ticket.Stop(true)
			f.sessions.CompleteGeneration(f.conn.ID, ticket)
		}
		return nil
	}

	f.orchestrator.Run(context.Background(), f.conn, ticket, userRequest("race"))

	counts := countByType(f.sink.recorded())
	if counts[models.EventMessageChunk] != 1 {
		t.Errorf("chunk events = %d, want 1", counts[models.EventMessageChunk])
	}
	if counts[models.EventGenerationStopped] != 0 || counts[models.EventMessageComplete] != 0 {
		t.Error("losing orchestrator must not emit terminal events")
	}
}

func TestRunProcessesAttachments(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"ok"}}
	f := newFixture(t, llm)

	req := userRequest("what is in the file?")
	req.Attachments = []models.Attachment{
		{Name: "data.csv", Type: "text/csv", Size: 10, Content: "a,b\n1,2"},
	}

	ticket, _ := f.sessions.StartGeneration(f.conn.ID, "s1", "test-model")
	f.orchestrator.Run(context.Background(), f.conn, ticket, req)

	if len(f.documents.attachments) != 1 || f.documents.attachments[0].Name != "data.csv" {
		t.Errorf("attachments processed = %+v", f.documents.attachments)
	}
}

func TestRunSkipsRetrievalWithoutUserTurn(t *testing.T) {
	llm := &scriptedLLM{chunks: []string{"ok"}}
	f := newFixture(t, llm)

	req := &models.ChatRequest{
		SessionID: "s1",
		Messages:  []models.ChatMessage{{Role: models.RoleSystem, Content: "setup"}},
	}

	ticket, _ := f.sessions.StartGeneration(f.conn.ID, "s1", "test-model")
	f.orchestrator.Run(context.Background(), f.conn, ticket, req)

	if len(f.retrieval.queries) != 0 {
		t.Errorf("retrieval called without a user turn: %v", f.retrieval.queries)
	}
}
