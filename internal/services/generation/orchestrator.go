package generation

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nomad/internal/interfaces"
	"github.com/ternarybob/nomad/internal/models"
	"github.com/ternarybob/nomad/internal/services/session"
)

// Orchestrator runs one generation per call: assemble the prompt from
// retrieval context, attachments, and history, stream chunks to the
// connection, and end with exactly one message-complete whatever path the
// run takes.
type Orchestrator struct {
	llm       interfaces.LLMService
	retrieval interfaces.RetrievalService
	documents interfaces.DocumentService
	sessions  *session.Manager
	logger    arbor.ILogger
}

// NewOrchestrator creates the generation orchestrator
func NewOrchestrator(llm interfaces.LLMService, retrieval interfaces.RetrievalService, documents interfaces.DocumentService, sessions *session.Manager, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		llm:       llm,
		retrieval: retrieval,
		documents: documents,
		sessions:  sessions,
		logger:    logger,
	}
}

// Run executes one generation for the connection. The ticket is polled at
// every chunk boundary; once it reads stopped, no further chunks reach the
// client.
func (o *Orchestrator) Run(ctx context.Context, conn *session.ConnectionSession, ticket *session.GenTicket, req *models.ChatRequest) {
	model := req.Model
	if model == "" {
		model = o.llm.DefaultModel()
	}

	if err := conn.Sink.Send(&models.Event{Type: models.EventGenerationStart, Model: model}); err != nil {
		o.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to send generation start")
	}

	if len(req.Attachments) > 0 {
		results := o.documents.ProcessAttachments(ctx, req.Attachments)
		for _, r := range results {
			o.logger.Info().
				Str("file", r.FileName).
				Bool("success", r.Success).
				Bool("duplicate", r.IsDuplicate).
				Msg("Attachment processed")
		}
	}

	var retrievalCtx *models.RetrievalContext
	if query := lastUserContent(req.Messages); query != "" {
		rc, err := o.retrieval.Retrieve(ctx, query, 0)
		if err != nil {
			o.logger.Warn().Err(err).Msg("Retrieval failed, generating without context")
		} else {
			retrievalCtx = rc
		}
	}

	prompt := buildPrompt(req.Messages, req.Attachments, retrievalCtx)

	genErr := o.llm.Generate(ctx, model, prompt, func(chunk string) bool {
		if ticket.Stopped() {
			return false
		}
		if err := conn.Sink.Send(models.ChunkEvent(chunk)); err != nil {
			o.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Chunk delivery failed, abandoning stream")
			ticket.Stop(true)
			return false
		}
		return true
	})

	// Only the first completer emits terminal events; the sweep may have
	// force-completed a stuck run already.
	if !o.sessions.CompleteGeneration(conn.ID, ticket) {
		return
	}

	switch {
	case ticket.Stopped():
		if err := conn.Sink.Send(models.StoppedEvent(ticket.Forced())); err != nil {
			o.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to send stopped event")
		}
	case genErr != nil:
		o.logger.Error().Err(genErr).Str("conn_id", conn.ID).Msg("Generation failed")
		if err := conn.Sink.Send(models.GenerationErrorEvent("generation failed: " + genErr.Error())); err != nil {
			o.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to send generation error")
		}
	}

	if err := conn.Sink.Send(models.CompleteEvent()); err != nil {
		o.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to send completion")
	}
}
