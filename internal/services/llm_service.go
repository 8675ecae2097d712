package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/pkg/config"
	"github.com/chronolens/chronolens/pkg/logger"
)

const classifySystemPrompt = `You route questions about a code repository.
Reply with exactly one word:
"structured" when the question is about contributors, authorship, ownership,
commit history, timelines, or activity statistics that precomputed analytics
can answer.
"retrieval" when answering requires reading the repository's source code.`

const answerSystemPrompt = `You answer questions about a code repository using
only the file excerpts provided. Be concise. If the excerpts do not contain
the answer, say so instead of guessing.`

// LLMService wraps the external language model behind the two call shapes
// the router needs. Every call carries an explicit timeout; when no API key
// is configured the service reports itself disabled and callers fall back.
type LLMService struct {
	client                *openai.Client
	model                 string
	classificationTimeout time.Duration
	answerTimeout         time.Duration
}

// NewLLMService creates an LLM service from config. A missing API key
// yields a disabled service, not an error.
func NewLLMService(cfg config.LLMConfig) *LLMService {
	s := &LLMService{
		model:                 cfg.Model,
		classificationTimeout: cfg.ClassificationTimeout,
		answerTimeout:         cfg.AnswerTimeout,
	}
	if cfg.APIKey != "" {
		s.client = openai.NewClient(cfg.APIKey)
	} else {
		logger.WithComponent("llm").Warnf("no API key configured, running with keyword classification only")
	}
	return s
}

// Enabled reports whether the external model can be called at all
func (s *LLMService) Enabled() bool {
	return s.client != nil
}

// Classify asks the model for a query route. The timeout is mandatory; a
// timed out or failed call surfaces as an error for the caller's fallback,
// never as a blocked query.
func (s *LLMService) Classify(ctx context.Context, query, brief string) (models.QueryRoute, error) {
	if !s.Enabled() {
		return "", ErrClassificationUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.classificationTimeout)
	defer cancel()

	prompt := fmt.Sprintf("Repository: %s\n\nQuestion: %s", brief, query)
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0,
		MaxTokens:   4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrClassificationTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrClassificationUnavailable)
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Choices[0].Message.Content))
	switch {
	case strings.Contains(answer, "structured"):
		return models.RouteStructured, nil
	case strings.Contains(answer, "retrieval"):
		return models.RouteRetrieval, nil
	default:
		return "", fmt.Errorf("%w: unrecognized route %q", ErrClassificationUnavailable, answer)
	}
}

// Answer asks the model a free-text question over the selected file context
func (s *LLMService) Answer(ctx context.Context, query string, files []ScoredFile) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("%w: model not configured", ErrRetrievalAnswerFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, s.answerTimeout)
	defer cancel()

	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\nRepository files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "\n=== %s ===\n%s\n", f.Path, f.Content)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRetrievalAnswerFailed, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrRetrievalAnswerFailed)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
