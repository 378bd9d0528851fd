package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/echoline-ai/echoline/internal/knowledge"
	"github.com/echoline-ai/echoline/internal/session"
	"github.com/echoline-ai/echoline/pkg/events"
	"github.com/echoline-ai/echoline/pkg/logger"
	"github.com/echoline-ai/echoline/pkg/metrics"
)

const defaultSystemPrompt = "You are a helpful voice assistant on a phone call. " +
	"Keep responses concise and conversational, suitable for being spoken aloud. " +
	"Avoid lists, markdown, and long explanations."

// ModelBackend produces one completion from one model. Implementations
// must honor ctx cancellation.
type ModelBackend interface {
	Complete(ctx context.Context, model, system string, history []session.Turn, message string) (string, error)
}

type openAIBackend struct {
	client    *openai.Client
	maxTokens int
}

// NewOpenAIBackend builds a backend over the OpenAI-compatible chat
// completion API. baseURL may point at any compatible gateway.
func NewOpenAIBackend(apiKey, baseURL string, maxTokens int) ModelBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &openAIBackend{client: openai.NewClientWithConfig(cfg), maxTokens: maxTokens}
}

func (b *openAIBackend) Complete(ctx context.Context, model, system string, history []session.Turn, message string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == session.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	})

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: b.maxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in completion")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("empty completion")
	}
	return content, nil
}

// Request is one generation call.
type Request struct {
	Message         string
	History         []session.Turn
	KnowledgeBaseID string
	CustomPrompt    string
	MaxResults      int
}

// Result is what the caller speaks. Content is never empty.
type Result struct {
	Content              string `json:"content"`
	ModelUsed            string `json:"modelUsed,omitempty"`
	KnowledgeBaseUsed    bool   `json:"knowledgeBaseUsed"`
	KnowledgeResultCount int    `json:"knowledgeResultCount"`
}

// Options tunes a Generator.
type Options struct {
	// Models is the fallback chain, best first. Each model gets one
	// attempt per request.
	Models []string

	// AttemptTimeout bounds a single model attempt.
	AttemptTimeout time.Duration
}

// Generator augments prompts with retrieval results and walks the
// model chain. It never fails: exhausting the chain yields a canned
// reply, so the caller always has something to say.
type Generator struct {
	backend ModelBackend
	index   *knowledge.Index
	opts    Options
	bus     *events.Bus
}

// NewGenerator wires the generator. backend may be nil (no models
// configured); the index must not be. The bus may be nil.
func NewGenerator(backend ModelBackend, index *knowledge.Index, opts Options, bus *events.Bus) *Generator {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 20 * time.Second
	}
	return &Generator{backend: backend, index: index, opts: opts, bus: bus}
}

// Generate produces the next utterance for the message.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	var results []knowledge.Result
	if req.KnowledgeBaseID != "" {
		maxResults := req.MaxResults
		if maxResults <= 0 {
			maxResults = knowledge.DefaultMaxResults
		}
		results = g.index.Query(req.KnowledgeBaseID, req.Message, maxResults)
	}

	system := g.buildSystemPrompt(req.CustomPrompt, results)

	if g.backend != nil {
		for i, model := range g.opts.Models {
			content, err := g.tryModel(ctx, model, system, req.History, req.Message)
			if err != nil {
				logger.Warn("Model attempt failed",
					zap.String("model", model),
					zap.Error(err))
				continue
			}
			if i > 0 {
				metrics.ModelFallbacks.WithLabelValues(model).Inc()
				g.emitFallback(model)
			}
			return Result{
				Content:              content,
				ModelUsed:            model,
				KnowledgeBaseUsed:    req.KnowledgeBaseID != "",
				KnowledgeResultCount: len(results),
			}
		}
	}

	metrics.ModelFallbacks.WithLabelValues("canned").Inc()
	g.emitFallback("canned")
	return Result{
		Content:              cannedResponse(req.Message, results),
		KnowledgeBaseUsed:    req.KnowledgeBaseID != "",
		KnowledgeResultCount: len(results),
	}
}

func (g *Generator) tryModel(ctx context.Context, model, system string, history []session.Turn, message string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.opts.AttemptTimeout)
	defer cancel()
	return g.backend.Complete(attemptCtx, model, system, history, message)
}

func (g *Generator) emitFallback(model string) {
	if g.bus != nil {
		g.bus.Emit(events.EventModelFallback, "responder", map[string]interface{}{"model": model})
	}
}

func (g *Generator) buildSystemPrompt(customPrompt string, results []knowledge.Result) string {
	var b strings.Builder
	b.WriteString(defaultSystemPrompt)
	if customPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(customPrompt)
	}
	if len(results) > 0 {
		b.WriteString("\n\nUse the following knowledge base information to answer the caller's question. ")
		b.WriteString("Ground your answer in it and do not invent details:\n")
		for i, r := range results {
			fmt.Fprintf(&b, "\n[%d] %s: %s", i+1, r.DocumentTitle, r.Content)
		}
	} else {
		b.WriteString("\n\nNo matching information was found in the knowledge base for this question. ")
		b.WriteString("Say so honestly if the caller asks about something you do not know.")
	}
	return b.String()
}

// Summarize condenses a conversation via the same model chain. With no
// working model it falls back to a count-based line.
func (g *Generator) Summarize(ctx context.Context, history []session.Turn) string {
	var transcript strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&transcript, "%s: %s\n", turn.Role, turn.Content)
	}

	if g.backend != nil {
		system := "Summarize the following phone conversation in two or three sentences."
		for _, model := range g.opts.Models {
			summary, err := g.tryModel(ctx, model, system, nil, transcript.String())
			if err != nil {
				logger.Warn("Summary attempt failed",
					zap.String("model", model),
					zap.Error(err))
				continue
			}
			return summary
		}
	}
	return fmt.Sprintf("Conversation with %d messages.", len(history))
}
