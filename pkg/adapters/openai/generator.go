// Package openai generates mind maps with an OpenAI-compatible chat
// completion API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/generator"
	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// DefaultPrompt instructs the model to answer with a single tree.
const DefaultPrompt = `You turn conversations into mind maps.
Answer with one JSON object and nothing else, shaped as
{"name": string, "attributes": {"note": string, "importance": string}, "children": [ ...same shape... ]}.
The root names the main topic. Use at most %d branches under the root and at most two levels below it.`

// ErrEmptyResponse is returned when the model produced no usable answer.
var ErrEmptyResponse = errors.New("empty model response")

// Generator implements ports.Generator with a chat completion model.
type Generator struct {
	client    *backend.Client
	model     string
	prompt    string
	maxTopics int
	maxInput  int
	logger    *slog.Logger
}

var _ ports.Generator = (*Generator)(nil)

// Option configures a Generator.
type Option func(*Generator)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithPrompt replaces the system prompt. A %d verb receives the branch limit.
func WithPrompt(prompt string) Option {
	return func(g *Generator) {
		if prompt != "" {
			g.prompt = prompt
		}
	}
}

// WithMaxTopics sets the branch limit given to the model.
func WithMaxTopics(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTopics = n
		}
	}
}

// WithMaxInput sets how many characters of history are sent.
func WithMaxInput(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxInput = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a generator for the public API. baseURL may be empty.
func New(apiKey, baseURL string, opts ...Option) *Generator {
	cfg := backend.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewFromClient(backend.NewClientWithConfig(cfg), opts...)
}

// NewFromClient creates a generator over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Generator {
	g := &Generator{
		client:    client,
		model:     DefaultModel,
		prompt:    DefaultPrompt,
		maxTopics: generator.DefaultMaxTopics,
		maxInput:  generator.DefaultMaxInput,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks the model for a tree. Blank history yields nil without a
// request.
func (g *Generator) Generate(ctx context.Context, history []string) (*domain.Node, error) {
	text := strings.TrimSpace(strings.Join(history, "\n"))
	if text == "" {
		return nil, nil
	}
	text, truncated := generator.Sanitize(text, g.maxInput)
	if truncated {
		g.logger.Warn("openai: input truncated", "max_chars", g.maxInput)
	}

	prompt := g.prompt
	if strings.Contains(prompt, "%d") {
		prompt = fmt.Sprintf(prompt, g.maxTopics)
	}
	req := backend.ChatCompletionRequest{
		Model: g.model,
		Messages: []backend.ChatCompletionMessage{
			{Role: backend.ChatMessageRoleSystem, Content: prompt},
			{Role: backend.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &backend.ChatCompletionResponseFormat{
			Type: backend.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	g.logger.Debug("openai: requesting map", "model", g.model, "chars", len(text))
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	g.logger.Debug("openai: received map", "finish_reason", choice.FinishReason, "tokens", resp.Usage.TotalTokens)

	root, err := parseTree(choice.Message.Content)
	if err != nil {
		return nil, err
	}
	domain.FillIDs(root)
	return root, nil
}

// parseTree decodes the model's answer, tolerating a fenced code block around
// the JSON.
func parseTree(content string) (*domain.Node, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyResponse
	}

	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: model answer is not JSON: %v", domain.ErrInvalidTree, err)
	}
	root, err := domain.DecodeTree(raw)
	if err != nil {
		return nil, err
	}
	if err := domain.Validate(root); err != nil {
		return nil, err
	}
	return root, nil
}
