// Package assistant answers farming questions through the Gemini API.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("assistant is not configured")

// ErrEmptyQuestion is returned for a blank question.
var ErrEmptyQuestion = errors.New("question is empty")

const DefaultModel = "gemini-2.0-flash"

const instruction = `You are an AI assistant for Kisan Sarthi, an agricultural platform.
Answer with a brief direct answer first, then organised points.
Use numbers for sequential steps and bullet points for unordered items.
Keep the agricultural context in mind and use farmer-friendly language.
Be concise but informative.`

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Chat wraps a Generator with the assistant instruction.
type Chat struct {
	gen   Generator
	model string
}

// New returns a Chat backed by the Gemini API. An empty apiKey yields a Chat
// whose Ask always returns ErrNotConfigured.
func New(ctx context.Context, apiKey, model string) (*Chat, error) {
	if model == "" {
		model = DefaultModel
	}
	if apiKey == "" {
		return &Chat{model: model}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Chat{gen: &genaiGenerator{client: client}, model: model}, nil
}

// NewWithGenerator returns a Chat using gen.
func NewWithGenerator(gen Generator, model string) *Chat {
	if model == "" {
		model = DefaultModel
	}
	return &Chat{gen: gen, model: model}
}

// Configured reports whether Ask can reach a model.
func (c *Chat) Configured() bool { return c.gen != nil }

// Ask sends question to the model and returns the answer with markdown
// emphasis removed.
func (c *Chat) Ask(ctx context.Context, question string) (string, error) {
	if c.gen == nil {
		return "", ErrNotConfigured
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	answer, err := c.gen.Generate(ctx, c.model, instruction+"\nQuestion: "+question)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(strings.ReplaceAll(answer, "*", "")), nil
}

type genaiGenerator struct {
	client *genai.Client
}

func (g *genaiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response")
	}
	return text, nil
}
