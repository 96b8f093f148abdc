// Package ai wraps the Gemini API for the monitoring demo's question tasks.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"task-recipes/internal/common/config"
	apperrors "task-recipes/internal/common/errors"
	"task-recipes/internal/common/logger"

	"google.golang.org/genai"
)

var (
	ErrEmptyResponse  = errors.New("model returned no content")
	ErrContentBlocked = errors.New("content blocked by safety filters")
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	cfg    *genai.GenerateContentConfig
}

func NewGeminiGenerator(ctx context.Context, cfg config.APIsConfig) (*GeminiGenerator, error) {
	if cfg.GenAI.APIKey == "" {
		return nil, fmt.Errorf("genai api key is required")
	}
	model := cfg.GenAI.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GenAI.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.cfg)
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Tones recognised by Classify.
const (
	ToneNice    = "nice"
	ToneNeutral = "neutral"
	ToneHostile = "hostile"
)

var Tones = []string{ToneNice, ToneNeutral, ToneHostile}

// Assistant answers or deflects questions.
type Assistant struct {
	gen     Generator
	timeout time.Duration
	log     logger.Logger
}

func NewAssistant(gen Generator, timeout time.Duration, log logger.Logger) *Assistant {
	return &Assistant{gen: gen, timeout: timeout, log: log}
}

func (a *Assistant) call(ctx context.Context, operation, prompt string) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	out, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return "", apperrors.NewAIRequestFailedError(operation, err)
	}
	return strings.TrimSpace(out), nil
}

// Classify returns one of labels, falling back to neutral when the model
// answers with something else.
func (a *Assistant) Classify(ctx context.Context, text string, labels []string) (string, error) {
	prompt := fmt.Sprintf(
		"Classify the tone of the following text as exactly one of: %s.\nReply with the label only.\n\nText: %s",
		strings.Join(labels, ", "), text)
	out, err := a.call(ctx, "classify", prompt)
	if err != nil {
		return "", err
	}
	label := strings.ToLower(strings.Trim(out, " .\"'\n"))
	for _, l := range labels {
		if label == l {
			return l, nil
		}
	}
	a.log.Warn("Unrecognised classification, using neutral", map[string]interface{}{"label": out})
	return ToneNeutral, nil
}

// Answer replies truthfully in at most two lines, thanking the asker for
// any compliment.
func (a *Assistant) Answer(ctx context.Context, question string) (string, error) {
	return a.call(ctx, "answer", "Answer the following question in a truthful and helpful way, "+
		"in at most two lines of dialogue. If the question includes a compliment, thank the asker "+
		"sweetly before answering with a little more pep.\n\nQuestion: "+question)
}

// Retort replies sarcastically without answering.
func (a *Assistant) Retort(ctx context.Context, question string) (string, error) {
	return a.call(ctx, "retort", "Reply to the following question with a sarcastic or otherwise "+
		"unhelpful retort, optionally scolding the asker for being mean. Do not answer the question "+
		"helpfully.\n\nQuestion: "+question)
}
