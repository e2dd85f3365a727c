// Package model wraps the external generative-model capability.
package model

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Generator is the model capability: given a prompt, return the model's
// text reply. Implementations may be slow, return garbage, or fail.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini generates text using Google's Gemini API.
type Gemini struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGemini(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Gemini{
		client:  client,
		model:   modelName,
		timeout: timeout,
	}, nil
}

// Generate runs a single prompt. A per-call timeout bounds the request;
// expiry surfaces as an ordinary error.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	reply := result.Text()
	if reply == "" {
		return "", fmt.Errorf("gemini returned an empty reply")
	}
	return reply, nil
}
