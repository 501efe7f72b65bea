// Package openai provides an implementation of reasoner.Reasoner using the
// OpenAI Chat Completions API. It serializes the structured Request assembled
// by a conversation agent, asks for a single JSON decision object back and
// parses it into a reasoner.Decision. No conversational policy lives here.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/convomesh/convomesh/reasoner"
)

const decisionInstructions = `You drive one step of an automated customer-support resolution flow.
Reply with exactly one JSON object and nothing else, using this schema:
{"outcome":"needs_clarification|confirmed|proposed|resolved|close|new_demand|continue|escalate",
"demand":"","matched_candidate_id":"","confidence":0.0,"message":"","suggestion_id":""}`

// Options configure the OpenAI reasoner adapter. Fields mirror a subset of
// Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Reasoner wraps the OpenAI Chat Completions API behind the generic
// reasoner.Reasoner interface.
type Reasoner struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI reasoner using the official client.
func New(optFns ...func(o *Options)) *Reasoner {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI reasoner from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Reasoner {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Reasoner{client: client, opts: opts}
}

// Run implements reasoner.Reasoner.
func (r *Reasoner) Run(ctx context.Context, req reasoner.Request) (reasoner.Decision, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return reasoner.Decision{}, fmt.Errorf("marshal reasoner request: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(decisionInstructions),
			openai.UserMessage(string(payload)),
		},
		Model:               r.opts.Model,
		Temperature:         openai.Float(r.opts.Temperature),
		MaxCompletionTokens: openai.Int(r.opts.MaxCompletionTokens),
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return reasoner.Decision{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return reasoner.Decision{}, fmt.Errorf("no choices returned")
	}

	return parseDecision(resp.Choices[0].Message.Content)
}

// Info implements reasoner.Reasoner.
func (r *Reasoner) Info() reasoner.Info {
	return reasoner.Info{Name: r.opts.Model, Provider: "openai"}
}

// parseDecision extracts the JSON decision object from the completion text,
// tolerating surrounding prose or code fences.
func parseDecision(text string) (reasoner.Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return reasoner.Decision{}, fmt.Errorf("no decision object in completion")
	}
	var d reasoner.Decision
	if err := json.Unmarshal([]byte(text[start:end+1]), &d); err != nil {
		return reasoner.Decision{}, fmt.Errorf("parse decision: %w", err)
	}
	if d.Outcome == "" {
		return reasoner.Decision{}, fmt.Errorf("decision missing outcome")
	}
	return d, nil
}
