// Package anthropic provides a reasoner.Reasoner backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/convomesh/convomesh/reasoner"
)

const decisionInstructions = `You drive one step of an automated customer-support resolution flow.
Reply with exactly one JSON object and nothing else, using this schema:
{"outcome":"needs_clarification|confirmed|proposed|resolved|close|new_demand|continue|escalate",
"demand":"","matched_candidate_id":"","confidence":0.0,"message":"","suggestion_id":""}`

// Options configures the Anthropic reasoner adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Reasoner wraps the Anthropic Messages API behind the generic
// reasoner.Reasoner interface.
type Reasoner struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic reasoner using the official client.
func New(optFns ...func(o *Options)) *Reasoner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Reasoner{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic reasoner from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Reasoner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.2,
		MaxTokens:   1024,
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

	params := anthropic.MessageNewParams{
		Model:       r.opts.Model,
		MaxTokens:   r.opts.MaxTokens,
		Temperature: anthropic.Float(r.opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: decisionInstructions},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(string(payload))),
		},
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return reasoner.Decision{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return parseDecision(text.String())
}

// Info implements reasoner.Reasoner.
func (r *Reasoner) Info() reasoner.Info {
	return reasoner.Info{Name: string(r.opts.Model), Provider: "anthropic"}
}

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
