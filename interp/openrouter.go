package interp

import (
	"context"
	"fmt"
	"strings"

	"github.com/revrost/go-openrouter"

	"github.com/josephtey/predictive-saes/internal/json"
)

// OpenRouterClient implements Client against the OpenRouter chat
// completions API. One fixed prompt/response contract: the model is
// instructed to answer with a single JSON object, and anything that does
// not parse is an error (the pipeline skips that feature).
type OpenRouterClient struct {
	client      *openrouter.Client
	model       string
	temperature float32
	maxTokens   int
}

// OpenRouterOption customizes the client.
type OpenRouterOption func(*OpenRouterClient)

// WithTemperature sets the sampling temperature (default 0, deterministic
// as the provider allows).
func WithTemperature(t float32) OpenRouterOption {
	return func(c *OpenRouterClient) { c.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) OpenRouterOption {
	return func(c *OpenRouterClient) { c.maxTokens = n }
}

// NewOpenRouterClient creates a client for the given API key and model ID
// (e.g. "openai/gpt-4o-mini").
func NewOpenRouterClient(apiKey, model string, opts ...OpenRouterOption) *OpenRouterClient {
	c := &OpenRouterClient{
		client:    openrouter.NewClient(apiKey),
		model:     model,
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interpret asks the model to name the concept separating the high and
// low evidence sets.
func (c *OpenRouterClient) Interpret(ctx context.Context, high, low []FeatureSample) (*Interpretation, error) {
	prompt := fmt.Sprintf(interpretUserPrompt, formatSamples(high, true), formatSamples(low, false))

	content, err := c.complete(ctx, interpretSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var itp Interpretation
	if err := json.Unmarshal([]byte(stripFences(content)), &itp); err != nil {
		return nil, fmt.Errorf("unparseable interpretation response: %w", err)
	}
	if itp.Label == "" {
		return nil, fmt.Errorf("interpretation response missing label")
	}
	if len(itp.Attributes) == 0 {
		return nil, fmt.Errorf("interpretation response missing attributes")
	}
	return &itp, nil
}

// Score asks the model how strongly the attributes match the sample set,
// as a percentage.
func (c *OpenRouterClient) Score(ctx context.Context, samples []FeatureSample, attributes []string) (float64, error) {
	var attrs strings.Builder
	for _, a := range attributes {
		attrs.WriteString("- ")
		attrs.WriteString(a)
		attrs.WriteString("\n")
	}
	prompt := fmt.Sprintf(scoreUserPrompt, attrs.String(), formatSamples(samples, false))

	content, err := c.complete(ctx, scoreSystemPrompt, prompt)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Percent float64 `json:"percent"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
		return 0, fmt.Errorf("unparseable score response: %w", err)
	}
	if resp.Percent < 0 || resp.Percent > 100 {
		return 0, fmt.Errorf("score %v out of range [0, 100]", resp.Percent)
	}
	return resp.Percent, nil
}

func (c *OpenRouterClient) complete(ctx context.Context, system, user string) (string, error) {
	req := openrouter.ChatCompletionRequest{
		Model: c.model,
		Messages: []openrouter.ChatCompletionMessage{
			{
				Role:    openrouter.ChatMessageRoleSystem,
				Content: openrouter.Content{Text: system},
			},
			{
				Role:    openrouter.ChatMessageRoleUser,
				Content: openrouter.Content{Text: user},
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenRouter API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content.Text, nil
}

// formatSamples renders evidence samples one per line, optionally with
// the activation value.
func formatSamples(samples []FeatureSample, withAct bool) string {
	var b strings.Builder
	for _, s := range samples {
		if withAct {
			fmt.Fprintf(&b, "- %s (%.4f)\n", s.Text, s.Act)
		} else {
			fmt.Fprintf(&b, "- %s\n", s.Text)
		}
	}
	return b.String()
}

// stripFences removes a surrounding markdown code fence if the model
// wrapped its JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
