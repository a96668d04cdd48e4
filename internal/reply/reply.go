// Package reply drafts reply text for candidates via an LLM.
package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoAPIKey is returned when no API key is configured. The engine then
// runs in like-only mode.
var ErrNoAPIKey = errors.New("reply: API key is not set")

// Prompt carries everything the generator needs to draft one reply.
type Prompt struct {
	SourceText      string
	Context         string
	Tone            string
	Reason          string
	MatchedKeywords []string
}

// Generator drafts a reply for a candidate post.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// OpenAI generates reply drafts through the OpenAI chat completion API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI creates a generator for the given API key and model.
// An empty model selects gpt-4o-mini.
func NewOpenAI(apiKey, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: 120,
	}, nil
}

// Generate drafts a reply to the prompt's source text.
func (g *OpenAI) Generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(p)},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Reply to this post: %q", p.SourceText)},
		},
		Temperature:      0.7,
		MaxTokens:        g.maxTokens,
		PresencePenalty:  0.3,
		FrequencyPenalty: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	return text, nil
}

// SystemPrompt assembles the system message from tone, reason, and context.
func SystemPrompt(p Prompt) string {
	tone := p.Tone
	if tone == "" {
		tone = "Friendly"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s social media user writing a short reply to a post.\n", strings.ToLower(tone))
	b.WriteString("Keep the reply under 280 characters, conversational, and specific to the post. Never use hashtags.\n")
	if p.Reason != "" {
		fmt.Fprintf(&b, "\nREPLY REASON: %s. Tailor your response appropriately for this reason.\n", p.Reason)
	}
	if len(p.MatchedKeywords) > 0 {
		fmt.Fprintf(&b, "The post matched these interest keywords: %s.\n", strings.Join(p.MatchedKeywords, ", "))
	}
	if p.Context != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(p.Context)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildContext summarizes a candidate for the generator the way the
// approval card presents it.
func BuildContext(sourceText, author, reason string) string {
	lines := []string{
		fmt.Sprintf("Post content: %q", sourceText),
		fmt.Sprintf("Author: @%s", author),
	}
	if reason != "" {
		lines = append(lines, fmt.Sprintf("Reply reason: %s", reason))
	}
	return strings.Join(lines, "\n")
}
