// Package translation turns source posts into target-language HTML through an LLM provider.
package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"telegram-translator/internal/logging"
	"telegram-translator/internal/sanitize"
)

// Completer sends a prompt to a chat-completions provider and returns the raw response body.
type Completer interface {
	Complete(ctx context.Context, prompt string) ([]byte, error)
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Gateway masks links, asks the provider for a translation and restores the links.
type Gateway struct {
	client Completer
	prompt *PromptBuilder
	logger logging.Logger
}

// NewGateway wires a provider client and a prompt builder.
func NewGateway(client Completer, prompt *PromptBuilder, logger logging.Logger) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("translation client cannot be nil")
	}
	if prompt == nil {
		return nil, fmt.Errorf("prompt builder cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Gateway{client: client, prompt: prompt, logger: logger}, nil
}

// Translate returns the translated HTML for text. A response without usable content yields
// ("", nil); an error means the provider could not be reached within the retry budget.
func (g *Gateway) Translate(ctx context.Context, text string) (string, error) {
	masked, tokens := sanitize.Mask(sanitize.NormalizeBold(text))

	body, err := g.client.Complete(ctx, g.prompt.Build(masked))
	if err != nil {
		return "", fmt.Errorf("translation request failed: %w", err)
	}

	out, ok := extractContent(body)
	if !ok {
		g.logger.WithField("response", truncate(string(body), 800)).
			Warn("Can't extract translation from provider response")
		return "", nil
	}

	out = sanitize.Unmask(out, tokens)
	return sanitize.MarkdownLinksToAnchors(out), nil
}

func extractContent(body []byte) (string, bool) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil || resp.Choices[0].Message.Content == nil {
		return "", false
	}
	return strings.TrimSpace(*resp.Choices[0].Message.Content), true
}
