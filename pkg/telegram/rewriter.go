package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"

	"github.com/dmelnik/lumen/pkg/logger"
)

const rewriteInstruction = `Rewrite the following channel post so it reads as original content:
remove links, @mentions, hashtags and calls to action, fix formatting, keep the
meaning and tone. Also write a short English prompt for an illustration that
fits the post.

Respond with a JSON object only, no markdown fences:
{"cleanText": "<rewritten post>", "imagePrompt": "<illustration prompt>"}

Post:
%s`

// LLMRewriter rewrites posts with a Gemini model through langchaingo.
type LLMRewriter struct {
	llm llms.Model
}

// NewLLMRewriter creates a rewriter for the given API key and model.
func NewLLMRewriter(ctx context.Context, apiKey, model string) (*LLMRewriter, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rewrite model: %w", err)
	}
	return &LLMRewriter{llm: llm}, nil
}

// Rewrite produces clean text and an illustration prompt for one post.
func (r *LLMRewriter) Rewrite(ctx context.Context, text string) (Rewrite, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, r.llm, fmt.Sprintf(rewriteInstruction, text))
	if err != nil {
		return Rewrite{}, fmt.Errorf("rewrite failed: %w", err)
	}
	return parseRewrite(response, text), nil
}

// parseRewrite decodes the model's JSON reply. Models occasionally wrap JSON
// in code fences or ignore the format entirely; a reply that cannot be
// decoded is used verbatim as the clean text, with no image prompt.
func parseRewrite(response, original string) Rewrite {
	trimmed := strings.TrimSpace(response)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var rw Rewrite
	if err := json.Unmarshal([]byte(trimmed), &rw); err == nil && rw.CleanText != "" {
		return rw
	}

	logger.Warn("rewrite reply was not valid JSON, using raw text")
	if trimmed == "" {
		trimmed = original
	}
	return Rewrite{CleanText: trimmed}
}
