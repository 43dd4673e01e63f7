package server

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dmelnik/lumen/pkg/generation"
)

// hasCyrillic reports whether text contains any Cyrillic script, the signal
// used to route a prompt through translation before the image and video
// models see it.
func hasCyrillic(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

// translatePrompt runs prompt through the text model when it contains
// Cyrillic script, returning the prompt to submit plus translation metadata.
// Translation failures fall back to the original prompt rather than failing
// the generation.
func translatePrompt(ctx context.Context, gen Generator, model, prompt string) (string, *generation.Translation) {
	if !hasCyrillic(prompt) {
		return prompt, nil
	}

	instruction := fmt.Sprintf(
		"Translate the following image or video generation prompt to English. "+
			"Reply with the translation only, no commentary:\n\n%s", prompt)

	translated, err := gen.GenerateContent(ctx, model, instruction)
	translated = strings.TrimSpace(translated)
	if err != nil || translated == "" {
		return prompt, &generation.Translation{
			Original:         prompt,
			Translated:       prompt,
			WasTranslated:    false,
			HasSlavicPrompts: true,
		}
	}

	return translated, &generation.Translation{
		Original:         prompt,
		Translated:       translated,
		WasTranslated:    true,
		HasSlavicPrompts: true,
	}
}
