package generation

import (
	"regexp"
	"strings"
)

var paragraphSep = regexp.MustCompile(`\n\s*\n`)

// SplitPrompts breaks raw user input into the individual prompts of a batch.
//
// Image batches split on single newlines, one request per non-empty line.
// Video batches split on blank-line-delimited paragraphs. The asymmetry
// mirrors how users compose the two kinds of prompt and the two rules are
// kept distinct on purpose; do not unify them without product confirmation.
// Every other mode submits the input as a single prompt.
func SplitPrompts(mode Mode, text string) []string {
	switch mode {
	case ModeImage:
		return splitNonEmpty(strings.Split(text, "\n"))
	case ModeVideo:
		return splitNonEmpty(paragraphSep.Split(text, -1))
	default:
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
}

func splitNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
