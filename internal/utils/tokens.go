// Package utils holds small, dependency-free helpers shared across
// pipeline stages: token estimation and LLM JSON-response repair.
package utils

import "strings"

// EstimateTokens approximates token count from character length the way the
// teacher's DocumentContextService.EstimateTokenCount does (len(text)/4),
// always returning at least 1 for non-empty text. Resolves the spec's noted
// count_tokens bug (Open Questions): the estimate is returned, never
// discarded.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateTokensMax is count_tokens with the spec's intended semantics
// applied explicitly: max(1, count_tokens(text)).
func EstimateTokensMax(text string) int {
	n := EstimateTokens(text)
	if n < 1 {
		return 1
	}
	return n
}

// Truncate implements the three compression truncation strategies spec
// §4.8 names: head_tail keeps roughly the first 60% and last 40% joined by
// a visible marker; head/tail keep only one side.
func Truncate(text string, maxTokens int, strategy string) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}
	const marker = " [truncated] "
	switch strategy {
	case "head":
		return text[:maxChars] + marker
	case "tail":
		return marker + text[len(text)-maxChars:]
	default: // "head_tail"
		headLen := int(float64(maxChars) * 0.6)
		tailLen := maxChars - headLen
		if headLen+tailLen >= len(text) {
			return text
		}
		return strings.TrimRight(text[:headLen], " ") + marker + strings.TrimLeft(text[len(text)-tailLen:], " ")
	}
}
