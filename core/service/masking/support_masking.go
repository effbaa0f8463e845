// Package masking replaces sensitive customer data with positional tokens
// before text leaves the process, and restores it afterwards.
package masking

import (
	"fmt"
	"regexp"
	"strings"
)

// TokenMap maps a placeholder token to the original text it replaced.
type TokenMap map[string]string

var (
	cardPattern     = regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`)
	ssnPattern      = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	passwordPattern = regexp.MustCompile(`(?i)\b(?:password|passwd|pwd|pass)\s*[:=]?\s*(\S+)`)
)

// Mask replaces card numbers, SSNs, and password values with indexed
// tokens ([CARD_0], [SSN_1], ...). The index reflects discovery order
// across all patterns, so the token map never collides.
func Mask(text string) (string, TokenMap) {
	tokens := make(TokenMap)
	masked := text
	masked = maskPattern(masked, cardPattern, "CARD", 0, tokens)
	masked = maskPattern(masked, ssnPattern, "SSN", 0, tokens)
	masked = maskSecrets(masked, text, tokens)
	return masked, tokens
}

// maskSecrets replaces password values. Matching runs against the
// original text, never the partially masked one: a secret that an
// earlier pattern already hid must not produce a nested token, or
// Unmask could restore an inner token literally.
func maskSecrets(masked, original string, tokens TokenMap) string {
	for _, m := range passwordPattern.FindAllStringSubmatch(original, -1) {
		secret := m[1]
		if !strings.Contains(masked, secret) {
			// Already covered by the card or SSN pass.
			continue
		}
		token := fmt.Sprintf("[PASSWORD_%d]", len(tokens))
		tokens[token] = secret
		masked = strings.ReplaceAll(masked, secret, token)
	}
	return masked
}

// maskPattern replaces every match of re in text with the next token.
// group selects a capture group; 0 replaces the whole match. The scan
// resumes after each inserted token so tokens are never re-matched.
func maskPattern(text string, re *regexp.Regexp, label string, group int, tokens TokenMap) string {
	var sb strings.Builder
	offset := 0

	for offset < len(text) {
		m := re.FindStringSubmatchIndex(text[offset:])
		if m == nil {
			break
		}

		start, end := m[2*group], m[2*group+1]
		if start < 0 {
			break
		}
		start += offset
		end += offset

		token := fmt.Sprintf("[%s_%d]", label, len(tokens))
		tokens[token] = text[start:end]

		sb.WriteString(text[offset:start])
		sb.WriteString(token)
		offset = end
	}

	if offset == 0 {
		return text
	}
	sb.WriteString(text[offset:])
	return sb.String()
}

// Unmask restores every token in text with its original value. Text
// containing no tokens passes through unchanged.
func Unmask(text string, tokens TokenMap) string {
	if len(tokens) == 0 {
		return text
	}
	for token, original := range tokens {
		text = strings.ReplaceAll(text, token, original)
	}
	return text
}
