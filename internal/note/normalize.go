package note

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Normalize is the single normalization point between sync sources and the
// pipeline: titles are trimmed (empty becomes "Untitled") and line endings
// are unified. Sources construct raw Notes; everything downstream sees
// normalized ones.
func Normalize(n Note) Note {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		n.Title = "Untitled"
	}
	n.Body = strings.ReplaceAll(n.Body, "\r\n", "\n")
	return n
}

// CountChars returns the character count as runes (not bytes).
// This correctly handles multi-byte UTF-8 characters.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens estimates token count using a word-based heuristic
// (1.3x multiplier on word count).
func EstimateTokens(text string) int {
	words := strings.Fields(strings.TrimSpace(text))
	return int(math.Ceil(float64(len(words)) * 1.3))
}
