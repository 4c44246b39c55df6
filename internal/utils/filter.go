package utils

import (
	"strings"
	"unicode"
)

// IsSeparator checks if a rune may appear between sequence symbols in
// typed or pasted input
func IsSeparator(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsDigit(r) || r == '-' || r == '.' || r == '_'
}

// CleanSequenceText drops separators, line numbers and gap characters so
// pasted alignments or GenBank-style blocks parse as one sequence.
func CleanSequenceText(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if IsSeparator(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// IsValidQuery rejects empty input and anything holding characters that no
// sequence alphabet uses.
func IsValidQuery(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || r == '*') {
			return false
		}
	}
	return true
}

// IsRepetitive checks if a string repeats a single character, as in
// homopolymer runs like "AAAA"
func IsRepetitive(s string) bool {
	if len(s) <= 2 {
		return false
	}
	first := s[0]
	for i := 1; i < len(s); i++ {
		if s[i] != first {
			return false
		}
	}
	return true
}
