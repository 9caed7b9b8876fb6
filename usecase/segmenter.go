package usecase

import (
	"strings"
	"unicode/utf8"
)

// clauseFlushThreshold is the length a buffer must exceed before a trailing
// comma or semicolon is treated as a speakable boundary.
const clauseFlushThreshold = 50

// IsSpeakable reports whether accumulated response text is complete enough
// to be sent to speech synthesis. A buffer is speakable when it ends a
// sentence, or when it is long and ends a clause.
func IsSpeakable(buffer string) bool {
	trimmed := strings.TrimSpace(buffer)
	if trimmed == "" {
		return false
	}

	last, _ := utf8.DecodeLastRuneInString(trimmed)
	switch last {
	case '.', '!', '?':
		return true
	case ',', ';':
		return utf8.RuneCountInString(trimmed) > clauseFlushThreshold
	}
	return false
}
