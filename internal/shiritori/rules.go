// Package shiritori holds the pure word-chain rules: kana script checks,
// small-kana normalization and the chain/forbidden-ending constraints.
package shiritori

import (
	"fmt"
	"unicode/utf8"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
)

const (
	// SeedKana starts the very first chain of a session.
	SeedKana = "り"

	// ForbiddenKana ends the turn in failure when it ends a word.
	ForbiddenKana = 'ん'

	longVowelMark = 'ー'
)

// smallToLarge maps small kana to the full-size kana used for chaining,
// so きっぷ chains on つ rather than っ.
var smallToLarge = map[rune]rune{
	'ぁ': 'あ',
	'ぃ': 'い',
	'ぅ': 'う',
	'ぇ': 'え',
	'ぉ': 'お',
	'っ': 'つ',
	'ゃ': 'や',
	'ゅ': 'ゆ',
	'ょ': 'よ',
}

// IsHiragana reports whether every rune of the word is hiragana
// (U+3041..U+309F) or the long vowel mark.
func IsHiragana(word string) bool {
	if word == "" {
		return false
	}

	for _, r := range word {
		if r == longVowelMark {
			continue
		}
		if r < 0x3041 || r > 0x309F {
			return false
		}
	}

	return true
}

// Normalize returns the full-size form of a kana.
func Normalize(r rune) rune {
	if large, ok := smallToLarge[r]; ok {
		return large
	}
	return r
}

// LastKana returns the normalized final kana of a word, which the next
// word must start with.
func LastKana(word string) string {
	r, _ := utf8.DecodeLastRuneInString(word)
	return string(Normalize(r))
}

// EndsWithForbidden reports whether the word ends with ForbiddenKana.
func EndsWithForbidden(word string) bool {
	r, _ := utf8.DecodeLastRuneInString(word)
	return r == ForbiddenKana
}

// Length counts kana, not bytes.
func Length(word string) int {
	return utf8.RuneCountInString(word)
}

// CheckSubmission validates a proposed word against the local chain rules.
// The forbidden-ending case is deliberately NOT checked here: it consumes
// the turn instead of rejecting the submission, so the session handles it
// separately.
func CheckSubmission(word string, requiredLen int, chainKana string, history []string, rejectRepeats bool) error {
	if !IsHiragana(word) {
		return fmt.Errorf("%w: %q", apperror.ErrWordScript, word)
	}

	if Length(word) != requiredLen {
		return fmt.Errorf("%w: got %d, want %d", apperror.ErrWordLength, Length(word), requiredLen)
	}

	r, _ := utf8.DecodeRuneInString(word)
	if string(r) != chainKana {
		return fmt.Errorf("%w: must start with %s", apperror.ErrWordChain, chainKana)
	}

	if rejectRepeats {
		for _, played := range history {
			if played == word {
				return fmt.Errorf("%w: %q", apperror.ErrWordRepeated, word)
			}
		}
	}

	return nil
}
