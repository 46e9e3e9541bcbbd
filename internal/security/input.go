package security

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

var (
	ErrInputTooLarge    = errors.New("input exceeds maximum size")
	ErrNullByteDetected = errors.New("null byte detected in input")
	ErrControlCharacter = errors.New("control character in input")
	ErrInvalidUTF8      = errors.New("input is not valid UTF-8")
)

// TextLimits bounds the free-text fields of a medication, in runes.
type TextLimits struct {
	Name   int
	Dosage int
	Notes  int
}

func DefaultTextLimits() TextLimits {
	return TextLimits{
		Name:   200,
		Dosage: 100,
		Notes:  2000,
	}
}

// CheckText rejects oversized or binary input. Newlines and tabs are only
// allowed when multiline is set.
func CheckText(input string, maxRunes int, multiline bool) error {
	if !utf8.ValidString(input) {
		return ErrInvalidUTF8
	}
	if maxRunes > 0 && utf8.RuneCountInString(input) > maxRunes {
		return ErrInputTooLarge
	}

	for _, r := range input {
		switch {
		case r == 0:
			return ErrNullByteDetected
		case multiline && (r == '\n' || r == '\r' || r == '\t'):
		case unicode.IsControl(r):
			return ErrControlCharacter
		}
	}
	return nil
}
