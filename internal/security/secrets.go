package security

import (
	"regexp"
)

type secretPattern struct {
	name       string
	regex      *regexp.Regexp
	redactWith string
}

// Order matters: the bot URL form must be replaced before the bare token.
var secretPatterns = []secretPattern{
	{"Telegram Bot URL", regexp.MustCompile(`/bot[0-9]{6,12}:[a-zA-Z0-9_-]{30,}`), "/bot****:****"},
	{"Telegram Bot Token", regexp.MustCompile(`[0-9]{8,10}:[a-zA-Z0-9_-]{35}`), "****:****"},
	{"Discord Token", regexp.MustCompile(`[MN][a-zA-Z\d]{23}\.[\w-]{6}\.[\w-]{27}`), "DISCORD_TOKEN****"},
	{"Discord Auth Header", regexp.MustCompile(`Bot [a-zA-Z\d_.-]{50,}`), "Bot ****"},
	{"JWT Token", regexp.MustCompile(`eyJ[a-zA-Z0-9\-_]+\.eyJ[a-zA-Z0-9\-_]+\.[a-zA-Z0-9\-_]+`), "eyJ****"},
	{"Generic Secret", regexp.MustCompile(`(?i)(secret|password|passwd|token)['"]?\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`), "SECRET****"},
}

// Redact masks bot tokens and similar credentials in input.
func Redact(input string) string {
	result := input
	for _, p := range secretPatterns {
		result = p.regex.ReplaceAllString(result, p.redactWith)
	}
	return result
}

// HasSecrets reports whether Redact would change input.
func HasSecrets(input string) bool {
	for _, p := range secretPatterns {
		if p.regex.MatchString(input) {
			return true
		}
	}
	return false
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

// RedactError hides credentials in err's message. errors.Is and errors.As
// still see the original error.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !HasSecrets(msg) {
		return err
	}
	return &redactedError{msg: Redact(msg), err: err}
}
