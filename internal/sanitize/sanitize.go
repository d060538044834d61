// Package sanitize normalises user-supplied text before it is stored.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
)

// MaxTextLength caps every sanitised free-text field.
const MaxTextLength = 1000

const defaultRegion = "US"

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	angleRegex   = regexp.MustCompile(`[<>]`)
)

// Text trims s, removes HTML tags and stray angle brackets, and truncates the
// result to MaxTextLength runes.
func Text(s string) string {
	return TextLimit(s, MaxTextLength)
}

// TextLimit is Text with a caller-chosen rune cap.
func TextLimit(s string, limit int) string {
	result := strings.TrimSpace(s)
	result = htmlTagRegex.ReplaceAllString(result, "")
	result = angleRegex.ReplaceAllString(result, "")
	if limit > 0 && utf8.RuneCountInString(result) > limit {
		runes := []rune(result)
		result = string(runes[:limit])
	}
	return result
}

// Optional sanitises an optional field; blank results become nil.
func Optional(s *string) *string {
	if s == nil {
		return nil
	}
	result := Text(*s)
	if result == "" {
		return nil
	}
	return &result
}

// Email lower-cases and trims an address and strips markup.
func Email(s string) string {
	return strings.ToLower(Text(s))
}

// Phone strips markup and, when the number parses as a valid number, formats
// it as E.164. Otherwise the sanitised input is returned unchanged.
func Phone(s string) string {
	cleaned := Text(s)
	if cleaned == "" {
		return cleaned
	}
	number, err := phonenumbers.Parse(cleaned, defaultRegion)
	if err != nil {
		return cleaned
	}
	if !phonenumbers.IsValidNumber(number) {
		return cleaned
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikeContains builds an ILIKE pattern matching s as a literal substring.
// Queries using it must declare ESCAPE '\'.
func LikeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// Truncate returns s cut to limit runes with an ellipsis when it was longer.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
