// Package textutil provides small text helpers shared by ingestion and
// branch resolution.
package textutil

import "regexp"

var emailRegex = regexp.MustCompile(`[\w.-]+@[\w.-]+`)

// ExtractEmail returns the first email-shaped substring in text, or ""
// when none is present.
func ExtractEmail(text string) string {
	return emailRegex.FindString(text)
}
