package utils

import "github.com/microcosm-cc/bluemonday"

var sanitizer = bluemonday.UGCPolicy()

// Sanitize cleans HTML content to prevent XSS attacks. Post bodies come
// from a rich-text editor and are stored as HTML, so they pass through
// here before every write; so does comment text.
func Sanitize(input string) string {
	return sanitizer.Sanitize(input)
}
