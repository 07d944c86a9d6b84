// Package links implements the ingestion pipeline that turns the raw
// inbound message stream into de-duplicated, per-category link corpora.
package links

import "regexp"

// urlPattern matches a scheme followed by a non-whitespace run.
var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// Extract returns every URL-shaped substring of text, in order of
// appearance. It is a pure function; empty input yields no matches.
func Extract(text string) []string {
	if text == "" {
		return nil
	}
	return urlPattern.FindAllString(text, -1)
}

// ContainsLink reports whether text holds at least one URL.
func ContainsLink(text string) bool {
	return text != "" && urlPattern.MatchString(text)
}
