// Package markdown recognises responses that are already Markdown documents,
// so the harvester can chunk them without HTML extraction.
package markdown

import (
	"regexp"
	"strings"
)

var (
	headerPattern = regexp.MustCompile(`^#{1,6}\s+\S`)
	listPattern   = regexp.MustCompile(`(?m)^[\-\*]\s+\S`)
	linkPattern   = regexp.MustCompile(`\[.+?\]\(.+?\)`)
)

// IsMarkdownContentType checks if the Content-Type header indicates markdown.
func IsMarkdownContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/markdown") ||
		strings.HasPrefix(ct, "text/x-markdown")
}

// IsHTMLContentType checks if the Content-Type header indicates HTML.
func IsHTMLContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml")
}

// IsMarkdownURL checks if the URL path names a markdown file.
func IsMarkdownURL(url string) bool {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	return strings.HasSuffix(lower, ".md") ||
		strings.HasSuffix(lower, ".markdown")
}

// IsMarkdownContent uses heuristics to detect if content is markdown.
func IsMarkdownContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || looksLikeHTML(trimmed) {
		return false
	}
	return headerPattern.MatchString(trimmed) ||
		listPattern.MatchString(trimmed) ||
		linkPattern.MatchString(trimmed)
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.HasPrefix(lower, "<!doctype") ||
		strings.HasPrefix(lower, "<html") ||
		strings.HasPrefix(lower, "<head") ||
		strings.HasPrefix(lower, "<body")
}

// Detect decides whether a response is markdown.
// An explicit HTML content type always wins; body sniffing is only used for
// untyped or text/plain responses.
func Detect(url, contentType, content string) bool {
	if IsMarkdownContentType(contentType) {
		return true
	}
	if IsHTMLContentType(contentType) {
		return false
	}
	if IsMarkdownURL(url) {
		return true
	}

	ct := strings.ToLower(contentType)
	if ct == "" || strings.HasPrefix(ct, "text/plain") {
		return IsMarkdownContent(content)
	}
	return false
}
