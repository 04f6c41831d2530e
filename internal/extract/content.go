package extract

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// Mode selects how article text is rendered.
type Mode string

const (
	// ModeText joins the text of every item element with newlines.
	ModeText Mode = "text"
	// ModeMarkdown converts each content container to Markdown.
	ModeMarkdown Mode = "markdown"
)

// ContentRules locate article text on a post page.
type ContentRules struct {
	Container string // CSS selector of the article body
	Items     string // Comma-separated text-bearing elements inside Container
	Mode      Mode
}

// Content extracts article text according to its rules.
type Content struct {
	rules    ContentRules
	selector string
}

// NewContent validates rules and returns an extractor.
func NewContent(rules ContentRules) (*Content, error) {
	if rules.Container == "" {
		return nil, fmt.Errorf("content container selector is required")
	}
	if rules.Mode == "" {
		rules.Mode = ModeText
	}
	if rules.Mode != ModeText && rules.Mode != ModeMarkdown {
		return nil, fmt.Errorf("unknown extraction mode %q", rules.Mode)
	}
	if rules.Items == "" {
		rules.Items = "p, li"
	}

	var parts []string
	for _, item := range strings.Split(rules.Items, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			parts = append(parts, rules.Container+" "+item)
		}
	}

	return &Content{
		rules:    rules,
		selector: strings.Join(parts, ", "),
	}, nil
}

// Extract returns the article text of doc. The result may be empty.
func (c *Content) Extract(doc *goquery.Selection) (string, error) {
	if c.rules.Mode == ModeMarkdown {
		return c.markdown(doc)
	}

	var texts []string
	doc.Find(c.selector).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, s.Text())
	})
	return strings.Join(texts, "\n"), nil
}

func (c *Content) markdown(doc *goquery.Selection) (string, error) {
	var sections []string
	var convErr error
	doc.Find(c.rules.Container).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		html, err := goquery.OuterHtml(s)
		if err != nil {
			convErr = fmt.Errorf("failed to render container: %w", err)
			return false
		}
		md, err := htmltomarkdown.ConvertString(html)
		if err != nil {
			convErr = fmt.Errorf("failed to convert container to markdown: %w", err)
			return false
		}
		if md = strings.TrimSpace(md); md != "" {
			sections = append(sections, md)
		}
		return true
	})
	if convErr != nil {
		return "", convErr
	}
	return strings.Join(sections, "\n\n"), nil
}

// Title returns the trimmed <title> of doc.
func Title(doc *goquery.Selection) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}
