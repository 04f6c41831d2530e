package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	return doc
}

var testRules = ListingRules{
	Region:          `div.px-6.py-10.md\:py-12.md\:px-10.xl\:p-20`,
	PathPrefix:      "/blog",
	PaginationParam: "page",
	NextSelector:    `a[rel="next"]`,
}

func TestExtractListing_FiltersPaginationAndForeignLinks(t *testing.T) {
	doc := parse(t, `<html><body>
		<nav><a href="/blog/outside-region">Outside</a></nav>
		<div class="px-6 py-10 md:py-12 md:px-10 xl:p-20">
			<a href="/blog/first-post">First</a>
			<a href="/blog?page=2">2</a>
			<a href="/blog/second-post">Second</a>
			<a href="/about">About</a>
			<a href="/blog?page=3">3</a>
			<a href="https://www.example.com/blog/third-post">Third</a>
			<a href="/blog/first-post">First again</a>
			<a href="mailto:someone@example.com">Mail</a>
		</div>
		<a rel="next" href="/blog?page=2">Next</a>
	</body></html>`)

	base, _ := url.Parse("https://www.example.com/blog")
	listing := ExtractListing(doc.Selection, ResolveAgainst(base), testRules)

	want := []string{
		"https://www.example.com/blog/first-post",
		"https://www.example.com/blog/second-post",
		"https://www.example.com/blog/third-post",
	}
	if len(listing.Links) != len(want) {
		t.Fatalf("expected %d links, got %d: %v", len(want), len(listing.Links), listing.Links)
	}
	for i := range want {
		if listing.Links[i] != want[i] {
			t.Errorf("link %d = %q, want %q", i, listing.Links[i], want[i])
		}
	}

	if listing.Next != "https://www.example.com/blog?page=2" {
		t.Errorf("Next = %q", listing.Next)
	}
}

func TestExtractListing_NoNextLink(t *testing.T) {
	doc := parse(t, `<html><body><div class="px-6 py-10 md:py-12 md:px-10 xl:p-20">
		<a href="/blog/only">Only</a>
	</div></body></html>`)

	base, _ := url.Parse("https://www.example.com/blog?page=9")
	listing := ExtractListing(doc.Selection, ResolveAgainst(base), testRules)

	if listing.Next != "" {
		t.Errorf("Next = %q, want empty", listing.Next)
	}
	if len(listing.Links) != 1 {
		t.Errorf("expected 1 link, got %d", len(listing.Links))
	}
}

func TestExtractListing_WholePageWithoutRegion(t *testing.T) {
	doc := parse(t, `<html><body><a href="/blog/a">A</a><p><a href="/blog/b">B</a></p></body></html>`)

	base, _ := url.Parse("http://localhost/")
	rules := ListingRules{PathPrefix: "/blog"}
	listing := ExtractListing(doc.Selection, ResolveAgainst(base), rules)

	if len(listing.Links) != 2 {
		t.Errorf("expected 2 links, got %v", listing.Links)
	}
}

func TestListingRules_Accept(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{"https://example.com/blog/post", true},
		{"https://example.com/blog", true},
		{"https://example.com/blog?page=2", false},
		{"https://example.com/blog/post?ref=home&page=1", false},
		{"https://example.com/blog/post?ref=home", true},
		{"https://example.com/news/post", false},
		{"https://example.com/a/blog/post", false},
		{"ftp://example.com/blog/post", false},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			if got := testRules.Accept(tt.link); got != tt.want {
				t.Errorf("Accept(%q) = %v, want %v", tt.link, got, tt.want)
			}
		})
	}
}
