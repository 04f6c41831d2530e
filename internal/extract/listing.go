// Package extract pulls article links out of listing pages and article text
// out of post pages.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ListingRules describe which links on a listing page are articles.
type ListingRules struct {
	Region          string // CSS selector bounding the link search; whole page when empty
	PathPrefix      string // Accepted links have a path starting with this
	PaginationParam string // Links carrying this query parameter are pagination, not articles
	NextSelector    string // Selects the "next page" anchor
}

// Listing is what one listing page yields.
type Listing struct {
	Links []string // Absolute article URLs, first occurrence order
	Next  string   // Absolute URL of the next listing page, empty on the last page
}

// Resolver turns an href into an absolute URL, returning "" when it cannot.
type Resolver func(href string) string

// ResolveAgainst returns a Resolver relative to base.
func ResolveAgainst(base *url.URL) Resolver {
	return func(href string) string {
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return ""
		}
		return base.ResolveReference(ref).String()
	}
}

// ExtractListing applies rules to a parsed listing page.
func ExtractListing(doc *goquery.Selection, resolve Resolver, rules ListingRules) Listing {
	var listing Listing

	anchors := "a[href]"
	if rules.Region != "" {
		anchors = rules.Region + " a[href]"
	}

	seen := make(map[string]bool)
	doc.Find(anchors).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link := resolve(href)
		if link == "" || seen[link] || !rules.Accept(link) {
			return
		}
		seen[link] = true
		listing.Links = append(listing.Links, link)
	})

	if rules.NextSelector != "" {
		if href, ok := doc.Find(rules.NextSelector).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			listing.Next = resolve(href)
		}
	}

	return listing
}

// Accept reports whether an absolute URL is an article link.
func (r ListingRules) Accept(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !strings.HasPrefix(u.Path, r.PathPrefix) {
		return false
	}
	if r.PaginationParam != "" && u.Query().Has(r.PaginationParam) {
		return false
	}
	return true
}
