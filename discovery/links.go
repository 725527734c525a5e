// Package discovery extracts same-domain hyperlinks from rendered markup.
package discovery

import (
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/sitecheck/urlutil"
)

var anchorMatcher = cascadia.MustCompile("a[href]")

// skippedPrefixes are href schemes that never point at a crawlable page.
var skippedPrefixes = []string{"mailto:", "tel:", "javascript:"}

// Discover parses markup, resolves every anchor href against baseURL,
// lower-cases the host, strips fragments and returns the sorted, deduplicated set of http(s) links that
// the matcher accepts. Unparseable markup or base URLs yield no links.
func Discover(markup, baseURL string, m urlutil.Matcher) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	doc.FindMatcher(anchorMatcher).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || hasSkippedPrefix(href) {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		resolved.Host = strings.ToLower(resolved.Host)
		abs := urlutil.StripFragment(resolved.String())
		if !m.IsSameDomain(abs) {
			return
		}
		seen[abs] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)
	return links
}

func hasSkippedPrefix(href string) bool {
	lower := strings.ToLower(href)
	for _, p := range skippedPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
