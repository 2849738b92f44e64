// Package pageanalysis implements the crawler's page analyser: a pure
// function that turns one fetched HTML document into a PageStats value
// a worker can hand back to its farmer.
//
// It counts <img> and <form> tags, extracts <a href="..."> links and
// <hN>...</hN> headings, all via a fixed regex pass rather than an HTML
// parser, matching original_source/sem02/src/html.cpp's own regex-based
// approach. Using a regex pass instead of an HTML parser such as
// golang.org/x/net/html is a deliberate choice, not a convenience shortcut.
//
// The four passes scan the same body independently, so Analyse fans them
// out across internal/workerpool, the codebase's one intra-node
// concurrency primitive, rather than running them one after another.
package pageanalysis

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/cametumbling/sitecrawler/internal/siteurl"
	"github.com/cametumbling/sitecrawler/internal/wire"
	"github.com/cametumbling/sitecrawler/internal/workerpool"
)

var (
	imgRegex  = regexp.MustCompile(`<img\b`)
	formRegex = regexp.MustCompile(`<form\b`)
	linkRegex = regexp.MustCompile(`<a\b[^>]+href="([^"]+)"`)
	// RE2 has no backreferences, so the closing level is a second capture
	// group instead of \1, checked for equality below. A mismatched or
	// nested heading pair (e.g. <h2>foo<h3>bar</h3></h2>) is handled
	// differently than the backtracking regex this is standing in for.
	headingRegex = regexp.MustCompile(`<h([1-6])>(.*?)</h([1-6])>`)
)

// analysisPoolSize matches the four independent regex passes fanned out
// by Analyse.
const analysisPoolSize = 4

var (
	poolOnce sync.Once
	pool     *workerpool.Pool
)

func analysisPool() *workerpool.Pool {
	poolOnce.Do(func() {
		pool = workerpool.New(analysisPoolSize)
	})
	return pool
}

// Analyse scans body, the HTML fetched from pageURL, and returns its
// PageStats. Links whose scheme or domain disagrees with pageURL (when
// the link specifies one) are dropped; a missing scheme or domain on the
// link is treated as "same site" and inherits pageURL's. Link paths are
// returned exactly as captured, with relative-to-absolute resolution left
// to the caller (the farmer owns that, since it alone knows the path the
// link was found on).
func Analyse(body string, pageURL siteurl.URL) wire.PageStats {
	p := analysisPool()

	imagesFuture := workerpool.SpawnWithFuture(p, func() uint64 {
		return uint64(len(imgRegex.FindAllStringIndex(body, -1)))
	})
	formsFuture := workerpool.SpawnWithFuture(p, func() uint64 {
		return uint64(len(formRegex.FindAllStringIndex(body, -1)))
	})
	linksFuture := workerpool.SpawnWithFuture(p, func() []string {
		return extractLinks(body, pageURL)
	})
	headingsFuture := workerpool.SpawnWithFuture(p, func() []wire.Heading {
		return extractHeadings(body)
	})

	return wire.PageStats{
		Path:     pageURL.Path,
		Scheme:   pageURL.Scheme,
		Domain:   pageURL.Domain,
		Images:   imagesFuture.Get(),
		Forms:    formsFuture.Get(),
		Links:    linksFuture.Get(),
		Headings: headingsFuture.Get(),
	}
}

func extractLinks(body string, pageURL siteurl.URL) []string {
	var links []string
	for _, match := range linkRegex.FindAllStringSubmatch(body, -1) {
		link, err := siteurl.Parse(match[1])
		if err != nil || link.Path == "" {
			continue
		}

		if link.Scheme != "" && link.Scheme != pageURL.Scheme {
			continue
		}
		if link.Domain != "" && link.Domain != pageURL.Domain {
			continue
		}

		links = append(links, link.Path)
	}
	return links
}

func extractHeadings(body string) []wire.Heading {
	var headings []wire.Heading
	for _, match := range headingRegex.FindAllStringSubmatch(body, -1) {
		if match[1] != match[3] {
			// mismatched closing tag (<h2>...</h3>): not a valid heading pair
			continue
		}
		level, err := strconv.ParseUint(match[1], 10, 8)
		if err != nil {
			continue
		}
		headings = append(headings, wire.Heading{Level: uint8(level), Text: match[2]})
	}
	return headings
}
