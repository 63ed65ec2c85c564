package enrich

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Elements stripped before extraction: scripts, chrome, and boilerplate.
var strippedSelectors = []string{
	"script", "style", "noscript", "iframe", "svg",
	"nav", "header", "footer", "aside", "form", "button",
}

// Containers likely to hold the article body, in preference order.
var contentSelectors = []string{
	"article", "main", "[role=main]", ".article-body", ".post-content",
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// ExtractReadable pulls the readable text out of an HTML document:
// boilerplate elements are removed, the first matching content container
// wins, and the fallback collects every <p>. Paragraphs are collapsed to
// single-spaced lines joined by blank lines. Returns "" when nothing
// readable remains.
func ExtractReadable(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	for _, sel := range strippedSelectors {
		doc.Find(sel).Remove()
	}

	for _, sel := range contentSelectors {
		if container := doc.Find(sel).First(); container.Length() > 0 {
			if text := collectParagraphs(container); text != "" {
				return text
			}
		}
	}

	return collectParagraphs(doc.Selection)
}

// collectParagraphs gathers paragraph-level text under root. If the
// container has no <p> children its own text is used as a single block.
func collectParagraphs(root *goquery.Selection) string {
	var paragraphs []string
	root.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := collapse(s.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) == 0 {
		if text := collapse(root.Text()); text != "" {
			return text
		}
		return ""
	}
	return strings.Join(paragraphs, "\n\n")
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
