package cluster

import (
	"regexp"
	"strings"
)

// Stopwords excluded from the headline token index.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "are": true, "was": true, "were": true,
	"has": true, "have": true, "had": true, "will": true, "would": true,
	"can": true, "could": true, "its": true, "his": true, "her": true,
	"their": true, "into": true, "over": true, "after": true, "before": true,
	"about": true, "amid": true, "more": true, "than": true, "been": true,
	"not": true, "but": true, "all": true, "new": true, "says": true,
	"said": true, "per": true, "via": true, "due": true, "off": true,
	"out": true, "now": true, "today": true, "who": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "also": true,
}

var tickerRE = regexp.MustCompile(`^\$[a-z0-9]+$`)
var numericRE = regexp.MustCompile(`^[0-9][0-9.,%]*$`)
var tokenSplitRE = regexp.MustCompile(`[^a-z0-9$.,%]+`)

// Tokenize lowercases a headline and returns its index tokens: $tickers
// and numeric tokens of length ≥2 pass as-is, everything else needs ≥3
// chars and must not be a stopword.
func Tokenize(headline string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range tokenSplitRE.Split(strings.ToLower(headline), -1) {
		token := strings.Trim(raw, ".,%")
		if tickerRE.MatchString(raw) {
			token = raw
		}
		if token == "" || seen[token] {
			continue
		}
		switch {
		case tickerRE.MatchString(token):
		case numericRE.MatchString(token):
			if len(token) < 2 {
				continue
			}
		default:
			if len(token) < 3 || stopwords[token] {
				continue
			}
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}
