package cluster

import (
	"regexp"
	"strings"
)

// Content is the text surface of one cluster fed to the candidacy filters.
type Content struct {
	Headline      string
	Facts         []string
	MemberTexts   []string
	AuthorHandles []string
}

// Filter decides whether a cluster's content disqualifies it from story
// candidacy. Pluggable so the heuristic rules can be swapped for a model
// later without touching the recompute path.
type Filter interface {
	IsPromoSpam(c Content) bool
	IsLowInformation(c Content) bool
}

// Promotional vocabulary. Hits are counted as substring matches over the
// combined lowercased text.
var promoTerms = []string{
	"airdrop",
	"giveaway",
	"whitelist",
	"presale",
	"pump",
	"100x",
	"1000x",
	"guaranteed profit",
	"profit guaranteed",
	"dm for",
	"join now",
	"limited spots",
	"referral",
	"promo code",
	"free crypto",
	"mint now",
	"don't miss",
	"last chance",
}

// Signal-service phrasing: any single hit marks the cluster promotional.
var signalServicePatterns = []string{
	"trading signal",
	"signal service",
	"telegram channel",
	"accuracy rate",
	"free signals",
}

// Headlines that merely relay an unattributed claim carry no checkable
// development.
var unattributedClaimRE = regexp.MustCompile(
	`(?i)^(a |an |some |this )?(user|account|person|people|someone|anon|trader|analyst|influencer)s? (claim|say|allege|speculate|suggest|think|believe)`)

var numericHandleRE = regexp.MustCompile(`[0-9]{4,}`)

// HeuristicFilter is the default rule-based Filter.
type HeuristicFilter struct{}

// NewHeuristicFilter returns the default filter.
func NewHeuristicFilter() *HeuristicFilter { return &HeuristicFilter{} }

// IsPromoSpam reports whether the cluster reads as promotion or spam:
// gwei+airdrop together, any signal-service phrase, three promo-term hits,
// or two hits combined with a mostly-numeric author population.
func (f *HeuristicFilter) IsPromoSpam(c Content) bool {
	text := combinedText(c)
	if text == "" {
		return false
	}

	if strings.Contains(text, "gwei") && strings.Contains(text, "airdrop") {
		return true
	}
	for _, pattern := range signalServicePatterns {
		if strings.Contains(text, pattern) {
			return true
		}
	}

	hits := 0
	for _, term := range promoTerms {
		if strings.Contains(text, term) {
			hits++
		}
	}
	if hits >= 3 {
		return true
	}
	if hits >= 2 && len(c.AuthorHandles) >= 3 {
		numeric := 0
		for _, h := range c.AuthorHandles {
			if numericHandleRE.MatchString(h) {
				numeric++
			}
		}
		if float64(numeric) >= 0.6*float64(len(c.AuthorHandles)) {
			return true
		}
	}
	return false
}

// IsLowInformation reports whether the cluster carries nothing worth
// surfacing: no facts, an empty headline, or a headline that is only an
// unattributed claim.
func (f *HeuristicFilter) IsLowInformation(c Content) bool {
	headline := collapse(c.Headline)
	if len(c.Facts) == 0 || headline == "" {
		return true
	}
	return unattributedClaimRE.MatchString(headline)
}

func combinedText(c Content) string {
	parts := make([]string, 0, 2+len(c.Facts)+len(c.MemberTexts))
	parts = append(parts, c.Headline)
	parts = append(parts, c.Facts...)
	parts = append(parts, c.MemberTexts...)
	return collapse(strings.ToLower(strings.Join(parts, " ")))
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}
