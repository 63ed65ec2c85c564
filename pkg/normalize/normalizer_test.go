package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/tideline/tideline/pkg/models"
)

func TestValidateHeadlineCollapse(t *testing.T) {
	h, facts := Validate("  Fed   holds\nrates  steady ", []string{" Rates unchanged ", "Rates unchanged", "Vote was 11-1"}, "raw")
	assert.Equal(t, "Fed holds rates steady", h)
	assert.Equal(t, []string{"Rates unchanged", "Vote was 11-1"}, facts)
}

func TestValidateHeadlineTruncation(t *testing.T) {
	long := strings.Repeat("a", 500)
	h, _ := Validate(long, nil, "raw")
	assert.Equal(t, MaxHeadlineLen, utf8.RuneCountInString(h))
}

func TestValidateHeadlineTruncationMultibyte(t *testing.T) {
	// A multibyte rune straddling the cap must not be split into
	// invalid UTF-8.
	long := strings.Repeat("a", MaxHeadlineLen-1) + "é" + strings.Repeat("b", 50)
	h, _ := Validate(long, nil, "raw")
	assert.True(t, utf8.ValidString(h))
	assert.Equal(t, MaxHeadlineLen, utf8.RuneCountInString(h))
	assert.True(t, strings.HasSuffix(h, "é"))

	emoji := strings.Repeat("🚀", 300)
	h, _ = Validate(emoji, nil, "raw")
	assert.True(t, utf8.ValidString(h))
	assert.Equal(t, MaxHeadlineLen, utf8.RuneCountInString(h))
}

func TestValidateFallbackChain(t *testing.T) {
	h, _ := Validate("", []string{"First fact"}, "raw text")
	assert.Equal(t, "First fact", h)

	h, _ = Validate("", nil, "  the raw   post text ")
	assert.Equal(t, "the raw post text", h)

	h, _ = Validate("", nil, "   ")
	assert.Equal(t, "No notable development", h)
}

func TestValidateFactCap(t *testing.T) {
	facts := make([]string, 20)
	for i := range facts {
		facts[i] = strings.Repeat("x", i+1)
	}
	_, cleaned := Validate("h", facts, "raw")
	assert.Len(t, cleaned, MaxFacts)
}

func TestValidateDropsEmptyFacts(t *testing.T) {
	_, cleaned := Validate("h", []string{"", "  ", "real"}, "raw")
	assert.Equal(t, []string{"real"}, cleaned)
}

func TestBuildPrompt(t *testing.T) {
	quoted := "the original claim"
	post := &models.Post{
		AuthorHandle: "newsdesk",
		FullText:     "Rates held steady.",
		QuotedText:   &quoted,
	}

	long := strings.Repeat("b", 2000)
	prompt := buildPrompt(post, []string{"article one text", long}, []string{"Chart of CPI falling."})

	assert.Contains(t, prompt, "Post by @newsdesk:")
	assert.Contains(t, prompt, "Rates held steady.")
	assert.Contains(t, prompt, "Quoted post:\nthe original claim")
	assert.Contains(t, prompt, "Linked article 1:\narticle one text")
	assert.Contains(t, prompt, "Linked article 2:\n"+strings.Repeat("b", 1500)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("b", 1501))
	assert.Contains(t, prompt, "Attached image: Chart of CPI falling.")
}
