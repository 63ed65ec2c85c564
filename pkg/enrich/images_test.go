package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/llm"
	"github.com/tideline/tideline/pkg/models"
)

// fakeChat returns a canned response or error for every call.
type fakeChat struct {
	response string
	err      error
	calls    int
}

func (f *fakeChat) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	f.calls++
	return f.response, f.err
}

func newImageEnricher(client llm.Client) *ImageEnricher {
	return NewImageEnricher(client, nil, config.DefaultEnrichConfig())
}

func TestClassifyOne(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		err          error
		wantCategory models.ImageCategory
		wantWarrants bool
	}{
		{
			name:         "chart warranted",
			response:     `{"image_category": "chart", "warrants_financial_analysis": true, "brief_description": "price chart", "reason": "candlesticks"}`,
			wantCategory: models.ImageCategoryChart,
			wantWarrants: true,
		},
		{
			name:         "person not warranted",
			response:     `{"image_category": "Person", "warrants_financial_analysis": false, "brief_description": "portrait", "reason": "face"}`,
			wantCategory: models.ImageCategoryPerson,
		},
		{
			name:         "news category warranted despite unset flag",
			response:     `{"image_category": "news_headline", "warrants_financial_analysis": false, "brief_description": "breaking banner", "reason": "headline text"}`,
			wantCategory: models.ImageCategoryNewsHeadline,
			wantWarrants: true,
		},
		{
			name:         "fenced response",
			response:     "```json\n{\"image_category\": \"table\", \"warrants_financial_analysis\": true}\n```",
			wantCategory: models.ImageCategoryTable,
			wantWarrants: true,
		},
		{
			name:         "unknown category is terminal error",
			response:     `{"image_category": "meme", "warrants_financial_analysis": true}`,
			wantCategory: models.ImageCategoryError,
		},
		{
			name:         "model claiming error category stays error without warrant",
			response:     `{"image_category": "error", "warrants_financial_analysis": true}`,
			wantCategory: models.ImageCategoryError,
		},
		{
			name:         "unparseable response",
			response:     "I cannot classify this image.",
			wantCategory: models.ImageCategoryError,
		},
		{
			name:         "call failure",
			err:          errors.New("rate limited"),
			wantCategory: models.ImageCategoryError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newImageEnricher(&fakeChat{response: tc.response, err: tc.err})
			category, warrants := e.classifyOne(context.Background(), "https://img.example.com/a.jpg")
			assert.Equal(t, tc.wantCategory, category)
			assert.Equal(t, tc.wantWarrants, warrants)
		})
	}
}

func TestSummarizeOne(t *testing.T) {
	e := newImageEnricher(&fakeChat{response: "  A chart showing CPI falling to 2.4% in May.  "})
	summary, err := e.summarizeOne(context.Background(), "https://img.example.com/a.jpg", "CPI print")
	assert.NoError(t, err)
	assert.Equal(t, "A chart showing CPI falling to 2.4% in May.", summary)
}

func TestSummarizeOneEmpty(t *testing.T) {
	e := newImageEnricher(&fakeChat{response: "   "})
	_, err := e.summarizeOne(context.Background(), "https://img.example.com/a.jpg", "text")
	assert.Error(t, err)
}
