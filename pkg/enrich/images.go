package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/llm"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

const classifyPrompt = `Classify the attached image from a social-media post.

Respond with a JSON object of exactly this shape:
{
  "image_category": one of "logo", "person", "place", "news_headline", "chart", "table", "tweet", "document", "article", "other",
  "warrants_financial_analysis": boolean — true when the image carries financial or market-moving content worth summarizing (charts, tables, news headlines, documents, articles, financial tweets),
  "brief_description": one sentence,
  "reason": one sentence explaining the category choice
}`

const summaryPromptTemplate = `Summarize the attached image in 1-3 sentences, focusing on any financial or news content. Post text for context:

%s`

// classification is the strict JSON shape the vision call must return.
type classification struct {
	ImageCategory             string `json:"image_category"`
	WarrantsFinancialAnalysis bool   `json:"warrants_financial_analysis"`
	BriefDescription          string `json:"brief_description"`
	Reason                    string `json:"reason"`
}

// ImageEnricher classifies post images and summarizes those whose category
// warrants it. A failed classification persists the terminal error category
// so the image is never re-queued and never blocks normalization.
type ImageEnricher struct {
	client llm.Client
	posts  *store.PostStore
	cfg    *config.EnrichConfig
}

// NewImageEnricher creates an image enricher over the vision-capable chat
// client.
func NewImageEnricher(client llm.Client, posts *store.PostStore, cfg *config.EnrichConfig) *ImageEnricher {
	return &ImageEnricher{client: client, posts: posts, cfg: cfg}
}

// ClassifyPost classifies every unclassified image of one post. Returns the
// number of images classified (including error outcomes).
func (e *ImageEnricher) ClassifyPost(ctx context.Context, postID string) (int, error) {
	images, err := e.posts.PendingImages(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("loading pending images for %s: %w", postID, err)
	}

	for _, img := range images {
		category, warrants := e.classifyOne(ctx, img.ImageURL)
		if err := e.posts.SetImageClassification(ctx, img.ID, category, warrants); err != nil {
			return 0, fmt.Errorf("storing classification for image %d: %w", img.ID, err)
		}
	}
	return len(images), nil
}

func (e *ImageEnricher) classifyOne(ctx context.Context, imageURL string) (models.ImageCategory, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ImageTimeout)
	defer cancel()

	response, err := e.client.Complete(callCtx, []llm.Message{
		{Role: llm.RoleUser, Parts: []llm.Part{
			{Text: classifyPrompt},
			{ImageURL: imageURL},
		}},
	}, llm.Options{JSONMode: true, MaxTokens: 300})
	if err != nil {
		slog.Warn("Image classification call failed", "image_url", imageURL, "error", err)
		return models.ImageCategoryError, false
	}

	var result classification
	if err := llm.ExtractJSON(response, &result); err != nil {
		slog.Warn("Image classification returned unparseable JSON", "image_url", imageURL, "error", err)
		return models.ImageCategoryError, false
	}

	category := models.ImageCategory(strings.ToLower(strings.TrimSpace(result.ImageCategory)))
	if !category.Valid() || category == models.ImageCategoryError {
		slog.Warn("Image classification returned unknown category",
			"image_url", imageURL, "category", result.ImageCategory)
		return models.ImageCategoryError, false
	}
	// News-bearing categories get summarized even when the model leaves
	// the flag unset.
	return category, result.WarrantsFinancialAnalysis || category.WarrantsSummary()
}

// SummarizePost produces a summary for every warranted, unsummarized image
// of one post, with the post text as context. Summary failures are logged
// and skipped; the image stays eligible for the next delivery.
func (e *ImageEnricher) SummarizePost(ctx context.Context, postID, postText string) (int, error) {
	images, err := e.posts.WarrantedImages(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("loading warranted images for %s: %w", postID, err)
	}

	summarized := 0
	for _, img := range images {
		summary, err := e.summarizeOne(ctx, img.ImageURL, postText)
		if err != nil {
			slog.Warn("Image summary call failed", "image_url", img.ImageURL, "error", err)
			continue
		}
		if err := e.posts.SetImageSummary(ctx, img.ID, summary); err != nil {
			return summarized, fmt.Errorf("storing summary for image %d: %w", img.ID, err)
		}
		summarized++
	}
	return summarized, nil
}

func (e *ImageEnricher) summarizeOne(ctx context.Context, imageURL, postText string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ImageTimeout)
	defer cancel()

	response, err := e.client.Complete(callCtx, []llm.Message{
		{Role: llm.RoleUser, Parts: []llm.Part{
			{Text: fmt.Sprintf(summaryPromptTemplate, postText)},
			{ImageURL: imageURL},
		}},
	}, llm.Options{MaxTokens: 300})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(response)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}
