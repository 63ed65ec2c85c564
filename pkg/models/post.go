package models

import "time"

// Post is a single ingested social-media item. Edited posts arrive as new
// rows sharing a CanonicalTweetID; at most one row per canonical id carries
// IsLatestVersion = true.
type Post struct {
	TweetID          string    `json:"tweet_id"`
	CanonicalTweetID string    `json:"canonical_tweet_id"`
	IsLatestVersion  bool      `json:"is_latest_version"`
	AuthorHandle     string    `json:"author_handle"`
	TweetCreatedAt   time.Time `json:"tweet_created_at"`
	FullText         string    `json:"full_text"`
	QuotedText       *string   `json:"quoted_text,omitempty"`

	ImpressionCount int `json:"impression_count"`
	LikeCount       int `json:"like_count"`
	RetweetCount    int `json:"retweet_count"`
	QuoteCount      int `json:"quote_count"`
	BookmarkCount   int `json:"bookmark_count"`
	ReplyCount      int `json:"reply_count"`

	IsRetweet bool `json:"is_retweet"`
	IsReply   bool `json:"is_reply"`
	IsQuote   bool `json:"is_quote"`

	RawPayload []byte `json:"-"`

	NormalizedHeadline *string   `json:"normalized_headline,omitempty"`
	NormalizedFacts    []string  `json:"normalized_facts,omitempty"`
	HeadlineEmbedding  []float32 `json:"-"`

	URLEnrichedAt *time.Time `json:"url_enriched_at,omitempty"`
	NormalizedAt  *time.Time `json:"normalized_at,omitempty"`
	EmbeddedAt    *time.Time `json:"embedded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Engagement is the weighted engagement of a single post:
// likes + 2*retweets + 1.5*quotes + replies + 0.2*bookmarks.
func (p *Post) Engagement() float64 {
	return float64(p.LikeCount) +
		2*float64(p.RetweetCount) +
		1.5*float64(p.QuoteCount) +
		float64(p.ReplyCount) +
		0.2*float64(p.BookmarkCount)
}

// IsOriginal reports whether the post is first-party content rather than a
// retweet, reply, or quote. Only original posts are clustering candidates.
func (p *Post) IsOriginal() bool {
	return !p.IsRetweet && !p.IsReply && !p.IsQuote
}

// PostURL is a URL referenced by a post, with the readable content extracted
// from it. Content holds a terminal sentinel string when extraction failed.
type PostURL struct {
	ID        int64      `json:"id"`
	PostID    string     `json:"post_id"`
	URL       string     `json:"url"`
	Content   *string    `json:"content,omitempty"`
	RawHTML   *string    `json:"-"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
}

// ImageCategory is the closed classification set for post images.
type ImageCategory string

const (
	ImageCategoryLogo         ImageCategory = "logo"
	ImageCategoryPerson       ImageCategory = "person"
	ImageCategoryPlace        ImageCategory = "place"
	ImageCategoryNewsHeadline ImageCategory = "news_headline"
	ImageCategoryChart        ImageCategory = "chart"
	ImageCategoryTable        ImageCategory = "table"
	ImageCategoryTweet        ImageCategory = "tweet"
	ImageCategoryDocument     ImageCategory = "document"
	ImageCategoryArticle      ImageCategory = "article"
	ImageCategoryOther        ImageCategory = "other"

	// ImageCategoryError marks a permanently failed classification so the
	// image is not re-queued.
	ImageCategoryError ImageCategory = "error"
)

// Valid reports whether c is a member of the closed category set.
func (c ImageCategory) Valid() bool {
	switch c {
	case ImageCategoryLogo, ImageCategoryPerson, ImageCategoryPlace,
		ImageCategoryNewsHeadline, ImageCategoryChart, ImageCategoryTable,
		ImageCategoryTweet, ImageCategoryDocument, ImageCategoryArticle,
		ImageCategoryOther, ImageCategoryError:
		return true
	}
	return false
}

// WarrantsSummary reports whether an image of this category carries enough
// news content to justify a summarization call.
func (c ImageCategory) WarrantsSummary() bool {
	switch c {
	case ImageCategoryNewsHeadline, ImageCategoryChart, ImageCategoryTable,
		ImageCategoryDocument, ImageCategoryArticle:
		return true
	}
	return false
}

// PostImage is an image attached to a post, classified into ImageCategory
// and optionally summarized when the category warrants it.
type PostImage struct {
	ID                        int64          `json:"id"`
	PostID                    string         `json:"post_id"`
	ImageURL                  string         `json:"image_url"`
	ImageCategory             *ImageCategory `json:"image_category,omitempty"`
	WarrantsFinancialAnalysis *bool          `json:"warrants_financial_analysis,omitempty"`
	Summary                   *string        `json:"summary,omitempty"`
	ClassifiedAt              *time.Time     `json:"classified_at,omitempty"`
	SummarizedAt              *time.Time     `json:"summarized_at,omitempty"`
}

// PostVideo is a video variant referenced by a post. Diagnostic projection
// only; the clustering core never reads it.
type PostVideo struct {
	ID               int64   `json:"id"`
	PostID           string  `json:"post_id"`
	VariantURL       string  `json:"variant_url"`
	Bitrate          *int    `json:"bitrate,omitempty"`
	ResolutionBucket *string `json:"resolution_bucket,omitempty"`
	DurationMS       *int    `json:"duration_ms,omitempty"`
}

// Video resolution buckets derived from variant bitrate.
const (
	ResolutionLow    = "<=480p"
	ResolutionMedium = "720p"
	ResolutionHigh   = ">=1080p"
)

// BucketResolution maps a variant bitrate to its diagnostic bucket.
func BucketResolution(bitrate int) string {
	switch {
	case bitrate <= 832000:
		return ResolutionLow
	case bitrate <= 2176000:
		return ResolutionMedium
	default:
		return ResolutionHigh
	}
}
