package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/vectormath"
)

// Sentinel content strings written by the URL enricher. A post_urls row
// carrying one of these is terminal and never re-fetched.
const (
	ContentSentinelUnreadable  = "Could not extract readable content"
	ContentSentinelErrorPrefix = "Error fetching content: "
)

// PostStore is the repository for posts and their url/image/video children.
type PostStore struct {
	pool *pgxpool.Pool
}

// NewPostStore creates a post repository over the given pool.
func NewPostStore(pool *pgxpool.Pool) *PostStore {
	return &PostStore{pool: pool}
}

const postColumns = `tweet_id, canonical_tweet_id, is_latest_version, author_handle,
	tweet_created_at, full_text, quoted_text,
	impression_count, like_count, retweet_count, quote_count, bookmark_count, reply_count,
	is_retweet, is_reply, is_quote,
	normalized_headline, normalized_facts, headline_embedding::text,
	url_enriched_at, normalized_at, embedded_at, created_at, updated_at`

func scanPost(row pgx.Row) (*models.Post, error) {
	var p models.Post
	var facts []byte
	var embedding *string
	err := row.Scan(
		&p.TweetID, &p.CanonicalTweetID, &p.IsLatestVersion, &p.AuthorHandle,
		&p.TweetCreatedAt, &p.FullText, &p.QuotedText,
		&p.ImpressionCount, &p.LikeCount, &p.RetweetCount, &p.QuoteCount, &p.BookmarkCount, &p.ReplyCount,
		&p.IsRetweet, &p.IsReply, &p.IsQuote,
		&p.NormalizedHeadline, &facts, &embedding,
		&p.URLEnrichedAt, &p.NormalizedAt, &p.EmbeddedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(facts) > 0 {
		if err := json.Unmarshal(facts, &p.NormalizedFacts); err != nil {
			return nil, fmt.Errorf("decoding normalized_facts for %s: %w", p.TweetID, err)
		}
	}
	if embedding != nil {
		vec, err := vectormath.Parse(*embedding)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", p.TweetID, err)
		}
		p.HeadlineEmbedding = vec
	}
	return &p, nil
}

// Get returns a single post by tweet id.
func (s *PostStore) Get(ctx context.Context, tweetID string) (*models.Post, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE tweet_id = $1`, tweetID)
	p, err := scanPost(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("post %s: %w", tweetID, ErrNotFound)
		}
		return nil, fmt.Errorf("loading post %s: %w", tweetID, err)
	}
	return p, nil
}

// GetByIDs returns the posts for the given tweet ids, in no particular order.
func (s *PostStore) GetByIDs(ctx context.Context, tweetIDs []string) ([]*models.Post, error) {
	if len(tweetIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE tweet_id = ANY($1)`, tweetIDs)
	if err != nil {
		return nil, fmt.Errorf("loading posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// UpsertBatch inserts the given posts, ignoring duplicates, and returns the
// tweet ids that were actually inserted. Only first-inserts are returned;
// this is what drives preprocess-event emission, so callers must not replace
// it with an insert-then-select pattern.
func (s *PostStore) UpsertBatch(ctx context.Context, posts []*models.Post) ([]string, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	const cols = 17
	placeholders := make([]string, 0, len(posts))
	args := make([]any, 0, len(posts)*cols)
	for i, p := range posts {
		base := i * cols
		ph := make([]string, cols)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			p.TweetID, p.CanonicalTweetID, p.IsLatestVersion, p.AuthorHandle,
			p.TweetCreatedAt, p.FullText, p.QuotedText,
			p.ImpressionCount, p.LikeCount, p.RetweetCount, p.QuoteCount, p.BookmarkCount, p.ReplyCount,
			p.IsRetweet, p.IsReply, p.IsQuote,
			p.RawPayload,
		)
	}

	query := `INSERT INTO posts (tweet_id, canonical_tweet_id, is_latest_version, author_handle,
		tweet_created_at, full_text, quoted_text,
		impression_count, like_count, retweet_count, quote_count, bookmark_count, reply_count,
		is_retweet, is_reply, is_quote, raw_payload)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT (tweet_id) DO NOTHING
		RETURNING tweet_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upserting posts: %w", err)
	}
	defer rows.Close()

	var inserted []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning inserted tweet id: %w", err)
		}
		inserted = append(inserted, id)
	}
	return inserted, rows.Err()
}

// UnnormalizedCanonical filters the given tweet ids down to those whose
// latest canonical version has no normalized headline yet.
func (s *PostStore) UnnormalizedCanonical(ctx context.Context, tweetIDs []string) ([]string, error) {
	if len(tweetIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.tweet_id
		FROM posts p
		JOIN posts head
		  ON head.canonical_tweet_id = p.canonical_tweet_id
		 AND head.is_latest_version
		WHERE p.tweet_id = ANY($1)
		  AND head.normalized_headline IS NULL`, tweetIDs)
	if err != nil {
		return nil, fmt.Errorf("querying unnormalized posts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertURLs stores the URLs referenced by a post; duplicates are ignored.
func (s *PostStore) UpsertURLs(ctx context.Context, postID string, urls []string) error {
	for _, u := range urls {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO post_urls (post_id, url) VALUES ($1, $2)
			ON CONFLICT (post_id, url) DO NOTHING`, postID, u)
		if err != nil {
			return fmt.Errorf("upserting url for %s: %w", postID, err)
		}
	}
	return nil
}

// UpsertImages stores the image URLs attached to a post.
func (s *PostStore) UpsertImages(ctx context.Context, postID string, imageURLs []string) error {
	for _, u := range imageURLs {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO post_images (post_id, image_url) VALUES ($1, $2)
			ON CONFLICT (post_id, image_url) DO NOTHING`, postID, u)
		if err != nil {
			return fmt.Errorf("upserting image for %s: %w", postID, err)
		}
	}
	return nil
}

// UpsertVideos stores video variants with their diagnostic resolution bucket.
func (s *PostStore) UpsertVideos(ctx context.Context, postID string, videos []models.PostVideo) error {
	for _, v := range videos {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO post_videos (post_id, variant_url, bitrate, resolution_bucket, duration_ms)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (post_id, variant_url) DO NOTHING`,
			postID, v.VariantURL, v.Bitrate, v.ResolutionBucket, v.DurationMS)
		if err != nil {
			return fmt.Errorf("upserting video for %s: %w", postID, err)
		}
	}
	return nil
}

// PendingURLs returns the post's URLs that have no content yet.
func (s *PostStore) PendingURLs(ctx context.Context, postID string) ([]*models.PostURL, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, post_id, url, content, raw_html, fetched_at
		FROM post_urls
		WHERE post_id = $1 AND content IS NULL
		ORDER BY id`, postID)
	if err != nil {
		return nil, fmt.Errorf("querying pending urls for %s: %w", postID, err)
	}
	defer rows.Close()

	var urls []*models.PostURL
	for rows.Next() {
		var u models.PostURL
		if err := rows.Scan(&u.ID, &u.PostID, &u.URL, &u.Content, &u.RawHTML, &u.FetchedAt); err != nil {
			return nil, err
		}
		urls = append(urls, &u)
	}
	return urls, rows.Err()
}

// SetURLContent writes the extracted content (or a terminal sentinel) for a
// post URL. Content is only ever set once.
func (s *PostStore) SetURLContent(ctx context.Context, urlID int64, content string, rawHTML *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE post_urls
		SET content = $2, raw_html = $3, fetched_at = now()
		WHERE id = $1 AND content IS NULL`, urlID, content, rawHTML)
	if err != nil {
		return fmt.Errorf("storing url content %d: %w", urlID, err)
	}
	return nil
}

// MarkURLEnriched stamps the post as having completed URL enrichment.
func (s *PostStore) MarkURLEnriched(ctx context.Context, postID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE posts SET url_enriched_at = now(), updated_at = now() WHERE tweet_id = $1`, postID)
	if err != nil {
		return fmt.Errorf("marking %s url-enriched: %w", postID, err)
	}
	return nil
}

// URLContexts returns up to limit of the post's earliest URL contents,
// excluding sentinel error strings.
func (s *PostStore) URLContexts(ctx context.Context, postID string, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content
		FROM post_urls
		WHERE post_id = $1
		  AND content IS NOT NULL
		  AND content <> $2
		  AND content NOT LIKE $3
		ORDER BY id
		LIMIT $4`, postID, ContentSentinelUnreadable, ContentSentinelErrorPrefix+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("querying url contexts for %s: %w", postID, err)
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// PendingImages returns the post's images that have no category yet.
func (s *PostStore) PendingImages(ctx context.Context, postID string) ([]*models.PostImage, error) {
	return s.queryImages(ctx, `
		SELECT id, post_id, image_url, image_category, warrants_financial_analysis, summary, classified_at, summarized_at
		FROM post_images
		WHERE post_id = $1 AND image_category IS NULL
		ORDER BY id`, postID)
}

// WarrantedImages returns classified images flagged for financial analysis
// that have not been summarized yet.
func (s *PostStore) WarrantedImages(ctx context.Context, postID string) ([]*models.PostImage, error) {
	return s.queryImages(ctx, `
		SELECT id, post_id, image_url, image_category, warrants_financial_analysis, summary, classified_at, summarized_at
		FROM post_images
		WHERE post_id = $1 AND warrants_financial_analysis AND summary IS NULL
		ORDER BY id`, postID)
}

func (s *PostStore) queryImages(ctx context.Context, query string, args ...any) ([]*models.PostImage, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	defer rows.Close()

	var images []*models.PostImage
	for rows.Next() {
		var img models.PostImage
		if err := rows.Scan(&img.ID, &img.PostID, &img.ImageURL, &img.ImageCategory,
			&img.WarrantsFinancialAnalysis, &img.Summary, &img.ClassifiedAt, &img.SummarizedAt); err != nil {
			return nil, err
		}
		images = append(images, &img)
	}
	return images, rows.Err()
}

// SetImageClassification stores the classification result for an image.
func (s *PostStore) SetImageClassification(ctx context.Context, imageID int64, category models.ImageCategory, warrants bool) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE post_images
		SET image_category = $2, warrants_financial_analysis = $3, classified_at = now()
		WHERE id = $1 AND image_category IS NULL`, imageID, string(category), warrants)
	if err != nil {
		return fmt.Errorf("storing image classification %d: %w", imageID, err)
	}
	return nil
}

// SetImageSummary stores the summary for a warranted image.
func (s *PostStore) SetImageSummary(ctx context.Context, imageID int64, summary string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE post_images
		SET summary = $2, summarized_at = now()
		WHERE id = $1 AND summary IS NULL`, imageID, summary)
	if err != nil {
		return fmt.Errorf("storing image summary %d: %w", imageID, err)
	}
	return nil
}

// ImageSummaries returns the stored summaries for a post's images.
func (s *PostStore) ImageSummaries(ctx context.Context, postID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT summary FROM post_images
		WHERE post_id = $1 AND summary IS NOT NULL
		ORDER BY id`, postID)
	if err != nil {
		return nil, fmt.Errorf("querying image summaries for %s: %w", postID, err)
	}
	defer rows.Close()

	var summaries []string
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SetNormalized stores the canonical headline and fact list on a post.
func (s *PostStore) SetNormalized(ctx context.Context, tweetID, headline string, facts []string) error {
	if facts == nil {
		facts = []string{}
	}
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("encoding facts for %s: %w", tweetID, err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE posts
		SET normalized_headline = $2, normalized_facts = $3, normalized_at = now(), updated_at = now()
		WHERE tweet_id = $1`, tweetID, headline, factsJSON)
	if err != nil {
		return fmt.Errorf("storing normalization for %s: %w", tweetID, err)
	}
	return nil
}

// SetEmbedding stores the headline embedding on a post.
func (s *PostStore) SetEmbedding(ctx context.Context, tweetID string, embedding []float32) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE posts
		SET headline_embedding = $2::vector, embedded_at = now(), updated_at = now()
		WHERE tweet_id = $1`, tweetID, vectormath.Format(embedding))
	if err != nil {
		return fmt.Errorf("storing embedding for %s: %w", tweetID, err)
	}
	return nil
}

// BackfillCandidates returns tweet ids in the lookback window that still
// lack an embedding. Unless allTweets is set, only latest-version original
// posts qualify.
func (s *PostStore) BackfillCandidates(ctx context.Context, since time.Time, limit int, allTweets bool) ([]string, error) {
	query := `
		SELECT tweet_id FROM posts
		WHERE headline_embedding IS NULL
		  AND tweet_created_at >= $1`
	if !allTweets {
		query += `
		  AND is_latest_version
		  AND NOT is_retweet AND NOT is_reply AND NOT is_quote`
	}
	query += `
		ORDER BY tweet_created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying backfill candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentNormalized returns latest-version original posts with a normalized
// headline created at or after since, newest first. Used by the evaluation
// harnesses.
func (s *PostStore) RecentNormalized(ctx context.Context, since time.Time, limit int) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE normalized_headline IS NOT NULL
		  AND is_latest_version
		  AND NOT is_retweet AND NOT is_reply AND NOT is_quote
		  AND tweet_created_at >= $1
		ORDER BY tweet_created_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent normalized posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// RecentEmbedded returns latest-version original posts carrying an
// embedding, newest first.
func (s *PostStore) RecentEmbedded(ctx context.Context, since time.Time, limit int) ([]*models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE headline_embedding IS NOT NULL
		  AND is_latest_version
		  AND NOT is_retweet AND NOT is_reply AND NOT is_quote
		  AND tweet_created_at >= $1
		ORDER BY tweet_created_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent embedded posts: %w", err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
