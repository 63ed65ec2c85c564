package ingest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/source"
)

// toPost converts one search result into a post row. New arrivals are the
// latest version of themselves; edit chains are reconciled later if the
// provider redelivers an edited form.
func toPost(t *source.Tweet) (*models.Post, error) {
	createdAt, err := t.ParsedCreatedAt()
	if err != nil {
		return nil, err
	}

	p := &models.Post{
		TweetID:          t.ID,
		CanonicalTweetID: t.ID,
		IsLatestVersion:  true,
		AuthorHandle:     t.Author.UserName,
		TweetCreatedAt:   createdAt,
		FullText:         t.Text,
		ImpressionCount:  t.ViewCount,
		LikeCount:        t.LikeCount,
		RetweetCount:     t.RetweetCount,
		QuoteCount:       t.QuoteCount,
		BookmarkCount:    t.BookmarkCount,
		ReplyCount:       t.ReplyCount,
		IsRetweet:        t.IsRetweet(),
		IsReply:          t.IsReply,
		IsQuote:          t.IsQuote(),
		RawPayload:       t.RawJSON,
	}
	if q := t.QuotedText(); q != "" {
		p.QuotedText = &q
	}
	return p, nil
}

// extractURLs returns the tweet's expanded URLs minus skip-listed hosts,
// deduplicated in order.
func extractURLs(t *source.Tweet, skipHosts []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, u := range t.Entities.URLs {
		raw := u.ExpandedURL
		if raw == "" || seen[raw] || skippedHost(raw, skipHosts) {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	return out
}

// skippedHost reports whether the URL's host matches a skip entry exactly
// or as a subdomain.
func skippedHost(raw string, skipHosts []string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	for _, skip := range skipHosts {
		if host == skip || strings.HasSuffix(host, "."+skip) {
			return true
		}
	}
	return false
}

// extractImages returns photo attachment URLs, deduplicated in order.
func extractImages(t *source.Tweet) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range t.ExtendedEntities.Media {
		if m.Type != "photo" || m.MediaURLHTTPS == "" || seen[m.MediaURLHTTPS] {
			continue
		}
		seen[m.MediaURLHTTPS] = true
		out = append(out, m.MediaURLHTTPS)
	}
	return out
}

// extractVideos returns video variant rows bucketed by resolution.
func extractVideos(t *source.Tweet) []models.PostVideo {
	var out []models.PostVideo
	for _, m := range t.ExtendedEntities.Media {
		if m.VideoInfo == nil {
			continue
		}
		for _, v := range m.VideoInfo.Variants {
			if v.URL == "" || !strings.HasPrefix(v.ContentType, "video/") {
				continue
			}
			bitrate := v.Bitrate
			bucket := models.BucketResolution(bitrate)
			duration := m.VideoInfo.DurationMillis
			out = append(out, models.PostVideo{
				PostID:           t.ID,
				VariantURL:       v.URL,
				Bitrate:          &bitrate,
				ResolutionBucket: &bucket,
				DurationMS:       &duration,
			})
		}
	}
	return out
}

// batchHandles splits the watch list into fixed-size batches and renders
// each as a from: union query.
func batchHandles(handles []string, batchSize int) []string {
	if batchSize <= 0 {
		batchSize = len(handles)
	}
	var queries []string
	for start := 0; start < len(handles); start += batchSize {
		end := start + batchSize
		if end > len(handles) {
			end = len(handles)
		}
		parts := make([]string, 0, end-start)
		for _, h := range handles[start:end] {
			parts = append(parts, fmt.Sprintf("from:%s", strings.TrimPrefix(h, "@")))
		}
		queries = append(queries, strings.Join(parts, " OR "))
	}
	return queries
}

// keywordQuery joins the keyword list into one OR query.
func keywordQuery(keywords []string) string {
	quoted := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.Contains(k, " ") {
			k = `"` + k + `"`
		}
		quoted = append(quoted, k)
	}
	return strings.Join(quoted, " OR ")
}
