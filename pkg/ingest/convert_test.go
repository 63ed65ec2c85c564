package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideline/tideline/pkg/source"
)

var skipHosts = []string{"x.com", "twitter.com", "t.co", "youtube.com", "youtu.be", "vimeo.com", "twitch.tv"}

func tweetFromJSON(t *testing.T, raw string) *source.Tweet {
	t.Helper()
	var tw source.Tweet
	require.NoError(t, json.Unmarshal([]byte(raw), &tw))
	tw.RawJSON = []byte(raw)
	return &tw
}

func TestToPost(t *testing.T) {
	tw := tweetFromJSON(t, `{
		"id": "42",
		"text": "BREAKING: rates unchanged",
		"createdAt": "Tue Dec 10 07:00:30 +0000 2024",
		"author": {"userName": "newsdesk"},
		"viewCount": 1000,
		"likeCount": 10,
		"retweetCount": 5,
		"quoteCount": 2,
		"bookmarkCount": 1,
		"replyCount": 3,
		"quoted_tweet": {"id": "41", "text": "earlier report"}
	}`)

	p, err := toPost(tw)
	require.NoError(t, err)
	assert.Equal(t, "42", p.TweetID)
	assert.Equal(t, "42", p.CanonicalTweetID)
	assert.True(t, p.IsLatestVersion)
	assert.Equal(t, "newsdesk", p.AuthorHandle)
	assert.Equal(t, 1000, p.ImpressionCount)
	assert.True(t, p.IsQuote)
	require.NotNil(t, p.QuotedText)
	assert.Equal(t, "earlier report", *p.QuotedText)
	assert.NotEmpty(t, p.RawPayload)
	assert.InDelta(t, 10+2*5+1.5*2+3+0.2*1, p.Engagement(), 1e-9)
}

func TestToPostBadTimestamp(t *testing.T) {
	tw := tweetFromJSON(t, `{"id": "1", "createdAt": "not a time"}`)
	_, err := toPost(tw)
	assert.Error(t, err)
}

func TestExtractURLsSkipsHosts(t *testing.T) {
	tw := tweetFromJSON(t, `{
		"id": "1",
		"entities": {"urls": [
			{"expanded_url": "https://example.com/story"},
			{"expanded_url": "https://x.com/user/status/1"},
			{"expanded_url": "https://www.youtube.com/watch?v=abc"},
			{"expanded_url": "https://t.co/xyz"},
			{"expanded_url": "https://example.com/story"},
			{"expanded_url": "https://sub.vimeo.com/123"}
		]}
	}`)

	urls := extractURLs(tw, skipHosts)
	assert.Equal(t, []string{"https://example.com/story"}, urls)
}

func TestExtractImagesPhotosOnly(t *testing.T) {
	tw := tweetFromJSON(t, `{
		"id": "1",
		"extendedEntities": {"media": [
			{"type": "photo", "media_url_https": "https://img.example.com/a.jpg"},
			{"type": "video", "media_url_https": "https://img.example.com/v.jpg"},
			{"type": "photo", "media_url_https": "https://img.example.com/a.jpg"}
		]}
	}`)

	assert.Equal(t, []string{"https://img.example.com/a.jpg"}, extractImages(tw))
}

func TestExtractVideosBuckets(t *testing.T) {
	tw := tweetFromJSON(t, `{
		"id": "9",
		"extendedEntities": {"media": [{
			"type": "video",
			"media_url_https": "https://img.example.com/v.jpg",
			"video_info": {
				"duration_millis": 30000,
				"variants": [
					{"bitrate": 632000, "content_type": "video/mp4", "url": "https://v.example.com/low.mp4"},
					{"bitrate": 2176000, "content_type": "video/mp4", "url": "https://v.example.com/mid.mp4"},
					{"bitrate": 10368000, "content_type": "video/mp4", "url": "https://v.example.com/high.mp4"},
					{"bitrate": 0, "content_type": "application/x-mpegURL", "url": "https://v.example.com/playlist.m3u8"}
				]
			}
		}]}
	}`)

	videos := extractVideos(tw)
	require.Len(t, videos, 3)
	assert.Equal(t, "<=480p", *videos[0].ResolutionBucket)
	assert.Equal(t, "720p", *videos[1].ResolutionBucket)
	assert.Equal(t, ">=1080p", *videos[2].ResolutionBucket)
	assert.Equal(t, 30000, *videos[0].DurationMS)
}

func TestBatchHandles(t *testing.T) {
	queries := batchHandles([]string{"a", "b", "c", "@d", "e"}, 2)
	require.Len(t, queries, 3)
	assert.Equal(t, "from:a OR from:b", queries[0])
	assert.Equal(t, "from:c OR from:d", queries[1])
	assert.Equal(t, "from:e", queries[2])
}

func TestKeywordQuery(t *testing.T) {
	assert.Equal(t, `breaking OR "rate cut" OR fed`, keywordQuery([]string{"breaking", "rate cut", " fed ", ""}))
	assert.Empty(t, keywordQuery(nil))
}
