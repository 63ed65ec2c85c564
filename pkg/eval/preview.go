package eval

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tideline/tideline/pkg/cluster"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// PreviewStory is one would-be story from the in-process embedding
// clusterer.
type PreviewStory struct {
	Size            int       `json:"size"`
	UniqueUsers     int       `json:"unique_users"`
	Earliest        time.Time `json:"earliest"`
	Latest          time.Time `json:"latest"`
	SampleHeadline  string    `json:"sample_headline"`
	SampleTweetIDs  []string  `json:"sample_tweet_ids"`
	MeetsThresholds bool      `json:"meets_thresholds"`
}

// PreviewReport is the embedding-story-preview snapshot.
type PreviewReport struct {
	Meta                Meta           `json:"meta"`
	SimilarityThreshold float64        `json:"similarity_threshold"`
	MinClusterSize      int            `json:"min_cluster_size"`
	MaxDaysWindow       int            `json:"max_days_window"`
	Posts               int            `json:"posts"`
	Clusters            int            `json:"clusters"`
	StoryCandidates     int            `json:"story_candidates"`
	Stories             []PreviewStory `json:"stories"`
}

// StoryPreview clusters recent embeddings in process and shows what the
// stored procedure would surface under the given thresholds.
type StoryPreview struct {
	posts     *store.PostStore
	minTweets int
	minUsers  int
}

// NewStoryPreview creates the harness. minTweets and minUsers are the
// story-candidacy floors used to flag would-be candidates.
func NewStoryPreview(posts *store.PostStore, minTweets, minUsers int) *StoryPreview {
	return &StoryPreview{posts: posts, minTweets: minTweets, minUsers: minUsers}
}

// Run loads the window, clusters it, and builds the report.
func (e *StoryPreview) Run(ctx context.Context, meta Meta, similarityThreshold float64, minSize, maxDaysWindow int) (*PreviewReport, error) {
	since := time.Now().Add(-time.Duration(meta.Hours) * time.Hour)
	posts, err := e.posts.RecentEmbedded(ctx, since, meta.Limit)
	if err != nil {
		return nil, fmt.Errorf("loading embedded posts: %w", err)
	}

	byID := make(map[string]*models.Post, len(posts))
	for _, p := range posts {
		byID[p.TweetID] = p
	}

	groups := cluster.EmbeddingClusters(posts, similarityThreshold, minSize, maxDaysWindow)

	report := &PreviewReport{
		Meta:                meta,
		SimilarityThreshold: similarityThreshold,
		MinClusterSize:      minSize,
		MaxDaysWindow:       maxDaysWindow,
		Posts:               len(posts),
		Clusters:            len(groups),
	}

	for _, g := range groups {
		story := PreviewStory{
			Size:     len(g.TweetIDs),
			Earliest: g.Earliest,
			Latest:   g.Latest,
		}
		users := make(map[string]bool)
		for _, id := range g.TweetIDs {
			p := byID[id]
			users[strings.ToLower(p.AuthorHandle)] = true
			if story.SampleHeadline == "" && p.NormalizedHeadline != nil {
				story.SampleHeadline = *p.NormalizedHeadline
			}
		}
		story.UniqueUsers = len(users)
		story.SampleTweetIDs = g.TweetIDs
		if len(story.SampleTweetIDs) > 5 {
			story.SampleTweetIDs = story.SampleTweetIDs[:5]
		}
		story.MeetsThresholds = story.Size >= e.minTweets && story.UniqueUsers >= e.minUsers
		if story.MeetsThresholds {
			report.StoryCandidates++
		}
		report.Stories = append(report.Stories, story)
	}

	sort.SliceStable(report.Stories, func(i, j int) bool {
		return report.Stories[i].Size > report.Stories[j].Size
	})
	return report, nil
}

// Render prints the would-be stories table.
func (r *PreviewReport) Render(w io.Writer) {
	fmt.Fprintf(w, "posts=%d clusters=%d story_candidates=%d (threshold=%.2f min_size=%d window=%dd)\n\n",
		r.Posts, r.Clusters, r.StoryCandidates, r.SimilarityThreshold, r.MinClusterSize, r.MaxDaysWindow)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "size\tusers\tcandidate\tspan\theadline\n")
	for _, s := range r.Stories {
		headline := s.SampleHeadline
		if len(headline) > 60 {
			headline = headline[:60] + "..."
		}
		fmt.Fprintf(tw, "%d\t%d\t%v\t%s\t%s\n",
			s.Size, s.UniqueUsers, s.MeetsThresholds,
			s.Latest.Sub(s.Earliest).Round(time.Minute), headline)
	}
	tw.Flush()
}
