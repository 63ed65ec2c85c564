package eval

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/tideline/tideline/pkg/cluster"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
	"github.com/tideline/tideline/pkg/vectormath"
)

// ClusterHealth is one active cluster's diagnostic row.
type ClusterHealth struct {
	ClusterID   int64         `json:"cluster_id"`
	Headline    string        `json:"headline"`
	Size        int           `json:"size"`
	UniqueUsers int           `json:"unique_users"`
	Span        time.Duration `json:"span"`
	Cohesion    float64       `json:"cohesion"`
	LowCohesion bool          `json:"low_cohesion"`
	PromoSpam   bool          `json:"promo_spam"`
	LowInfo     bool          `json:"low_info"`
	IsCandidate bool          `json:"is_candidate"`
}

// DuplicateSuspect is a cluster pair whose headlines share enough tokens
// that curate would likely consider them.
type DuplicateSuspect struct {
	ClusterA     int64 `json:"cluster_a"`
	ClusterB     int64 `json:"cluster_b"`
	SharedTokens int   `json:"shared_tokens"`
}

// HealthReport is the cluster-health-check snapshot.
type HealthReport struct {
	Meta              Meta               `json:"meta"`
	CohesionFloor     float64            `json:"cohesion_floor"`
	ActiveClusters    int                `json:"active_clusters"`
	LowCohesionCount  int                `json:"low_cohesion_count"`
	Clusters          []ClusterHealth    `json:"clusters"`
	DuplicateSuspects []DuplicateSuspect `json:"duplicate_suspects"`
}

// HealthCheck inspects every active cluster: cohesion, filters, duplicate
// suspects.
type HealthCheck struct {
	clusters *store.ClusterStore
	filter   cluster.Filter
}

// NewHealthCheck creates the harness.
func NewHealthCheck(clusters *store.ClusterStore, filter cluster.Filter) *HealthCheck {
	return &HealthCheck{clusters: clusters, filter: filter}
}

// Run loads active clusters and builds the report.
func (e *HealthCheck) Run(ctx context.Context, meta Meta, cohesionFloor float64) (*HealthReport, error) {
	since := time.Now().Add(-time.Duration(meta.Hours) * time.Hour)
	active, err := e.clusters.ActiveUnmerged(ctx, since, meta.Limit)
	if err != nil {
		return nil, fmt.Errorf("loading active clusters: %w", err)
	}

	report := &HealthReport{
		Meta:           meta,
		CohesionFloor:  cohesionFloor,
		ActiveClusters: len(active),
	}

	for _, cl := range active {
		members, err := e.clusters.MemberPosts(ctx, cl.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("loading members of cluster %d: %w", cl.ID, err)
		}

		row := ClusterHealth{
			ClusterID:   cl.ID,
			Headline:    cl.Headline(),
			Size:        cl.TweetCount,
			UniqueUsers: cl.UniqueUserCount,
			Span:        cl.LastSeenAt.Sub(cl.FirstSeenAt),
			Cohesion:    meanPairwiseCosine(members),
			IsCandidate: cl.IsStoryCandidate,
		}
		row.LowCohesion = row.Cohesion < cohesionFloor

		content := cluster.Content{Headline: row.Headline, Facts: cl.NormalizedFacts}
		for _, p := range members {
			content.MemberTexts = append(content.MemberTexts, p.FullText)
			content.AuthorHandles = append(content.AuthorHandles, p.AuthorHandle)
		}
		row.PromoSpam = e.filter.IsPromoSpam(content)
		row.LowInfo = e.filter.IsLowInformation(content)

		if row.LowCohesion {
			report.LowCohesionCount++
		}
		report.Clusters = append(report.Clusters, row)
	}

	report.DuplicateSuspects = duplicateSuspects(active)
	sort.SliceStable(report.Clusters, func(i, j int) bool {
		return report.Clusters[i].Cohesion < report.Clusters[j].Cohesion
	})
	return report, nil
}

// Render prints the per-cluster table and the duplicate suspects.
func (r *HealthReport) Render(w io.Writer) {
	fmt.Fprintf(w, "active=%d low_cohesion=%d (floor=%.2f)\n\n",
		r.ActiveClusters, r.LowCohesionCount, r.CohesionFloor)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "cluster\tsize\tusers\tcohesion\tpromo\tlowinfo\tcandidate\theadline\n")
	for _, c := range r.Clusters {
		headline := c.Headline
		if len(headline) > 50 {
			headline = headline[:50] + "..."
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.3f\t%v\t%v\t%v\t%s\n",
			c.ClusterID, c.Size, c.UniqueUsers, c.Cohesion,
			c.PromoSpam, c.LowInfo, c.IsCandidate, headline)
	}
	tw.Flush()

	if len(r.DuplicateSuspects) > 0 {
		fmt.Fprintf(w, "\nduplicate suspects:\n")
		for _, d := range r.DuplicateSuspects {
			fmt.Fprintf(w, "  %d <-> %d (%d shared tokens)\n", d.ClusterA, d.ClusterB, d.SharedTokens)
		}
	}
}

// meanPairwiseCosine averages cosine over all embedding pairs; clusters
// with fewer than two embedded members score 1 (trivially cohesive).
func meanPairwiseCosine(members []*models.Post) float64 {
	var vectors [][]float32
	for _, p := range members {
		if len(p.HeadlineEmbedding) > 0 {
			vectors = append(vectors, p.HeadlineEmbedding)
		}
	}
	if len(vectors) < 2 {
		return 1
	}

	sum, pairs := 0.0, 0
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sum += vectormath.Cosine(vectors[i], vectors[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// duplicateSuspects flags cluster pairs sharing at least two headline
// tokens, the same linkage curate uses to shortlist candidates.
func duplicateSuspects(clusters []*models.Cluster) []DuplicateSuspect {
	tokens := make([]map[string]bool, len(clusters))
	for i, cl := range clusters {
		set := make(map[string]bool)
		for _, tok := range cluster.Tokenize(cl.Headline()) {
			set[tok] = true
		}
		tokens[i] = set
	}

	var out []DuplicateSuspect
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			shared := 0
			for tok := range tokens[i] {
				if tokens[j][tok] {
					shared++
				}
			}
			if shared >= 2 {
				out = append(out, DuplicateSuspect{
					ClusterA:     clusters[i].ID,
					ClusterB:     clusters[j].ID,
					SharedTokens: shared,
				})
			}
		}
	}
	return out
}
