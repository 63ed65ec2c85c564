package eval

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/tideline/tideline/pkg/cluster"
	"github.com/tideline/tideline/pkg/store"
)

// StabilityReport compares the lexical clusterer's groups against the
// persistent assignments over the same posts, pairwise.
type StabilityReport struct {
	Meta             Meta    `json:"meta"`
	JaccardThreshold float64 `json:"jaccard_threshold"`
	Posts            int     `json:"posts"`
	LexicalClusters  int     `json:"lexical_clusters"`
	StoredClusters   int     `json:"stored_clusters"`
	PairsLexical     int     `json:"pairs_lexical"`
	PairsStored      int     `json:"pairs_stored"`
	PairsAgreed      int     `json:"pairs_agreed"`
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	F1               float64 `json:"f1"`
}

// StabilityEval runs the lexical strategy over recent normalized posts and
// scores it against the stored assignments.
type StabilityEval struct {
	posts    *store.PostStore
	clusters *store.ClusterStore
}

// NewStabilityEval creates the harness.
func NewStabilityEval(posts *store.PostStore, clusters *store.ClusterStore) *StabilityEval {
	return &StabilityEval{posts: posts, clusters: clusters}
}

// Run loads the window, clusters it lexically, and builds the report.
func (e *StabilityEval) Run(ctx context.Context, meta Meta, jaccardThreshold float64, minSize int) (*StabilityReport, error) {
	since := time.Now().Add(-time.Duration(meta.Hours) * time.Hour)
	posts, err := e.posts.RecentNormalized(ctx, since, meta.Limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent posts: %w", err)
	}

	groups := cluster.LexicalClusters(posts, jaccardThreshold, minSize)

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.TweetID)
	}
	assignments, err := e.clusters.AssignmentsFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading stored assignments: %w", err)
	}

	report := &StabilityReport{
		Meta:             meta,
		JaccardThreshold: jaccardThreshold,
		Posts:            len(posts),
		LexicalClusters:  len(groups),
		StoredClusters:   distinctClusters(assignments),
	}
	report.PairsLexical, report.PairsStored, report.PairsAgreed = countPairs(groups, assignments)

	if report.PairsLexical > 0 {
		report.Precision = float64(report.PairsAgreed) / float64(report.PairsLexical)
	}
	if report.PairsStored > 0 {
		report.Recall = float64(report.PairsAgreed) / float64(report.PairsStored)
	}
	if report.Precision+report.Recall > 0 {
		report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
	}
	return report, nil
}

// Render prints the comparison table.
func (r *StabilityReport) Render(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "metric\tvalue\n")
	fmt.Fprintf(tw, "posts\t%d\n", r.Posts)
	fmt.Fprintf(tw, "lexical clusters\t%d\n", r.LexicalClusters)
	fmt.Fprintf(tw, "stored clusters\t%d\n", r.StoredClusters)
	fmt.Fprintf(tw, "pairs (lexical)\t%d\n", r.PairsLexical)
	fmt.Fprintf(tw, "pairs (stored)\t%d\n", r.PairsStored)
	fmt.Fprintf(tw, "pairs agreed\t%d\n", r.PairsAgreed)
	fmt.Fprintf(tw, "precision\t%.3f\n", r.Precision)
	fmt.Fprintf(tw, "recall\t%.3f\n", r.Recall)
	fmt.Fprintf(tw, "f1\t%.3f\n", r.F1)
	tw.Flush()
}

func distinctClusters(assignments map[string]int64) int {
	seen := make(map[int64]bool)
	for _, id := range assignments {
		seen[id] = true
	}
	return len(seen)
}

// countPairs scores the two clusterings on co-membership pairs: a pair is
// agreed when both strategies place its posts together.
func countPairs(groups []cluster.Group, assignments map[string]int64) (lexical, stored, agreed int) {
	lexPartner := make(map[[2]string]bool)
	for _, g := range groups {
		for i := 0; i < len(g.TweetIDs); i++ {
			for j := i + 1; j < len(g.TweetIDs); j++ {
				lexical++
				lexPartner[pairKey(g.TweetIDs[i], g.TweetIDs[j])] = true
			}
		}
	}

	byCluster := make(map[int64][]string)
	for id, clusterID := range assignments {
		byCluster[clusterID] = append(byCluster[clusterID], id)
	}
	for _, members := range byCluster {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				stored++
				if lexPartner[pairKey(members[i], members[j])] {
					agreed++
				}
			}
		}
	}
	return lexical, stored, agreed
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}
