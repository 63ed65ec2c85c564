package cluster

import (
	"time"

	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/vectormath"
)

// Group is one in-process clustering result: the member tweet ids of a
// connected component, in input order.
type Group struct {
	TweetIDs []string
	Earliest time.Time
	Latest   time.Time
}

// LexicalClusters groups posts whose normalized-headline token sets reach
// the Jaccard threshold, by transitive closure. Posts without a headline
// are skipped. This is the offline strategy the stability eval compares
// against the persistent assignments; production sync never calls it.
func LexicalClusters(posts []*models.Post, jaccardThreshold float64, minSize int) []Group {
	kept := make([]*models.Post, 0, len(posts))
	tokens := make([][]string, 0, len(posts))
	for _, p := range posts {
		if p.NormalizedHeadline == nil || *p.NormalizedHeadline == "" {
			continue
		}
		toks := Tokenize(*p.NormalizedHeadline)
		if len(toks) == 0 {
			continue
		}
		kept = append(kept, p)
		tokens = append(tokens, toks)
	}

	uf := newUnionFind(len(kept))
	for i := 0; i < len(kept); i++ {
		for j := i + 1; j < len(kept); j++ {
			if score, _ := jaccard(tokens[i], tokens[j]); score >= jaccardThreshold {
				uf.union(i, j)
			}
		}
	}
	return collectGroups(kept, uf, minSize, 0)
}

// EmbeddingClusters groups posts whose embeddings reach the cosine
// threshold, by transitive closure, mirroring the stored procedure in
// process. Components whose time span exceeds maxDaysWindow are dropped,
// matching the procedure's window rule.
func EmbeddingClusters(posts []*models.Post, similarityThreshold float64, minSize, maxDaysWindow int) []Group {
	kept := make([]*models.Post, 0, len(posts))
	for _, p := range posts {
		if len(p.HeadlineEmbedding) > 0 {
			kept = append(kept, p)
		}
	}

	uf := newUnionFind(len(kept))
	for i := 0; i < len(kept); i++ {
		for j := i + 1; j < len(kept); j++ {
			if vectormath.Cosine(kept[i].HeadlineEmbedding, kept[j].HeadlineEmbedding) >= similarityThreshold {
				uf.union(i, j)
			}
		}
	}

	maxSpan := time.Duration(maxDaysWindow) * 24 * time.Hour
	return collectGroups(kept, uf, minSize, maxSpan)
}

// collectGroups materializes union-find components of at least minSize,
// dropping components whose span exceeds maxSpan when maxSpan > 0.
func collectGroups(posts []*models.Post, uf *unionFind, minSize int, maxSpan time.Duration) []Group {
	var out []Group
	for _, component := range uf.groups() {
		if len(component) < minSize {
			continue
		}
		g := Group{
			Earliest: posts[component[0]].TweetCreatedAt,
			Latest:   posts[component[0]].TweetCreatedAt,
		}
		for _, idx := range component {
			p := posts[idx]
			g.TweetIDs = append(g.TweetIDs, p.TweetID)
			if p.TweetCreatedAt.Before(g.Earliest) {
				g.Earliest = p.TweetCreatedAt
			}
			if p.TweetCreatedAt.After(g.Latest) {
				g.Latest = p.TweetCreatedAt
			}
		}
		if maxSpan > 0 && g.Latest.Sub(g.Earliest) > maxSpan {
			continue
		}
		out = append(out, g)
	}
	return out
}
