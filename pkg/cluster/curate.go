package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/llm"
	"github.com/tideline/tideline/pkg/metrics"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// FunctionClusterCurate is the function id recorded around curate runs.
const FunctionClusterCurate = "cluster-curate"

const curatePrompt = `You deduplicate news story clusters. Each cluster below has an id, a headline, and up to three facts.

Identify groups of clusters that describe the SAME SPECIFIC EVENT. Be conservative: similar topics, different jurisdictions, or different time periods are NOT the same event. Only merge when the underlying development is identical.

Respond with a JSON object:
{"merge_groups": [{"cluster_ids": [int, ...], "reason": string}, ...]}

Return an empty merge_groups array when nothing should merge.`

// mergeDecision is the JSON shape the curation call returns.
type mergeDecision struct {
	MergeGroups []struct {
		ClusterIDs []int64 `json:"cluster_ids"`
		Reason     string  `json:"reason"`
	} `json:"merge_groups"`
}

// Curator consolidates separate clusters that describe the same event.
type Curator struct {
	clusters   *store.ClusterStore
	runs       *store.RunStore
	recomputer *Recomputer
	client     llm.Client
	cfg        *config.ClusterConfig
}

// NewCurator creates a curator over the configured chat client.
func NewCurator(clusters *store.ClusterStore, runs *store.RunStore, recomputer *Recomputer, client llm.Client, cfg *config.ClusterConfig) *Curator {
	return &Curator{
		clusters:   clusters,
		runs:       runs,
		recomputer: recomputer,
		client:     client,
		cfg:        cfg,
	}
}

// HandleCurate processes one cluster.curate job.
func (c *Curator) HandleCurate(ctx context.Context, _ *models.Job) error {
	runID := c.runs.Start(ctx, FunctionClusterCurate)
	details, err := c.run(ctx)
	if err != nil {
		c.runs.Finish(ctx, runID, models.RunStateFailed, details, err)
		return err
	}
	c.runs.Finish(ctx, runID, models.RunStateCompleted, details, nil)
	return nil
}

func (c *Curator) run(ctx context.Context) (map[string]any, error) {
	since := time.Now().Add(-c.cfg.CurateLookback)
	clusters, err := c.clusters.ActiveUnmerged(ctx, since, c.cfg.CurateMaxClusters)
	if err != nil {
		return nil, fmt.Errorf("loading active clusters: %w", err)
	}

	details := map[string]any{"clusters": len(clusters)}
	if len(clusters) < 2 {
		details["merged"] = 0
		return details, nil
	}

	groups := candidateGroups(clusters, c.cfg.CurateDirectGroupLimit)
	details["candidate_groups"] = len(groups)

	merged := 0
	for _, batch := range batchGroups(groups, c.cfg.CurateBatchChars) {
		decision, err := c.askMerges(ctx, batch)
		if err != nil {
			slog.Warn("Curation batch failed", "error", err)
			continue
		}
		for _, group := range decision.MergeGroups {
			n, err := c.executeMerge(ctx, group.ClusterIDs, group.Reason)
			if err != nil {
				slog.Warn("Merge execution failed", "cluster_ids", group.ClusterIDs, "error", err)
				continue
			}
			merged += n
		}
	}

	details["merged"] = merged
	slog.Info("Cluster curation completed", "clusters", len(clusters), "merged", merged)
	return details, nil
}

// candidateGroups builds duplicate-candidate groups. Small active sets go
// to the LLM as one group; larger sets are narrowed by a token inverted
// index: clusters sharing ≥2 headline tokens are linked, and the connected
// components of that graph become the groups.
func candidateGroups(clusters []*models.Cluster, directLimit int) [][]*models.Cluster {
	if len(clusters) <= directLimit {
		return [][]*models.Cluster{clusters}
	}

	tokens := make([][]string, len(clusters))
	index := make(map[string][]int)
	for i, cl := range clusters {
		tokens[i] = Tokenize(cl.Headline())
		for _, tok := range tokens[i] {
			index[tok] = append(index[tok], i)
		}
	}

	shared := make(map[[2]int]int)
	for _, members := range index {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				shared[[2]int{members[i], members[j]}]++
			}
		}
	}

	uf := newUnionFind(len(clusters))
	for pair, count := range shared {
		if count >= 2 {
			uf.union(pair[0], pair[1])
		}
	}

	var groups [][]*models.Cluster
	for _, component := range uf.groups() {
		if len(component) < 2 {
			continue
		}
		group := make([]*models.Cluster, 0, len(component))
		for _, idx := range component {
			group = append(group, clusters[idx])
		}
		groups = append(groups, group)
	}
	return groups
}

// batchGroups packs candidate groups into LLM calls targeting the
// configured character budget per call. A group never splits across
// batches.
func batchGroups(groups [][]*models.Cluster, charBudget int) [][]*models.Cluster {
	var batches [][]*models.Cluster
	var current []*models.Cluster
	currentChars := 0

	for _, group := range groups {
		chars := 0
		for _, cl := range group {
			chars += len(clusterDigest(cl))
		}
		if currentChars > 0 && currentChars+chars > charBudget {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}
		current = append(current, group...)
		currentChars += chars
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

// clusterDigest renders one cluster for the curation prompt: headline plus
// up to three facts.
func clusterDigest(cl *models.Cluster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cluster %d: %s\n", cl.ID, cl.Headline())
	for i, fact := range cl.NormalizedFacts {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, "  - %s\n", fact)
	}
	return b.String()
}

func (c *Curator) askMerges(ctx context.Context, batch []*models.Cluster) (*mergeDecision, error) {
	var b strings.Builder
	for _, cl := range batch {
		b.WriteString(clusterDigest(cl))
		b.WriteString("\n")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CurateTimeout)
	defer cancel()

	response, err := c.client.Complete(callCtx, []llm.Message{
		llm.TextMessage(llm.RoleSystem, curatePrompt),
		llm.TextMessage(llm.RoleUser, b.String()),
	}, llm.Options{JSONMode: true, MaxTokens: 2000, Temperature: 0})
	if err != nil {
		return nil, err
	}

	var decision mergeDecision
	if err := llm.ExtractJSON(response, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// executeMerge merges one returned group: the clusters are re-read under
// the unmerged guard, at least two must survive, and the target is the
// largest by tweet count (earlier first_seen_at, then lower id, on ties).
// Returns the number of source clusters merged away.
func (c *Curator) executeMerge(ctx context.Context, clusterIDs []int64, reason string) (int, error) {
	var survivors []*models.Cluster
	for _, id := range clusterIDs {
		cl, err := c.clusters.GetUnmerged(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyMerged) || errors.Is(err, store.ErrNotFound) {
				continue
			}
			return 0, err
		}
		survivors = append(survivors, cl)
	}
	if len(survivors) < 2 {
		return 0, nil
	}

	target := pickMergeTarget(survivors)
	merged := 0
	for _, source := range survivors {
		if source.ID == target.ID {
			continue
		}
		// Move before marking: an interrupted merge leaves an emptied but
		// still-unmerged source that the next pass can finish, whereas a
		// marked source with members left behind would strand them.
		if _, err := c.clusters.MoveMembers(ctx, source.ID, target.ID); err != nil {
			return merged, err
		}
		ok, err := c.clusters.MarkMerged(ctx, source.ID, target.ID)
		if err != nil {
			return merged, err
		}
		if !ok {
			// Lost the mark to a concurrent writer; the merge record
			// belongs to whoever won.
			continue
		}
		if err := c.clusters.AppendMerge(ctx, source.ID, target.ID, reason); err != nil {
			return merged, err
		}
		metrics.ObserveMerge(FunctionClusterCurate)
		merged++
	}

	if merged > 0 {
		if err := c.recomputer.Recompute(ctx, target.ID); err != nil {
			return merged, err
		}
	}
	return merged, nil
}

// pickMergeTarget selects the merge survivor: max tweet count, then
// earliest first_seen_at, then lowest id.
func pickMergeTarget(clusters []*models.Cluster) *models.Cluster {
	target := clusters[0]
	for _, cl := range clusters[1:] {
		switch {
		case cl.TweetCount > target.TweetCount:
			target = cl
		case cl.TweetCount == target.TweetCount && cl.FirstSeenAt.Before(target.FirstSeenAt):
			target = cl
		case cl.TweetCount == target.TweetCount && cl.FirstSeenAt.Equal(target.FirstSeenAt) && cl.ID < target.ID:
			target = cl
		}
	}
	return target
}
