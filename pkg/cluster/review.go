package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/llm"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// FunctionClusterReview is the function id recorded around review runs.
const FunctionClusterReview = "cluster-review"

const reviewPrompt = `You review a news story cluster for outliers. The cluster headline and its member posts are below.

Identify members that do NOT belong to this story: posts about a different event, pure commentary with no factual tie, or spam.

Respond with a JSON object: {"remove": ["post_id", ...]}
Return an empty array when every member belongs.`

type reviewDecision struct {
	Remove []string `json:"remove"`
}

// Reviewer prunes outlier members from one cluster at a time, driven by
// review events from sync.
type Reviewer struct {
	clusters   *store.ClusterStore
	runs       *store.RunStore
	recomputer *Recomputer
	client     llm.Client
	cfg        *config.ClusterConfig
}

// NewReviewer creates a reviewer over the configured chat client.
func NewReviewer(clusters *store.ClusterStore, runs *store.RunStore, recomputer *Recomputer, client llm.Client, cfg *config.ClusterConfig) *Reviewer {
	return &Reviewer{
		clusters:   clusters,
		runs:       runs,
		recomputer: recomputer,
		client:     client,
		cfg:        cfg,
	}
}

// HandleReview processes one cluster.review job.
func (r *Reviewer) HandleReview(ctx context.Context, job *models.Job) error {
	var payload events.ReviewPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decoding review payload: %w", err)
	}

	runID := r.runs.Start(ctx, FunctionClusterReview)
	details, err := r.reviewCluster(ctx, payload.ClusterID)
	if err != nil {
		r.runs.Finish(ctx, runID, models.RunStateFailed, details, err)
		return err
	}
	r.runs.Finish(ctx, runID, models.RunStateCompleted, details, nil)
	return nil
}

func (r *Reviewer) reviewCluster(ctx context.Context, clusterID int64) (map[string]any, error) {
	details := map[string]any{"cluster_id": clusterID}

	cluster, err := r.clusters.GetUnmerged(ctx, clusterID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyMerged) || errors.Is(err, store.ErrNotFound) {
			details["skipped"] = "gone_or_merged"
			return details, nil
		}
		return details, err
	}

	if cluster.ReviewedAt != nil && time.Since(*cluster.ReviewedAt) < r.cfg.ReviewCooldown {
		details["skipped"] = "cooldown"
		return details, nil
	}

	members, err := r.clusters.MemberPosts(ctx, clusterID, r.cfg.ReviewMaxMembers)
	if err != nil {
		return details, fmt.Errorf("loading members of cluster %d: %w", clusterID, err)
	}
	if len(members) < r.cfg.ReviewMinMembers {
		details["skipped"] = "too_small"
		return details, nil
	}

	removeIDs, err := r.askOutliers(ctx, cluster, members)
	if err != nil {
		return details, fmt.Errorf("review call for cluster %d: %w", clusterID, err)
	}

	if len(removeIDs) > 0 {
		removed, err := r.clusters.RemoveMembers(ctx, clusterID, removeIDs)
		if err != nil {
			return details, err
		}
		details["removed"] = removed
		if err := r.recomputer.Recompute(ctx, clusterID); err != nil {
			return details, err
		}
	} else {
		details["removed"] = 0
	}

	// Stamped even when nothing was removed, so the cooldown applies.
	if err := r.clusters.SetReviewedAt(ctx, clusterID, time.Now()); err != nil {
		return details, err
	}

	slog.Info("Cluster reviewed", "cluster_id", clusterID, "members", len(members), "removed", len(removeIDs))
	return details, nil
}

// askOutliers presents the cluster to the model and validates the returned
// ids against the actual membership.
func (r *Reviewer) askOutliers(ctx context.Context, cluster *models.Cluster, members []*models.Post) ([]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Cluster headline: %s\n\nMembers:\n", cluster.Headline())
	valid := make(map[string]bool, len(members))
	for _, p := range members {
		valid[p.TweetID] = true
		text := p.FullText
		if p.NormalizedHeadline != nil && *p.NormalizedHeadline != "" {
			text = *p.NormalizedHeadline
		}
		fmt.Fprintf(&b, "[%s] @%s: %s\n", p.TweetID, p.AuthorHandle, text)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.ReviewTimeout)
	defer cancel()

	response, err := r.client.Complete(callCtx, []llm.Message{
		llm.TextMessage(llm.RoleSystem, reviewPrompt),
		llm.TextMessage(llm.RoleUser, b.String()),
	}, llm.Options{JSONMode: true, MaxTokens: 1000, Temperature: 0})
	if err != nil {
		return nil, err
	}

	var decision reviewDecision
	if err := llm.ExtractJSON(response, &decision); err != nil {
		return nil, err
	}

	var remove []string
	for _, id := range decision.Remove {
		if valid[id] {
			remove = append(remove, id)
		} else {
			slog.Warn("Review returned unknown member id", "cluster_id", cluster.ID, "tweet_id", id)
		}
	}
	return remove, nil
}
