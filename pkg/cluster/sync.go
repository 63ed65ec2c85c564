package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tideline/tideline/pkg/config"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/metrics"
	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/store"
)

// FunctionClusterSync is the function id recorded around sync runs.
const FunctionClusterSync = "cluster-sync"

// Syncer reconciles the window's embedding components with the persistent
// cluster store. The queue runs it single-flight; two concurrent syncs
// would race on membership assignment.
type Syncer struct {
	clusters   *store.ClusterStore
	runs       *store.RunStore
	recomputer *Recomputer
	emitter    *events.Emitter
	cfg        *config.ClusterConfig
}

// NewSyncer creates a syncer.
func NewSyncer(clusters *store.ClusterStore, runs *store.RunStore, recomputer *Recomputer, emitter *events.Emitter, cfg *config.ClusterConfig) *Syncer {
	return &Syncer{
		clusters:   clusters,
		runs:       runs,
		recomputer: recomputer,
		emitter:    emitter,
		cfg:        cfg,
	}
}

// HandleSync processes one cluster.sync job.
func (s *Syncer) HandleSync(ctx context.Context, _ *models.Job) error {
	runID := s.runs.Start(ctx, FunctionClusterSync)
	details, err := s.run(ctx)
	if err != nil {
		s.runs.Finish(ctx, runID, models.RunStateFailed, details, err)
		return err
	}
	s.runs.Finish(ctx, runID, models.RunStateCompleted, details, nil)
	return nil
}

func (s *Syncer) run(ctx context.Context) (map[string]any, error) {
	since := time.Now().Add(-s.cfg.SyncLookback)

	components, err := s.clusters.ClusterByEmbedding(ctx, since,
		s.cfg.SimilarityThreshold, s.cfg.MinClusterSize, s.cfg.MaxDaysWindow)
	if err != nil {
		return nil, fmt.Errorf("clustering window: %w", err)
	}

	details := map[string]any{"components": len(components)}
	touched := make(map[int64]bool)
	var reviewIDs []int64
	created, updated := 0, 0

	for _, component := range components {
		assignments, err := s.clusters.AssignmentsFor(ctx, component.TweetIDs)
		if err != nil {
			return details, fmt.Errorf("loading assignments for component %d: %w", component.Key, err)
		}

		targetID, isUpdate, err := s.matchComponent(ctx, component.TweetIDs, assignments, since)
		if err != nil {
			return details, err
		}

		if isUpdate {
			added, err := s.applyUpdate(ctx, targetID, component.TweetIDs, since)
			if err != nil {
				return details, fmt.Errorf("updating cluster %d: %w", targetID, err)
			}
			updated++
			touched[targetID] = true
			if added >= s.cfg.ReviewMinNewMembers {
				reviewIDs = append(reviewIDs, targetID)
			}
			continue
		}

		newID, err := s.clusters.Create(ctx, component.Earliest, component.Latest)
		if err != nil {
			return details, fmt.Errorf("creating cluster for component %d: %w", component.Key, err)
		}
		if _, err := s.clusters.AddMembersIfUnassigned(ctx, newID, component.TweetIDs); err != nil {
			return details, fmt.Errorf("assigning members to cluster %d: %w", newID, err)
		}
		created++
		touched[newID] = true
		reviewIDs = append(reviewIDs, newID)
	}

	for clusterID := range touched {
		if err := s.recomputer.Recompute(ctx, clusterID); err != nil {
			return details, fmt.Errorf("recomputing cluster %d: %w", clusterID, err)
		}
	}

	deactivated, err := s.clusters.DeactivateStale(ctx, time.Now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return details, fmt.Errorf("deactivating stale clusters: %w", err)
	}

	for _, clusterID := range reviewIDs {
		if err := s.emitter.EmitReview(ctx, clusterID); err != nil {
			slog.Warn("Emitting review failed", "cluster_id", clusterID, "error", err)
		}
	}

	details["created"] = created
	details["updated"] = updated
	details["deactivated"] = deactivated
	details["reviews_emitted"] = len(reviewIDs)
	metrics.AddSyncActions(created, updated, deactivated)
	slog.Info("Cluster sync completed",
		"components", len(components), "created", created,
		"updated", updated, "deactivated", deactivated)
	return details, nil
}

// matchComponent decides update-vs-create: the plurality cluster must also
// clear the Jaccard and intersection floors over its window-scoped members.
func (s *Syncer) matchComponent(ctx context.Context, tweetIDs []string, assignments map[string]int64, since time.Time) (int64, bool, error) {
	best, ok := pluralityVote(tweetIDs, assignments)
	if !ok {
		return 0, false, nil
	}

	windowMembers, err := s.clusters.WindowMembers(ctx, best, since)
	if err != nil {
		return 0, false, fmt.Errorf("loading window members of cluster %d: %w", best, err)
	}

	score, intersection := jaccard(tweetIDs, windowMembers)
	if score >= s.cfg.MatchJaccardThreshold && intersection >= s.cfg.MinIntersection {
		return best, true, nil
	}
	return 0, false, nil
}

// applyUpdate reconciles the target's window-scoped membership with the
// component: window members absent from the component are removed, and
// component posts not yet assigned anywhere are added. Posts already in a
// different cluster keep their prior assignment. Returns how many members
// were added.
func (s *Syncer) applyUpdate(ctx context.Context, targetID int64, tweetIDs []string, since time.Time) (int, error) {
	windowMembers, err := s.clusters.WindowMembers(ctx, targetID, since)
	if err != nil {
		return 0, err
	}

	inComponent := make(map[string]bool, len(tweetIDs))
	for _, id := range tweetIDs {
		inComponent[id] = true
	}
	var removals []string
	for _, id := range windowMembers {
		if !inComponent[id] {
			removals = append(removals, id)
		}
	}
	if len(removals) > 0 {
		if _, err := s.clusters.RemoveMembers(ctx, targetID, removals); err != nil {
			return 0, err
		}
	}

	return s.clusters.AddMembersIfUnassigned(ctx, targetID, tweetIDs)
}
