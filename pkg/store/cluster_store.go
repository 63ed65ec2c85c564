package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tideline/tideline/pkg/models"
	"github.com/tideline/tideline/pkg/vectormath"
)

// Component is one connected component returned by the cluster_by_embedding
// stored procedure: similarity-linked posts within the sync window.
type Component struct {
	Key      int64
	TweetIDs []string
	Earliest time.Time
	Latest   time.Time
	Size     int
}

// ClusterStore is the repository for persistent clusters, memberships, and
// the merge log.
type ClusterStore struct {
	pool *pgxpool.Pool
}

// NewClusterStore creates a cluster repository over the given pool.
func NewClusterStore(pool *pgxpool.Pool) *ClusterStore {
	return &ClusterStore{pool: pool}
}

const clusterColumns = `id, first_seen_at, last_seen_at, normalized_headline, normalized_facts,
	tweet_count, unique_user_count, is_story_candidate, is_active,
	merged_into_cluster_id, centroid::text, last_synced_at, reviewed_at, created_at, updated_at`

func scanCluster(row pgx.Row) (*models.Cluster, error) {
	var c models.Cluster
	var facts []byte
	var centroid *string
	err := row.Scan(
		&c.ID, &c.FirstSeenAt, &c.LastSeenAt, &c.NormalizedHeadline, &facts,
		&c.TweetCount, &c.UniqueUserCount, &c.IsStoryCandidate, &c.IsActive,
		&c.MergedIntoClusterID, &centroid, &c.LastSyncedAt, &c.ReviewedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(facts) > 0 {
		if err := json.Unmarshal(facts, &c.NormalizedFacts); err != nil {
			return nil, fmt.Errorf("decoding facts for cluster %d: %w", c.ID, err)
		}
	}
	if centroid != nil {
		vec, err := vectormath.Parse(*centroid)
		if err != nil {
			return nil, fmt.Errorf("decoding centroid for cluster %d: %w", c.ID, err)
		}
		c.Centroid = vec
	}
	return &c, nil
}

// ClusterByEmbedding runs the on-the-fly clustering stored procedure over
// the window starting at since.
func (s *ClusterStore) ClusterByEmbedding(ctx context.Context, since time.Time, threshold float64, minSize, maxDays int) ([]Component, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cluster_key, tweet_ids, earliest_tweet_at, latest_tweet_at, size
		 FROM cluster_by_embedding($1, $2, $3, $4)`,
		since, threshold, minSize, maxDays)
	if err != nil {
		return nil, fmt.Errorf("calling cluster_by_embedding: %w", err)
	}
	defer rows.Close()

	var components []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.Key, &c.TweetIDs, &c.Earliest, &c.Latest, &c.Size); err != nil {
			return nil, fmt.Errorf("scanning component: %w", err)
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// AssignmentsFor returns the current cluster assignment for each of the
// given posts; unassigned posts are absent from the map.
func (s *ClusterStore) AssignmentsFor(ctx context.Context, tweetIDs []string) (map[string]int64, error) {
	if len(tweetIDs) == 0 {
		return map[string]int64{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT tweet_id, cluster_id FROM cluster_members WHERE tweet_id = ANY($1)`, tweetIDs)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	assignments := make(map[string]int64)
	for rows.Next() {
		var tweetID string
		var clusterID int64
		if err := rows.Scan(&tweetID, &clusterID); err != nil {
			return nil, err
		}
		assignments[tweetID] = clusterID
	}
	return assignments, rows.Err()
}

// WindowMembers returns the cluster's member tweet ids whose posts fall in
// the window starting at since. This is the membership set Jaccard matching
// compares components against.
func (s *ClusterStore) WindowMembers(ctx context.Context, clusterID int64, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.tweet_id
		FROM cluster_members m
		JOIN posts p ON p.tweet_id = m.tweet_id
		WHERE m.cluster_id = $1 AND p.tweet_created_at >= $2`, clusterID, since)
	if err != nil {
		return nil, fmt.Errorf("querying window members of %d: %w", clusterID, err)
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

// MemberIDs returns all member tweet ids of a cluster.
func (s *ClusterStore) MemberIDs(ctx context.Context, clusterID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tweet_id FROM cluster_members WHERE cluster_id = $1`, clusterID)
	if err != nil {
		return nil, fmt.Errorf("querying members of %d: %w", clusterID, err)
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

// MemberPosts returns the posts assigned to a cluster, oldest first,
// optionally capped. A limit of 0 means no cap.
func (s *ClusterStore) MemberPosts(ctx context.Context, clusterID int64, limit int) ([]*models.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		JOIN cluster_members m ON m.tweet_id = posts.tweet_id
		WHERE m.cluster_id = $1
		ORDER BY posts.tweet_created_at, posts.tweet_id`
	args := []any{clusterID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying member posts of %d: %w", clusterID, err)
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning member post: %w", err)
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Create inserts a new active cluster with the given first/last seen times
// and returns its id.
func (s *ClusterStore) Create(ctx context.Context, firstSeen, lastSeen time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO clusters (first_seen_at, last_seen_at, last_synced_at)
		VALUES ($1, $2, now())
		RETURNING id`, firstSeen, lastSeen).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating cluster: %w", err)
	}
	return id, nil
}

// Get returns a cluster by id.
func (s *ClusterStore) Get(ctx context.Context, id int64) (*models.Cluster, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id)
	c, err := scanCluster(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cluster %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("loading cluster %d: %w", id, err)
	}
	return c, nil
}

// GetUnmerged is the guard re-read used before every mutating merge step:
// it returns the cluster only if it has not been merged away.
func (s *ClusterStore) GetUnmerged(ctx context.Context, id int64) (*models.Cluster, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.MergedIntoClusterID != nil {
		return nil, fmt.Errorf("cluster %d: %w", id, ErrAlreadyMerged)
	}
	return c, nil
}

// AddMembersIfUnassigned assigns the given posts to the cluster, silently
// skipping posts that already belong to any cluster. Prior assignment is
// intentionally preserved; only curate and review move an assigned post.
func (s *ClusterStore) AddMembersIfUnassigned(ctx context.Context, clusterID int64, tweetIDs []string) (int, error) {
	if len(tweetIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cluster_members (tweet_id, cluster_id)
		SELECT unnest($1::text[]), $2
		ON CONFLICT (tweet_id) DO NOTHING`, tweetIDs, clusterID)
	if err != nil {
		return 0, fmt.Errorf("adding members to %d: %w", clusterID, err)
	}
	return int(tag.RowsAffected()), nil
}

// RemoveMembers deletes the given memberships from the cluster.
func (s *ClusterStore) RemoveMembers(ctx context.Context, clusterID int64, tweetIDs []string) (int, error) {
	if len(tweetIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cluster_members
		WHERE cluster_id = $1 AND tweet_id = ANY($2)`, clusterID, tweetIDs)
	if err != nil {
		return 0, fmt.Errorf("removing members from %d: %w", clusterID, err)
	}
	return int(tag.RowsAffected()), nil
}

// MoveMembers reassigns every member of the source cluster to the target.
func (s *ClusterStore) MoveMembers(ctx context.Context, sourceID, targetID int64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cluster_members SET cluster_id = $2, added_at = now()
		WHERE cluster_id = $1`, sourceID, targetID)
	if err != nil {
		return 0, fmt.Errorf("moving members %d -> %d: %w", sourceID, targetID, err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateStats writes a recomputed aggregate snapshot onto the cluster row
// and stamps last_synced_at.
func (s *ClusterStore) UpdateStats(ctx context.Context, clusterID int64, stats models.ClusterStats, isCandidate, isActive bool, centroid []float32) error {
	facts := stats.NormalizedFacts
	if facts == nil {
		facts = []string{}
	}
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("encoding facts for cluster %d: %w", clusterID, err)
	}

	var centroidLit *string
	if len(centroid) > 0 {
		lit := vectormath.Format(centroid)
		centroidLit = &lit
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE clusters
		SET tweet_count = $2,
		    unique_user_count = $3,
		    normalized_headline = $4,
		    normalized_facts = $5,
		    last_seen_at = $6,
		    is_story_candidate = $7,
		    is_active = $8,
		    centroid = $9::vector,
		    last_synced_at = now(),
		    updated_at = now()
		WHERE id = $1`,
		clusterID, stats.TweetCount, stats.UniqueUserCount,
		stats.NormalizedHeadline, factsJSON, stats.LastSeenAt,
		isCandidate, isActive, centroidLit)
	if err != nil {
		return fmt.Errorf("updating stats for cluster %d: %w", clusterID, err)
	}
	return nil
}

// ActiveUnmerged returns active unmerged clusters last seen at or after
// since, largest first, capped at limit.
func (s *ClusterStore) ActiveUnmerged(ctx context.Context, since time.Time, limit int) ([]*models.Cluster, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+clusterColumns+` FROM clusters
		WHERE is_active AND merged_into_cluster_id IS NULL AND last_seen_at >= $1
		ORDER BY tweet_count DESC, id
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying active clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*models.Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// DeactivateStale marks still-active unmerged clusters whose last sync is
// older than cutoff as inactive, returning how many were deactivated.
func (s *ClusterStore) DeactivateStale(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clusters
		SET is_active = false, updated_at = now()
		WHERE is_active
		  AND merged_into_cluster_id IS NULL
		  AND last_synced_at IS NOT NULL
		  AND last_synced_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivating stale clusters: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkMerged records that the source cluster was folded into the target.
// The compare-and-set on merged_into_cluster_id makes concurrent merges of
// the same source a silent no-op; returns false when the guard failed.
func (s *ClusterStore) MarkMerged(ctx context.Context, sourceID, targetID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE clusters
		SET merged_into_cluster_id = $2, is_active = false, updated_at = now()
		WHERE id = $1 AND merged_into_cluster_id IS NULL`, sourceID, targetID)
	if err != nil {
		return false, fmt.Errorf("marking cluster %d merged: %w", sourceID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// AppendMerge writes one row to the append-only merge log.
func (s *ClusterStore) AppendMerge(ctx context.Context, sourceID, targetID int64, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cluster_merges (source_cluster_id, target_cluster_id, reason)
		VALUES ($1, $2, $3)`, sourceID, targetID, reason)
	if err != nil {
		return fmt.Errorf("appending merge record %d -> %d: %w", sourceID, targetID, err)
	}
	return nil
}

// MergesInto returns the merge trail that folded other clusters into the
// given target.
func (s *ClusterStore) MergesInto(ctx context.Context, targetID int64) ([]models.ClusterMerge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_cluster_id, target_cluster_id, reason, created_at
		FROM cluster_merges
		WHERE target_cluster_id = $1
		ORDER BY created_at`, targetID)
	if err != nil {
		return nil, fmt.Errorf("querying merges into %d: %w", targetID, err)
	}
	defer rows.Close()

	var merges []models.ClusterMerge
	for rows.Next() {
		var m models.ClusterMerge
		if err := rows.Scan(&m.ID, &m.SourceClusterID, &m.TargetClusterID, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		merges = append(merges, m)
	}
	return merges, rows.Err()
}

// SetReviewedAt stamps the cluster's last review time.
func (s *ClusterStore) SetReviewedAt(ctx context.Context, clusterID int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE clusters SET reviewed_at = $2, updated_at = now() WHERE id = $1`, clusterID, at)
	if err != nil {
		return fmt.Errorf("stamping reviewed_at for %d: %w", clusterID, err)
	}
	return nil
}

// StoryRow is the per-cluster aggregate the story read model scores.
type StoryRow struct {
	Cluster         models.Cluster
	TotalEngagement float64
	Feedback        models.FeedbackCounts
	SampleTweetIDs  []string
	SampleHandles   []string
}

// StoryRows loads active unmerged clusters last seen at or after since,
// with member engagement totals, feedback counts, and member samples.
// Scoring and ranking happen in the caller.
func (s *ClusterStore) StoryRows(ctx context.Context, since time.Time, onlyCandidates bool) ([]StoryRow, error) {
	query := `
		SELECT ` + clusterColumns + `,
		       COALESCE(e.engagement, 0) AS engagement,
		       COALESCE(e.sample_ids, '{}') AS sample_ids,
		       COALESCE(e.sample_handles, '{}') AS sample_handles,
		       COALESCE(f.useful, 0), COALESCE(f.noise, 0), COALESCE(f.bad_cluster, 0)
		FROM clusters
		LEFT JOIN LATERAL (
			SELECT SUM(p.like_count + 2*p.retweet_count + 1.5*p.quote_count + p.reply_count + 0.2*p.bookmark_count) AS engagement,
			       (array_agg(p.tweet_id ORDER BY p.like_count + 2*p.retweet_count DESC))[1:5] AS sample_ids,
			       (array_agg(DISTINCT p.author_handle))[1:5] AS sample_handles
			FROM cluster_members m
			JOIN posts p ON p.tweet_id = m.tweet_id
			WHERE m.cluster_id = clusters.id
		) e ON true
		LEFT JOIN LATERAL (
			SELECT COUNT(*) FILTER (WHERE feedback = 'useful') AS useful,
			       COUNT(*) FILTER (WHERE feedback = 'noise') AS noise,
			       COUNT(*) FILTER (WHERE feedback = 'bad_cluster') AS bad_cluster
			FROM cluster_feedback cf
			WHERE cf.cluster_id = clusters.id
		) f ON true
		WHERE clusters.is_active
		  AND clusters.merged_into_cluster_id IS NULL
		  AND clusters.last_seen_at >= $1`
	if onlyCandidates {
		query += `
		  AND clusters.is_story_candidate`
	}

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("querying story rows: %w", err)
	}
	defer rows.Close()

	var out []StoryRow
	for rows.Next() {
		var r StoryRow
		var facts []byte
		var centroid *string
		err := rows.Scan(
			&r.Cluster.ID, &r.Cluster.FirstSeenAt, &r.Cluster.LastSeenAt,
			&r.Cluster.NormalizedHeadline, &facts,
			&r.Cluster.TweetCount, &r.Cluster.UniqueUserCount,
			&r.Cluster.IsStoryCandidate, &r.Cluster.IsActive,
			&r.Cluster.MergedIntoClusterID, &centroid,
			&r.Cluster.LastSyncedAt, &r.Cluster.ReviewedAt,
			&r.Cluster.CreatedAt, &r.Cluster.UpdatedAt,
			&r.TotalEngagement, &r.SampleTweetIDs, &r.SampleHandles,
			&r.Feedback.Useful, &r.Feedback.Noise, &r.Feedback.BadCluster,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning story row: %w", err)
		}
		if len(facts) > 0 {
			if err := json.Unmarshal(facts, &r.Cluster.NormalizedFacts); err != nil {
				return nil, fmt.Errorf("decoding facts for cluster %d: %w", r.Cluster.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
