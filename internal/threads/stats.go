package threads

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// UpdateStats recomputes and persists the denormalized thread stats
// for every distinct root in the batch. Each root is handled
// independently: a failure on one root is reported with its hash and
// does not abort the rest. Re-running with no intervening writes
// stores identical values.
func (s *Service) UpdateStats(ctx context.Context, roots []Hash) error {
	seen := make(map[Hash]struct{}, len(roots))
	var failures []error
	for _, root := range roots {
		if _, dup := seen[root]; dup {
			continue
		}
		seen[root] = struct{}{}
		if err := s.updateRootStats(ctx, root); err != nil {
			s.logError(opUpdateStats, "root_update_failed", err, zap.String("root", root.String()))
			failures = append(failures, fmt.Errorf("root %s: %w", root, err))
		}
	}
	if len(failures) > 0 {
		return newServiceError(opUpdateStats, "partial_failure", errors.Join(failures...))
	}
	return nil
}

func (s *Service) updateRootStats(ctx context.Context, root Hash) error {
	rootPost, err := s.store.FindRoot(ctx, root)
	if err != nil {
		return err
	}
	if rootPost == nil || !rootPost.IsRoot() {
		return ErrNotFound
	}

	eligible, err := s.eligibleReplies(ctx, root)
	if err != nil {
		return err
	}

	rows := ClusterReplies(*rootPost, eligible, s.opts.MergeWindowMS)
	stats := computeStats(*rootPost, rows)
	return s.store.PersistStats(ctx, root, stats)
}

// computeStats derives the persisted aggregate from clustering output.
// The visible reply count is the number of merge groups, not the
// number of eligible rows; the last reply is the non-merged row with
// the greatest timestamp, ties resolved by the same (timestamp, hash)
// order the clustering pass uses.
func computeStats(root Post, rows []ClusterRow) ThreadStats {
	stats := ThreadStats{}
	var last *Post
	for i := range rows {
		if rows[i].IsMerged {
			continue
		}
		stats.ReplyCount++
		post := rows[i].Post
		if post.TimestampMS == nil {
			continue
		}
		if last == nil || *post.TimestampMS >= *last.TimestampMS {
			captured := post
			last = &captured
		}
	}

	if last != nil {
		ts := *last.TimestampMS
		hash := last.Hash
		fid := last.AuthorFID
		stats.LastReplyAtMS = &ts
		stats.LastReplyHash = &hash
		stats.LastReplyFID = &fid
	}

	activity := root.TimestampMS
	if stats.LastReplyAtMS != nil && (activity == nil || *stats.LastReplyAtMS > *activity) {
		activity = stats.LastReplyAtMS
	}
	if activity != nil {
		captured := *activity
		stats.LastActivityAtMS = &captured
	}
	return stats
}
