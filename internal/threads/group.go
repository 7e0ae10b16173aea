package threads

import (
	"context"

	"go.uber.org/zap"
)

// GroupOf resolves the merge group of a raw cast hash: every raw hash
// that collapses into the same visible post, the target included. For
// the root's group the root hash itself is part of the set, so acting
// on the group removes the whole logical post. An unresolvable target
// yields a nil set without error; a missing root is ErrNotFound.
func (s *Service) GroupOf(ctx context.Context, rootHash, target Hash) ([]Hash, error) {
	rootPost, err := s.store.FindRoot(ctx, rootHash)
	if err != nil {
		s.logError(opGroupOf, "root_load_failed", err, zap.String("root", rootHash.String()))
		return nil, newServiceError(opGroupOf, "root_load_failed", err)
	}
	if rootPost == nil || !rootPost.IsRoot() {
		return nil, newServiceError(opGroupOf, "root_not_found", ErrNotFound)
	}

	eligible, err := s.eligibleReplies(ctx, rootHash)
	if err != nil {
		s.logError(opGroupOf, "replies_load_failed", err, zap.String("root", rootHash.String()))
		return nil, newServiceError(opGroupOf, "replies_load_failed", err)
	}
	rows := ClusterReplies(*rootPost, eligible, s.opts.MergeWindowMS)

	mergeTarget, resolved := resolveMergeTarget(rootHash, rows, target)
	if !resolved {
		return nil, nil
	}

	group := make([]Hash, 0, 4)
	if mergeTarget == rootHash {
		group = append(group, rootHash)
	}
	for _, row := range rows {
		if row.MergeTarget == mergeTarget {
			group = append(group, Hash(row.Post.Hash))
		}
	}
	return group, nil
}

func resolveMergeTarget(root Hash, rows []ClusterRow, target Hash) (Hash, bool) {
	if target == root {
		return root, true
	}
	for _, row := range rows {
		if Hash(row.Post.Hash) == target {
			return row.MergeTarget, true
		}
	}
	return "", false
}
