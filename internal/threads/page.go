package threads

import (
	"context"

	"go.uber.org/zap"
)

// UnpagedView requests the whole thread in a single page.
const UnpagedView = 0

// BuildPage assembles one page of a thread view. Page 0 returns every
// visible reply unpaged. A focus hash, when resolvable, overrides the
// requested page with the page containing its merge target (the root
// forces page 1); an unresolvable focus is ignored. The clustering
// pass always runs over the full ordered eligible sequence, since
// merge state is sequential; absorbed rows that fall outside the page
// contribute their text and are then dropped.
func (s *Service) BuildPage(ctx context.Context, rootHash Hash, page int, focus *Hash) (Page, error) {
	rootPost, err := s.store.FindRoot(ctx, rootHash)
	if err != nil {
		s.logError(opBuildPage, "root_load_failed", err, zap.String("root", rootHash.String()))
		return Page{}, newServiceError(opBuildPage, "root_load_failed", err)
	}
	if rootPost == nil || !rootPost.IsRoot() || rootPost.DeletedAtMS != nil {
		return Page{}, newServiceError(opBuildPage, "root_not_found", ErrNotFound)
	}

	eligible, err := s.eligibleReplies(ctx, rootHash)
	if err != nil {
		s.logError(opBuildPage, "replies_load_failed", err, zap.String("root", rootHash.String()))
		return Page{}, newServiceError(opBuildPage, "replies_load_failed", err)
	}
	if !rootIsRenderable(*rootPost, len(eligible)) {
		return Page{}, newServiceError(opBuildPage, "root_not_renderable", ErrNotFound)
	}

	rows := ClusterReplies(*rootPost, eligible, s.opts.MergeWindowMS)
	assembledRoot, visible := AssembleThread(*rootPost, rows)

	pageSize := s.opts.PageSize
	totalPages := (len(visible) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	unpaged := page == UnpagedView
	if !unpaged {
		if focused, ok := resolveFocusPage(rootHash, rows, visible, focus, pageSize); ok {
			page = focused
		}
		if page < 1 {
			page = 1
		}
		if page > totalPages {
			page = totalPages
		}
	}

	start, end := 0, len(visible)
	pageNumber, pageCount := 1, 1
	hasNext, hasPrev := false, false
	if !unpaged {
		start = (page - 1) * pageSize
		if end > start+pageSize {
			end = start + pageSize
		}
		pageNumber, pageCount = page, totalPages
		hasNext = page < totalPages
		hasPrev = page > 1
	}

	replies := make([]AssembledPost, end-start)
	copy(replies, visible[start:end])
	for i := range replies {
		// The root is implicitly post #1; numbering is continuous
		// across pages even though absorbed rows get no number.
		replies[i].Number = start + 2 + i
	}

	lookup := s.buildLookup(*rootPost, rows, replies)
	if err := s.loadAncestors(ctx, rootHash, replies, lookup); err != nil {
		s.logError(opBuildPage, "ancestors_load_failed", err, zap.String("root", rootHash.String()))
		return Page{}, newServiceError(opBuildPage, "ancestors_load_failed", err)
	}

	return Page{
		Root:         assembledRoot,
		Replies:      replies,
		ReplyCount:   int64(len(visible)),
		PageSize:     pageSize,
		PageNumber:   pageNumber,
		TotalPages:   pageCount,
		HasNextPage:  hasNext,
		HasPrevPage:  hasPrev,
		LookupByHash: lookup,
	}, nil
}

// resolveFocusPage maps a focus hash to the page holding its merge
// target. The second return is false when the hint cannot be resolved
// and the caller should fall back to the requested page.
func resolveFocusPage(root Hash, rows []ClusterRow, visible []AssembledPost, focus *Hash, pageSize int) (int, bool) {
	if focus == nil {
		return 0, false
	}
	if *focus == root {
		return 1, true
	}
	var target Hash
	found := false
	for _, row := range rows {
		if Hash(row.Post.Hash) == *focus {
			target = row.MergeTarget
			found = true
			break
		}
	}
	if !found {
		return 0, false
	}
	if target == root {
		return 1, true
	}
	for i := range visible {
		if Hash(visible[i].Post.Hash) == target {
			return i/pageSize + 1, true
		}
	}
	return 0, false
}

// buildLookup seeds the page's hash lookup with the root and every raw
// row collapsing into a post on the page, absorbed members included.
func (s *Service) buildLookup(root Post, rows []ClusterRow, replies []AssembledPost) map[Hash]Post {
	lookup := make(map[Hash]Post, len(replies)+1)
	lookup[Hash(root.Hash)] = root

	onPage := make(map[Hash]struct{}, len(replies)+1)
	onPage[Hash(root.Hash)] = struct{}{}
	for _, reply := range replies {
		onPage[Hash(reply.Post.Hash)] = struct{}{}
	}
	for _, row := range rows {
		if _, ok := onPage[row.MergeTarget]; ok {
			lookup[Hash(row.Post.Hash)] = row.Post
		}
	}
	return lookup
}
