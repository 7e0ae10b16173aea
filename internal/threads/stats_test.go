package threads

import (
	"context"
	"errors"
	"testing"
)

func TestUpdateStatsPersistsClusteredAggregates(t *testing.T) {
	service, db := newTestService(t, Options{})
	root := rootPost(hashOf(1), 100, 0, "root")
	r1 := replyPost(hashOf(2), root.Hash, root.Hash, 100, 2000, "merges")
	r2 := replyPost(hashOf(3), r1.Hash, root.Hash, 100, 9000, "chains")
	r3 := replyPost(hashOf(4), r2.Hash, root.Hash, 200, 10000, "other author")
	r4 := replyPost(hashOf(5), r3.Hash, root.Hash, 100, 11000, "media")
	r4.HasAttachment = true
	seedPosts(t, db, root, r1, r2, r3, r4)

	if err := service.UpdateStats(context.Background(), []Hash{Hash(root.Hash)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored Post
	if err := db.Where("hash = ?", root.Hash).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if stored.ReplyCount != 2 {
		t.Fatalf("expected 2 visible replies (r1/r2 absorbed), got %d", stored.ReplyCount)
	}
	if stored.LastReplyHash == nil || *stored.LastReplyHash != r4.Hash {
		t.Fatalf("expected last reply %s, got %v", r4.Hash, stored.LastReplyHash)
	}
	if stored.LastReplyAtMS == nil || *stored.LastReplyAtMS != 11000 {
		t.Fatalf("unexpected last reply timestamp: %v", stored.LastReplyAtMS)
	}
	if stored.LastReplyFID == nil || *stored.LastReplyFID != 100 {
		t.Fatalf("unexpected last reply author: %v", stored.LastReplyFID)
	}
	if stored.LastActivityAtMS == nil || *stored.LastActivityAtMS != 11000 {
		t.Fatalf("unexpected last activity: %v", stored.LastActivityAtMS)
	}
}

func TestUpdateStatsIsIdempotent(t *testing.T) {
	service, db := newTestService(t, Options{})
	root := rootPost(hashOf(1), 100, 0, "root")
	r1 := replyPost(hashOf(2), root.Hash, root.Hash, 200, 5000, "reply")
	seedPosts(t, db, root, r1)

	roots := []Hash{Hash(root.Hash)}
	if err := service.UpdateStats(context.Background(), roots); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	var first Post
	if err := db.Where("hash = ?", root.Hash).Take(&first).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}

	if err := service.UpdateStats(context.Background(), roots); err != nil {
		t.Fatalf("second update failed: %v", err)
	}
	var second Post
	if err := db.Where("hash = ?", root.Hash).Take(&second).Error; err != nil {
		t.Fatalf("failed to reload root: %v", err)
	}

	if first.ReplyCount != second.ReplyCount ||
		!int64PtrEqual(first.LastReplyAtMS, second.LastReplyAtMS) ||
		!strPtrEqual(first.LastReplyHash, second.LastReplyHash) ||
		!int64PtrEqual(first.LastActivityAtMS, second.LastActivityAtMS) {
		t.Fatalf("repeated update changed stored stats: %+v vs %+v", first, second)
	}
}

func TestUpdateStatsCountsGroupsNotRows(t *testing.T) {
	service, db := newTestService(t, Options{})
	root := rootPost(hashOf(1), 100, 0, "root")
	// Three eligible rows, two merge groups: a foreign anchor and a
	// root-author pair collapsing onto its own anchor.
	r1 := replyPost(hashOf(2), root.Hash, root.Hash, 200, 1000, "anchor")
	r2 := replyPost(hashOf(3), r1.Hash, root.Hash, 100, 2000, "self thread")
	r3 := replyPost(hashOf(4), r2.Hash, root.Hash, 100, 3000, "continues")
	seedPosts(t, db, root, r1, r2, r3)

	if err := service.UpdateStats(context.Background(), []Hash{Hash(root.Hash)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored Post
	if err := db.Where("hash = ?", root.Hash).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if stored.ReplyCount != 2 {
		t.Fatalf("expected 2 merge groups among 3 rows, got %d", stored.ReplyCount)
	}
}

func TestUpdateStatsAgreesWithBuildPageCount(t *testing.T) {
	service, db := newTestService(t, Options{PageSize: 2})
	root := rootPost(hashOf(1), 100, 0, "root")
	seedPosts(t, db, root)
	for i := 0; i < 7; i++ {
		reply := replyPost(hashOf(10+i), root.Hash, root.Hash, int64(200+i), int64(1000*(i+1)), "reply")
		seedPosts(t, db, reply)
	}

	if err := service.UpdateStats(context.Background(), []Hash{Hash(root.Hash)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stored Post
	if err := db.Where("hash = ?", root.Hash).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}

	page, err := service.BuildPage(context.Background(), Hash(root.Hash), 1, nil)
	if err != nil {
		t.Fatalf("unexpected page error: %v", err)
	}
	if page.ReplyCount != stored.ReplyCount {
		t.Fatalf("persisted count %d disagrees with page count %d", stored.ReplyCount, page.ReplyCount)
	}
}

func TestUpdateStatsReportsFailedRootsIndividually(t *testing.T) {
	service, db := newTestService(t, Options{})
	root := rootPost(hashOf(1), 100, 0, "root")
	seedPosts(t, db, root)

	missing := Hash(hashOf(99))
	err := service.UpdateStats(context.Background(), []Hash{missing, Hash(root.Hash)})
	if err == nil {
		t.Fatalf("expected a partial failure for the missing root")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound in the failure chain, got %v", err)
	}

	// The healthy root must still have been updated.
	var stored Post
	if err := db.Where("hash = ?", root.Hash).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load root: %v", err)
	}
	if stored.LastActivityAtMS == nil {
		t.Fatalf("healthy root should have been updated despite the failed one")
	}
}

func TestUpdateStatsDeduplicatesRoots(t *testing.T) {
	service, db := newTestService(t, Options{})
	root := rootPost(hashOf(1), 100, 0, "root")
	seedPosts(t, db, root)

	roots := []Hash{Hash(root.Hash), Hash(root.Hash), Hash(root.Hash)}
	if err := service.UpdateStats(context.Background(), roots); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
