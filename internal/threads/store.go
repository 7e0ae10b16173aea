package threads

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("database handle is required")

// SQLStore is the gorm-backed post store adapter. It satisfies the
// read/persist contract of the thread engine plus the bulk mutation
// surface used by moderation and ingestion.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps a gorm handle in the store adapter.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &SQLStore{db: db}, nil
}

// FindRoot loads a single row by hash. Missing rows return nil without
// error; the caller decides whether that is NotFound.
func (s *SQLStore) FindRoot(ctx context.Context, hash Hash) (*Post, error) {
	var post Post
	err := s.db.WithContext(ctx).Where("hash = ?", hash.String()).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// FindReplies returns every raw reply row of a thread, the root row
// excluded. Eligibility filtering happens in Go so that both execution
// paths share one visibility implementation.
func (s *SQLStore) FindReplies(ctx context.Context, root Hash) ([]Post, error) {
	var rows []Post
	err := s.db.WithContext(ctx).
		Where("root_hash = ? AND hash <> ?", root.String(), root.String()).
		Order("timestamp_ms IS NULL, timestamp_ms ASC, hash ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByHashes loads raw rows for the given hashes; absent hashes are
// silently skipped.
func (s *SQLStore) FindByHashes(ctx context.Context, hashes []Hash) ([]Post, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	raw := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		raw = append(raw, hash.String())
	}
	var rows []Post
	if err := s.db.WithContext(ctx).Where("hash IN ?", raw).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// AuthorStates batch-loads moderation/trust state for the given fids.
// Authors without a stored row are simply absent from the map.
func (s *SQLStore) AuthorStates(ctx context.Context, fids []int64) (map[int64]AuthorState, error) {
	states := make(map[int64]AuthorState, len(fids))
	if len(fids) == 0 {
		return states, nil
	}
	var rows []AuthorState
	if err := s.db.WithContext(ctx).Where("fid IN ?", fids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		states[row.FID] = row
	}
	return states, nil
}

// PersistStats applies the recomputed snapshot onto the root row as a
// single UPDATE keyed by the root hash, so concurrent recomputations
// cannot interleave a partial field set: the last writer's snapshot
// wins whole.
func (s *SQLStore) PersistStats(ctx context.Context, root Hash, stats ThreadStats) error {
	return s.db.WithContext(ctx).Model(&Post{}).
		Where("hash = ? AND root_hash = ?", root.String(), root.String()).
		Updates(map[string]interface{}{
			"reply_count":         stats.ReplyCount,
			"last_reply_at_ms":    stats.LastReplyAtMS,
			"last_reply_hash":     stats.LastReplyHash,
			"last_reply_fid":      stats.LastReplyFID,
			"last_activity_at_ms": stats.LastActivityAtMS,
		}).Error
}

// InsertCasts stores incoming rows append-only: a hash that already
// exists is left untouched.
func (s *SQLStore) InsertCasts(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&posts).Error
}

// BulkMarkDeleted soft-deletes every given row at the same instant.
func (s *SQLStore) BulkMarkDeleted(ctx context.Context, hashes []Hash, atMS int64) error {
	if len(hashes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Post{}).
		Where("hash IN ?", hashStrings(hashes)).
		Update("deleted_at_ms", atMS).Error
}

// BulkMarkHidden hides every given row with the acting moderator and
// reason recorded on the row.
func (s *SQLStore) BulkMarkHidden(ctx context.Context, hashes []Hash, atMS int64, byFID int64, reason string) error {
	if len(hashes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Post{}).
		Where("hash IN ?", hashStrings(hashes)).
		Updates(map[string]interface{}{
			"hidden_at_ms":  atMS,
			"hidden_by_fid": byFID,
			"hidden_reason": reason,
		}).Error
}

// BulkUnmarkHidden clears the hide markers on every given row.
func (s *SQLStore) BulkUnmarkHidden(ctx context.Context, hashes []Hash) error {
	if len(hashes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Post{}).
		Where("hash IN ?", hashStrings(hashes)).
		Updates(map[string]interface{}{
			"hidden_at_ms":  nil,
			"hidden_by_fid": nil,
			"hidden_reason": "",
		}).Error
}

// MarkAuthorHidden records the author-level suppression flag.
func (s *SQLStore) MarkAuthorHidden(ctx context.Context, fid int64, atMS int64) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fid"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"hidden_at_ms": atMS}),
		}).
		Create(&AuthorState{FID: fid, HiddenAtMS: &atMS}).Error
}

// HideAuthorCasts hides every not-yet-removed row by the author and
// returns the distinct roots whose stats need recomputing.
func (s *SQLStore) HideAuthorCasts(ctx context.Context, fid int64, atMS int64, byFID int64, reason string) ([]Hash, error) {
	var rootValues []string
	err := s.db.WithContext(ctx).Model(&Post{}).
		Distinct("root_hash").
		Where("author_fid = ? AND deleted_at_ms IS NULL AND hidden_at_ms IS NULL", fid).
		Pluck("root_hash", &rootValues).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(&Post{}).
		Where("author_fid = ? AND deleted_at_ms IS NULL AND hidden_at_ms IS NULL", fid).
		Updates(map[string]interface{}{
			"hidden_at_ms":  atMS,
			"hidden_by_fid": byFID,
			"hidden_reason": reason,
		}).Error
	if err != nil {
		return nil, err
	}

	roots := make([]Hash, 0, len(rootValues))
	for _, value := range rootValues {
		roots = append(roots, Hash(value))
	}
	return roots, nil
}

func hashStrings(hashes []Hash) []string {
	raw := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		raw = append(raw, hash.String())
	}
	return raw
}
