package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skeinsocial/skein/backend/internal/threads"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingStore      = errors.New("post store is required")
	errMissingEngine     = errors.New("thread engine is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew = "moderation.service.new"
	opDeleteCast = "moderation.delete_cast"
	opHideCast   = "moderation.hide_cast"
	opUnhideCast = "moderation.unhide_cast"
	opHideAuthor = "moderation.hide_author"
)

// ServiceError carries an operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// Store is the mutation surface moderation needs from the post store.
type Store interface {
	BulkMarkDeleted(ctx context.Context, hashes []threads.Hash, atMS int64) error
	BulkMarkHidden(ctx context.Context, hashes []threads.Hash, atMS int64, byFID int64, reason string) error
	BulkUnmarkHidden(ctx context.Context, hashes []threads.Hash) error
	MarkAuthorHidden(ctx context.Context, fid int64, atMS int64) error
	HideAuthorCasts(ctx context.Context, fid int64, atMS int64, byFID int64, reason string) ([]threads.Hash, error)
}

// ThreadEngine is the slice of the thread engine moderation drives:
// group resolution before a delete, stats refresh after any mutation.
type ThreadEngine interface {
	GroupOf(ctx context.Context, root, target threads.Hash) ([]threads.Hash, error)
	UpdateStats(ctx context.Context, roots []threads.Hash) error
}

// Upstream publishes removals to the casting protocol. It is an
// external collaborator; a nil upstream keeps deletes local-only.
type Upstream interface {
	RemoveCasts(ctx context.Context, hashes []threads.Hash) error
}

// ServiceConfig describes the dependencies of the moderation service.
type ServiceConfig struct {
	Database   *gorm.DB
	Store      Store
	Engine     ThreadEngine
	Upstream   Upstream
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service implements the delete / hide / suppress flows on top of the
// merge group resolver, with an append-only audit trail.
type Service struct {
	db         *gorm.DB
	store      Store
	engine     ThreadEngine
	upstream   Upstream
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates dependencies and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Engine == nil {
		return nil, newServiceError(opServiceNew, "missing_engine", errMissingEngine)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		store:      cfg.Store,
		engine:     cfg.Engine,
		upstream:   cfg.Upstream,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// DeleteCast removes a logical post: the target's whole merge group is
// published for upstream removal, soft-deleted locally, audited, and
// the root's stats are recomputed. Deleting any absorbed row removes
// the group it belongs to; deleting the root removes the root group.
func (s *Service) DeleteCast(ctx context.Context, root, target threads.Hash, actorFID int64) ([]threads.Hash, error) {
	group, err := s.engine.GroupOf(ctx, root, target)
	if err != nil {
		s.logError(opDeleteCast, "group_resolve_failed", err, zap.String("target", target.String()))
		return nil, newServiceError(opDeleteCast, "group_resolve_failed", err)
	}
	if len(group) == 0 {
		return nil, newServiceError(opDeleteCast, "target_not_found", threads.ErrNotFound)
	}

	if s.upstream != nil {
		if err := s.upstream.RemoveCasts(ctx, group); err != nil {
			s.logError(opDeleteCast, "upstream_remove_failed", err, zap.String("target", target.String()))
			return nil, newServiceError(opDeleteCast, "upstream_remove_failed", err)
		}
	}

	atMS := s.clock().UTC().UnixMilli()
	if err := s.store.BulkMarkDeleted(ctx, group, atMS); err != nil {
		s.logError(opDeleteCast, "mark_deleted_failed", err, zap.String("target", target.String()))
		return nil, newServiceError(opDeleteCast, "mark_deleted_failed", err)
	}

	if err := s.recordAction(ctx, ActionRecord{
		Kind:        ActionKindDelete,
		RootHash:    root.String(),
		TargetHash:  target.String(),
		ActorFID:    actorFID,
		GroupSize:   len(group),
		AppliedAtMS: atMS,
	}); err != nil {
		return nil, newServiceError(opDeleteCast, "audit_insert_failed", err)
	}

	if err := s.engine.UpdateStats(ctx, []threads.Hash{root}); err != nil {
		return nil, newServiceError(opDeleteCast, "stats_update_failed", err)
	}
	return group, nil
}

// HideCast hides a single cast row. Group semantics are not needed:
// a hidden absorbed row simply stops contributing text on the next
// recompute.
func (s *Service) HideCast(ctx context.Context, root, target threads.Hash, actorFID int64, reason string) error {
	atMS := s.clock().UTC().UnixMilli()
	if err := s.store.BulkMarkHidden(ctx, []threads.Hash{target}, atMS, actorFID, reason); err != nil {
		s.logError(opHideCast, "mark_hidden_failed", err, zap.String("target", target.String()))
		return newServiceError(opHideCast, "mark_hidden_failed", err)
	}
	if err := s.recordAction(ctx, ActionRecord{
		Kind:        ActionKindHideCast,
		RootHash:    root.String(),
		TargetHash:  target.String(),
		ActorFID:    actorFID,
		Reason:      reason,
		GroupSize:   1,
		AppliedAtMS: atMS,
	}); err != nil {
		return newServiceError(opHideCast, "audit_insert_failed", err)
	}
	if err := s.engine.UpdateStats(ctx, []threads.Hash{root}); err != nil {
		return newServiceError(opHideCast, "stats_update_failed", err)
	}
	return nil
}

// UnhideCast clears the hide markers on a single cast row.
func (s *Service) UnhideCast(ctx context.Context, root, target threads.Hash, actorFID int64) error {
	if err := s.store.BulkUnmarkHidden(ctx, []threads.Hash{target}); err != nil {
		s.logError(opUnhideCast, "unmark_hidden_failed", err, zap.String("target", target.String()))
		return newServiceError(opUnhideCast, "unmark_hidden_failed", err)
	}
	if err := s.recordAction(ctx, ActionRecord{
		Kind:        ActionKindUnhideCast,
		RootHash:    root.String(),
		TargetHash:  target.String(),
		ActorFID:    actorFID,
		GroupSize:   1,
		AppliedAtMS: s.clock().UTC().UnixMilli(),
	}); err != nil {
		return newServiceError(opUnhideCast, "audit_insert_failed", err)
	}
	if err := s.engine.UpdateStats(ctx, []threads.Hash{root}); err != nil {
		return newServiceError(opUnhideCast, "stats_update_failed", err)
	}
	return nil
}

// HideAuthor suppresses an author: the author-level flag is set, every
// remaining row by the author is hidden, and stats are recomputed once
// per distinct affected root.
func (s *Service) HideAuthor(ctx context.Context, fid int64, actorFID int64, reason string) error {
	atMS := s.clock().UTC().UnixMilli()
	if err := s.store.MarkAuthorHidden(ctx, fid, atMS); err != nil {
		s.logError(opHideAuthor, "mark_author_failed", err, zap.Int64("fid", fid))
		return newServiceError(opHideAuthor, "mark_author_failed", err)
	}

	roots, err := s.store.HideAuthorCasts(ctx, fid, atMS, actorFID, reason)
	if err != nil {
		s.logError(opHideAuthor, "hide_casts_failed", err, zap.Int64("fid", fid))
		return newServiceError(opHideAuthor, "hide_casts_failed", err)
	}

	if err := s.recordAction(ctx, ActionRecord{
		Kind:        ActionKindHideAuthor,
		TargetFID:   fid,
		ActorFID:    actorFID,
		Reason:      reason,
		GroupSize:   len(roots),
		AppliedAtMS: atMS,
	}); err != nil {
		return newServiceError(opHideAuthor, "audit_insert_failed", err)
	}

	// UpdateStats de-duplicates, but roots from the store are already
	// distinct; redundant refreshes would be safe regardless.
	if err := s.engine.UpdateStats(ctx, roots); err != nil {
		return newServiceError(opHideAuthor, "stats_update_failed", err)
	}
	return nil
}

func (s *Service) recordAction(ctx context.Context, record ActionRecord) error {
	actionID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(string(record.Kind), "id_generation_failed", err)
		return err
	}
	record.ActionID = actionID
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(string(record.Kind), "audit_insert_failed", err)
		return err
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("moderation service error", attrs...)
}
