package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/skeinsocial/skein/backend/internal/threads"
	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("post store is required")
	errMissingEngine = errors.New("thread engine is required")
	errEmptyBatch    = errors.New("ingest batch is empty")
	noOpLogger       = zap.NewNop()
)

const (
	opServiceNew  = "ingest.service.new"
	opUpsertCasts = "ingest.upsert_casts"
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

// IncomingCast is one validated cast handed over by the upstream fetch
// pipeline after a successful protocol write.
type IncomingCast struct {
	Hash          threads.Hash
	AuthorFID     int64
	ParentHash    *threads.Hash
	RootHash      threads.Hash
	TimestampMS   *int64
	HasAttachment bool
	BodyText      string
}

// Store is the write surface ingestion needs from the post store.
type Store interface {
	InsertCasts(ctx context.Context, posts []threads.Post) error
}

// ThreadEngine refreshes denormalized stats after ingestion.
type ThreadEngine interface {
	UpdateStats(ctx context.Context, roots []threads.Hash) error
}

// ServiceConfig describes the dependencies of the ingestion service.
type ServiceConfig struct {
	Store  Store
	Engine ThreadEngine
	Logger *zap.Logger
}

// Service persists incoming casts append-only and keeps the affected
// roots' denormalized stats current.
type Service struct {
	store  Store
	engine ThreadEngine
	logger *zap.Logger
}

// NewService validates dependencies and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.Engine == nil {
		return nil, newServiceError(opServiceNew, "missing_engine", errMissingEngine)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:  cfg.Store,
		engine: cfg.Engine,
		logger: logger,
	}, nil
}

// UpsertCasts stores the batch append-only (rows already present are
// left untouched) and recomputes stats once per distinct affected
// root. The distinct roots are returned for the caller's bookkeeping.
func (s *Service) UpsertCasts(ctx context.Context, casts []IncomingCast) ([]threads.Hash, error) {
	if len(casts) == 0 {
		return nil, newServiceError(opUpsertCasts, "empty_batch", errEmptyBatch)
	}

	posts := make([]threads.Post, 0, len(casts))
	seen := make(map[threads.Hash]struct{}, len(casts))
	roots := make([]threads.Hash, 0, len(casts))
	for _, cast := range casts {
		var parent *string
		if cast.ParentHash != nil {
			value := cast.ParentHash.String()
			parent = &value
		}
		posts = append(posts, threads.Post{
			Hash:          cast.Hash.String(),
			AuthorFID:     cast.AuthorFID,
			ParentHash:    parent,
			RootHash:      cast.RootHash.String(),
			TimestampMS:   cast.TimestampMS,
			HasAttachment: cast.HasAttachment,
			BodyText:      cast.BodyText,
		})
		if _, dup := seen[cast.RootHash]; !dup {
			seen[cast.RootHash] = struct{}{}
			roots = append(roots, cast.RootHash)
		}
	}

	if err := s.store.InsertCasts(ctx, posts); err != nil {
		s.logError(opUpsertCasts, "insert_failed", err, zap.Int("batch_size", len(posts)))
		return nil, newServiceError(opUpsertCasts, "insert_failed", err)
	}

	if err := s.engine.UpdateStats(ctx, roots); err != nil {
		s.logError(opUpsertCasts, "stats_update_failed", err, zap.Int("root_count", len(roots)))
		return roots, newServiceError(opUpsertCasts, "stats_update_failed", err)
	}
	return roots, nil
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
	s.logger.Error("ingest service error", attrs...)
}
