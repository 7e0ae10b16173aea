package threads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMergeWindowMS  = 8000
	defaultPageSize       = 25
	defaultAncestorDepth  = 3
	defaultTrustThreshold = 0
)

const (
	opServiceNew  = "threads.service.new"
	opUpdateStats = "threads.update_stats"
	opBuildPage   = "threads.build_page"
	opGroupOf     = "threads.group_of"
)

var (
	errMissingStore = errors.New("post store is required")
	noOpLogger      = zap.NewNop()
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

// Store is the post-store collaborator consumed by the thread engine.
// Reads return raw row snapshots; PersistStats must apply the whole
// snapshot as a single atomic write keyed by the root hash.
type Store interface {
	FindRoot(ctx context.Context, hash Hash) (*Post, error)
	FindReplies(ctx context.Context, root Hash) ([]Post, error)
	FindByHashes(ctx context.Context, hashes []Hash) ([]Post, error)
	AuthorStates(ctx context.Context, fids []int64) (map[int64]AuthorState, error)
	PersistStats(ctx context.Context, root Hash, stats ThreadStats) error
}

// Options carries the named thresholds of the engine. Zero values fall
// back to the defaults; a test harness can pin them (e.g. a 0ms merge
// window to assert no merging) through ServiceConfig.
type Options struct {
	MergeWindowMS  int64
	PageSize       int
	TrustThreshold float64
	AncestorDepth  int
}

func (o Options) withDefaults() Options {
	if o.MergeWindowMS == 0 {
		o.MergeWindowMS = defaultMergeWindowMS
	}
	if o.MergeWindowMS < 0 {
		o.MergeWindowMS = 0
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.AncestorDepth <= 0 {
		o.AncestorDepth = defaultAncestorDepth
	}
	return o
}

// ServiceConfig describes the dependencies of the thread engine.
type ServiceConfig struct {
	Store   Store
	Options Options
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Service is the reply-clustering and pagination engine: stats
// recomputation, page builds, and merge-group resolution over one
// shared clustering implementation. All state is request-scoped.
type Service struct {
	store  Store
	opts   Options
	clock  func() time.Time
	logger *zap.Logger
}

// NewService validates dependencies and constructs the engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
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
		store:  cfg.Store,
		opts:   cfg.Options.withDefaults(),
		clock:  clock,
		logger: logger,
	}, nil
}

// PageSize exposes the configured page size for callers shaping links.
func (s *Service) PageSize() int {
	return s.opts.PageSize
}

// eligibleReplies loads the raw reply rows for a root, applies the
// visibility filter with batched author state, and returns them in the
// canonical clustering order.
func (s *Service) eligibleReplies(ctx context.Context, root Hash) ([]Post, error) {
	rows, err := s.store.FindReplies(ctx, root)
	if err != nil {
		return nil, err
	}

	fidSet := make(map[int64]struct{}, len(rows))
	fids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if _, seen := fidSet[row.AuthorFID]; seen {
			continue
		}
		fidSet[row.AuthorFID] = struct{}{}
		fids = append(fids, row.AuthorFID)
	}

	states := map[int64]AuthorState{}
	if len(fids) > 0 {
		states, err = s.store.AuthorStates(ctx, fids)
		if err != nil {
			return nil, err
		}
	}

	eligible := make([]Post, 0, len(rows))
	for _, row := range rows {
		state, ok := states[row.AuthorFID]
		if !ok {
			state = AuthorState{FID: row.AuthorFID}
		}
		if IsEligibleReply(row, state, s.opts.TrustThreshold) {
			eligible = append(eligible, row)
		}
	}
	SortReplies(eligible)
	return eligible, nil
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
	s.logger.Error("threads service error", attrs...)
}
