package threads

import (
	"errors"
	"fmt"
	"strings"
)

const maxHashLength = 190

var (
	// ErrInvalidHash indicates that a cast identifier is empty, oversized, or not 0x-prefixed hex.
	ErrInvalidHash = errors.New("threads: invalid cast hash")
	// ErrNotFound indicates that a thread root does not exist or has no eligible content.
	ErrNotFound = errors.New("threads: thread not found")
)

// Hash represents a validated cast identifier from the upstream protocol.
type Hash string

// NewHash validates raw input and returns a Hash.
func NewHash(rawInput string) (Hash, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidHash)
	}
	if len(trimmed) > maxHashLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidHash, maxHashLength)
	}
	if !strings.HasPrefix(trimmed, "0x") || len(trimmed) == 2 {
		return "", fmt.Errorf("%w: missing 0x-prefixed digest", ErrInvalidHash)
	}
	for _, r := range trimmed[2:] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", fmt.Errorf("%w: non-hex character %q", ErrInvalidHash, r)
		}
	}
	return Hash(trimmed), nil
}

// String returns the underlying string identifier.
func (h Hash) String() string {
	return string(h)
}

// Post models a stored cast row. Rows are append-only; removal happens
// through the soft markers, never by physical delete.
type Post struct {
	Hash          string  `gorm:"column:hash;primaryKey;size:190;not null"`
	AuthorFID     int64   `gorm:"column:author_fid;not null;default:0;index:idx_casts_author"`
	ParentHash    *string `gorm:"column:parent_hash;size:190"`
	RootHash      string  `gorm:"column:root_hash;size:190;not null;index:idx_casts_root_time,priority:1"`
	TimestampMS   *int64  `gorm:"column:timestamp_ms;index:idx_casts_root_time,priority:2"`
	HasAttachment bool    `gorm:"column:has_attachment;not null;default:false"`
	BodyText      string  `gorm:"column:body_text;type:text;not null;default:''"`

	DeletedAtMS  *int64 `gorm:"column:deleted_at_ms"`
	HiddenAtMS   *int64 `gorm:"column:hidden_at_ms"`
	HiddenByFID  *int64 `gorm:"column:hidden_by_fid"`
	HiddenReason string `gorm:"column:hidden_reason;size:190;not null;default:''"`

	// Denormalized thread stats, populated on root rows only.
	ReplyCount       int64   `gorm:"column:reply_count;not null;default:0"`
	LastReplyAtMS    *int64  `gorm:"column:last_reply_at_ms"`
	LastReplyHash    *string `gorm:"column:last_reply_hash;size:190"`
	LastReplyFID     *int64  `gorm:"column:last_reply_fid"`
	LastActivityAtMS *int64  `gorm:"column:last_activity_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "casts"
}

// IsRoot reports whether the row is the top-level post of its thread.
func (p Post) IsRoot() bool {
	return p.Hash == p.RootHash
}

// AuthorState carries per-author moderation and trust state.
type AuthorState struct {
	FID        int64    `gorm:"column:fid;primaryKey;not null"`
	HiddenAtMS *int64   `gorm:"column:hidden_at_ms"`
	TrustScore *float64 `gorm:"column:trust_score"`
}

// TableName provides the explicit table binding for GORM.
func (AuthorState) TableName() string {
	return "author_states"
}

// ThreadStats is the aggregate snapshot persisted onto a root row.
type ThreadStats struct {
	ReplyCount       int64
	LastReplyAtMS    *int64
	LastReplyHash    *string
	LastReplyFID     *int64
	LastActivityAtMS *int64
}

// ClusterRow is the clustering verdict for one eligible reply.
type ClusterRow struct {
	Post        Post
	MergeTarget Hash
	IsMerged    bool
}

// AssembledPost is a visible post after merging: the anchor row with
// absorbed body text concatenated in, plus every raw hash it represents.
type AssembledPost struct {
	Post    Post
	Members []Hash
	Number  int
}

// Page bundles everything needed to render one page of a thread.
type Page struct {
	Root         AssembledPost
	Replies      []AssembledPost
	ReplyCount   int64
	PageSize     int
	PageNumber   int
	TotalPages   int
	HasNextPage  bool
	HasPrevPage  bool
	LookupByHash map[Hash]Post
}
