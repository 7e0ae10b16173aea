package moderation

// ActionKind enumerates the recorded moderation actions.
type ActionKind string

const (
	// ActionKindDelete removes a logical post (its whole merge group).
	ActionKindDelete ActionKind = "delete"
	// ActionKindHideCast hides a single cast row.
	ActionKindHideCast ActionKind = "hide_cast"
	// ActionKindUnhideCast clears the hide markers on a single cast row.
	ActionKindUnhideCast ActionKind = "unhide_cast"
	// ActionKindHideAuthor suppresses an author and all their casts.
	ActionKindHideAuthor ActionKind = "hide_author"
)

// ActionRecord captures an append-only audit trail of moderation and
// author-delete actions.
type ActionRecord struct {
	ActionID    string     `gorm:"column:action_id;primaryKey;size:190;not null"`
	Kind        ActionKind `gorm:"column:kind;size:64;not null"`
	RootHash    string     `gorm:"column:root_hash;size:190;not null;default:''"`
	TargetHash  string     `gorm:"column:target_hash;size:190;not null;default:''"`
	TargetFID   int64      `gorm:"column:target_fid;not null;default:0"`
	ActorFID    int64      `gorm:"column:actor_fid;not null;default:0"`
	Reason      string     `gorm:"column:reason;size:190;not null;default:''"`
	GroupSize   int        `gorm:"column:group_size;not null;default:0"`
	AppliedAtMS int64      `gorm:"column:applied_at_ms;not null;index:idx_moderation_actions_time"`
}

// TableName provides the explicit table binding for GORM.
func (ActionRecord) TableName() string {
	return "moderation_actions"
}
